package sanitize

import (
	"errors"
	"testing"

	"github.com/nicolasestrem/memoire/internal/merr"
)

func TestFTS5QueryWrapsLiteralPhrase(t *testing.T) {
	got, err := FTS5Query("hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `"hello world"` {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestFTS5QueryDoublesEmbeddedQuotes(t *testing.T) {
	got, err := FTS5Query(`say "hi"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `"say ""hi"""` {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestFTS5QueryRejectsEmpty(t *testing.T) {
	_, err := FTS5Query("   ")
	if err == nil {
		t.Fatalf("expected error for empty query")
	}
	var bad *merr.BadRequest
	if !errors.As(err, &bad) {
		t.Fatalf("expected a BadRequest error, got %v", err)
	}
}

func TestFTS5QueryPreservesMetacharacters(t *testing.T) {
	got, err := FTS5Query("foo* OR bar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `"foo* OR bar"` {
		t.Fatalf("expected metacharacters preserved verbatim, got %q", got)
	}
}

func TestClampPaginationDefaults(t *testing.T) {
	limit, offset := ClampPagination(0, -5)
	if limit != defaultLimit {
		t.Fatalf("expected default limit %d, got %d", defaultLimit, limit)
	}
	if offset != 0 {
		t.Fatalf("expected offset clamped to 0, got %d", offset)
	}
}

func TestClampPaginationBounds(t *testing.T) {
	limit, _ := ClampPagination(500, 0)
	if limit != maxLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxLimit, limit)
	}
	limit, _ = ClampPagination(-1, 0)
	if limit != defaultLimit {
		t.Fatalf("expected negative limit to use default, got %d", limit)
	}
}
