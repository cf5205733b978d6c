package sanitize

import (
	"strings"

	"github.com/nicolasestrem/memoire/internal/merr"
)

const (
	minLimit     = 1
	maxLimit     = 100
	defaultLimit = 50
)

// FTS5Query trims the input, rejects empty queries, doubles embedded double
// quotes, and wraps the whole query in double quotes so the FTS5 parser
// treats it as a literal phrase rather than interpreting metacharacters like
// * or boolean operators. Callers who want phrase/boolean syntax must bypass
// this function; it is not exposed on the public search path.
func FTS5Query(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", merr.NewBadRequest("sanitize_fts5_query", nil)
	}
	escaped := strings.ReplaceAll(trimmed, `"`, `""`)
	return `"` + escaped + `"`, nil
}

// ClampPagination clamps limit to [1, 100] (default 50 when <= 0) and offset
// to >= 0.
func ClampPagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit < minLimit {
		limit = minLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
