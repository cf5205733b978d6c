package asr

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAllModelFiles(t *testing.T, dir string) {
	t.Helper()
	for _, name := range requiredModelFiles {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestWaitForModelDirReturnsImmediatelyWhenAlreadyPopulated(t *testing.T) {
	dir := t.TempDir()
	writeAllModelFiles(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForModelDir(ctx, dir); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWaitForModelDirUnblocksWhenFilesAppear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "parakeet-tdt")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- WaitForModelDir(ctx, dir) }()

	time.Sleep(100 * time.Millisecond)
	writeAllModelFiles(t, dir)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error once files appear, got %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("WaitForModelDir did not return after model files appeared")
	}
}

func TestWaitForModelDirReturnsASRMissingOnCancellation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-populated")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := WaitForModelDir(ctx, dir)
	if err == nil {
		t.Fatal("expected an error when the model dir is never populated")
	}
}
