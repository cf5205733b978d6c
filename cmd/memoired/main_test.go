package main

import (
	"path/filepath"
	"testing"
)

func TestRunVersionExitsZero(t *testing.T) {
	if code := run([]string{"-version"}); code != 0 {
		t.Fatalf("run(-version) = %d, want 0", code)
	}
}

func TestRunBadFlagsExitsTwo(t *testing.T) {
	if code := run([]string{"-log-level", "loud"}); code != 2 {
		t.Fatalf("run(bad log level) = %d, want 2", code)
	}
}

func TestRunNoCapturableMonitorExitsThree(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "memoire")
	code := run([]string{"-data-dir", dataDir})
	if code != 3 {
		t.Fatalf("run() = %d, want 3 (no capturable monitor on this platform)", code)
	}
}
