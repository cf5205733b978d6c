package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeFixedOutputScript writes a shell script that ignores all arguments and
// writes exactly n zero bytes to stdout, standing in for a transcoder binary
// the way the encode package's tests use /bin/true as a stand-in process.
func writeFixedOutputScript(t *testing.T, n int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-transcoder.sh")
	script := fmt.Sprintf("#!/bin/sh\nexec head -c %d /dev/zero\n", n)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExternalExtractorAcceptsExactLength(t *testing.T) {
	width, height := 4, 2
	bin := writeFixedOutputScript(t, width*height*4)
	x := ExternalExtractor{BinaryPath: bin}

	data, err := x.Extract(context.Background(), "chunk.mp4", 0, width, height)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(data) != width*height*4 {
		t.Fatalf("expected %d bytes, got %d", width*height*4, len(data))
	}
}

func TestExternalExtractorRejectsOverLongBuffer(t *testing.T) {
	width, height := 4, 2
	bin := writeFixedOutputScript(t, width*height*4+1)
	x := ExternalExtractor{BinaryPath: bin}

	if _, err := x.Extract(context.Background(), "chunk.mp4", 0, width, height); err == nil {
		t.Fatal("expected error for over-long extracted buffer")
	}
}

func TestExternalExtractorRejectsUnderLongBuffer(t *testing.T) {
	width, height := 4, 2
	bin := writeFixedOutputScript(t, width*height*4-1)
	x := ExternalExtractor{BinaryPath: bin}

	if _, err := x.Extract(context.Background(), "chunk.mp4", 0, width, height); err == nil {
		t.Fatal("expected error for under-long extracted buffer")
	}
}
