package encode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nicolasestrem/memoire/internal/merr"
)

func TestBuildArgsHardwareCodec(t *testing.T) {
	args := buildArgs(VideoEncoderConfig{
		Width: 1920, Height: 1080, FPS: 30, Codec: CodecHardware, OutputPath: "out.mp4",
	})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "h264_nvenc") {
		t.Fatalf("expected hardware codec in args: %v", args)
	}
	if !strings.Contains(joined, "1920x1080") {
		t.Fatalf("expected size in args: %v", args)
	}
	if !strings.Contains(joined, "yuv420p") {
		t.Fatalf("expected yuv420p pixel format: %v", args)
	}
}

func TestBuildArgsSoftwareFallback(t *testing.T) {
	args := buildArgs(VideoEncoderConfig{
		Width: 640, Height: 480, FPS: 10, Codec: CodecSoftware, OutputPath: "out.mp4",
	})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "libx264") {
		t.Fatalf("expected software codec in args: %v", args)
	}
	if !strings.Contains(joined, "crf") {
		t.Fatalf("expected crf flag for software encode: %v", args)
	}
}

// TestVideoEncoderBrokenPipe uses /usr/bin/true (or /bin/true) as a stand-in
// binary: it exits immediately without reading stdin, so the first AddFrame
// after it exits must observe a broken pipe.
func TestVideoEncoderBrokenPipe(t *testing.T) {
	bin := findTrueBinary(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	enc, err := NewVideoEncoder(ctx, VideoEncoderConfig{
		BinaryPath: bin,
		Width:      2, Height: 2, FPS: 1,
		Codec:      CodecSoftware,
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
	}, nil)
	if err != nil {
		t.Fatalf("NewVideoEncoder: %v", err)
	}

	// Give the process time to exit and close its end of the stdin pipe.
	_ = enc.cmd.Wait()

	frame := make([]byte, 2*2*4)
	writeErr := enc.AddFrame(frame)
	if writeErr == nil {
		// Some platforms may buffer the first write; retry once more.
		writeErr = enc.AddFrame(frame)
	}
	if writeErr == nil {
		t.Fatalf("expected broken pipe error after process exit")
	}
	var pipeErr *merr.EncoderPipe
	if !errors.As(writeErr, &pipeErr) {
		t.Fatalf("expected EncoderPipe, got %v (%T)", writeErr, writeErr)
	}
}

func findTrueBinary(t *testing.T) string {
	t.Helper()
	for _, candidate := range []string{"/bin/true", "/usr/bin/true"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	t.Skip("no /bin/true or /usr/bin/true available on this system")
	return ""
}
