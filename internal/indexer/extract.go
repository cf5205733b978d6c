package indexer

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/nicolasestrem/memoire/internal/capture"
	"github.com/nicolasestrem/memoire/internal/merr"
)

// FrameExtractor pulls one raw RGBA frame out of an already-encoded video
// chunk file, out-of-process, per §4.8 step 3. Real extractions run behind
// a bounded concurrency limit (see ocr_indexer.go); Go's goroutines need no
// separate "blocking work pool" the way a single-threaded async runtime
// would, so extraction simply runs as one goroutine per in-flight request.
type FrameExtractor interface {
	Extract(ctx context.Context, chunkPath string, offsetIndex, width, height int) ([]byte, error)
}

// ExternalExtractor shells out to the configured transcoder binary with a
// frame-select filter, mirroring the teacher's subprocess idiom: a single
// bounded Output() call rather than a piped stdin/stdout lifecycle, since
// extraction is one-shot per frame rather than a streaming encode.
type ExternalExtractor struct {
	BinaryPath string
}

func (x ExternalExtractor) Extract(ctx context.Context, chunkPath string, offsetIndex, width, height int) ([]byte, error) {
	args := []string{
		"-i", chunkPath,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, offsetIndex),
		"-vframes", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, x.BinaryPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, merr.NewEncoderSpawn("extract_frame", fmt.Errorf("extract frame %d from %s: %w", offsetIndex, chunkPath, err))
	}
	if width > 0 && height > 0 {
		if err := capture.ValidateFrameBuffer(out, width, height, width*4); err != nil {
			return nil, err
		}
		if want := width * height * 4; len(out) != want {
			return nil, merr.NewEncoderSpawn("extract_frame",
				fmt.Errorf("extract frame %d from %s: buffer length %d does not equal width*height*4 (%d)", offsetIndex, chunkPath, len(out), want))
		}
	}
	return out, nil
}
