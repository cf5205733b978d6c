package encode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// PNGFallbackWriter is the one-shot fallback path invoked after a broken
// encoder pipe: frames are written as individual PNGs to a scratch
// directory, then re-encoded into the chunk's MP4 from disk once the chunk
// closes.
type PNGFallbackWriter struct {
	dir    string
	width  int
	height int
	count  int
}

// NewPNGFallbackWriter creates the scratch directory for one chunk's frames.
func NewPNGFallbackWriter(dir string, width, height int) (*PNGFallbackWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("png_fallback.mkdir: %w", err)
	}
	return &PNGFallbackWriter{dir: dir, width: width, height: height}, nil
}

// AddFrame encodes one RGBA frame to a sequentially numbered PNG file.
func (w *PNGFallbackWriter) AddFrame(rgba []byte) error {
	img := &image.RGBA{
		Pix:    rgba,
		Stride: w.width * 4,
		Rect:   image.Rect(0, 0, w.width, w.height),
	}
	path := filepath.Join(w.dir, fmt.Sprintf("frame_%08d.png", w.count))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("png_fallback.create: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("png_fallback.encode: %w", err)
	}
	w.count++
	return nil
}

// FrameCount returns the number of PNG frames written so far.
func (w *PNGFallbackWriter) FrameCount() int { return w.count }

// Close removes the scratch directory; callers call this after re-encoding.
func (w *PNGFallbackWriter) Close() error {
	return os.RemoveAll(w.dir)
}

// ReencodeFromPNGs drives the transcoder a second time, this time reading
// the fallback PNG sequence from disk instead of a live stdin stream.
func ReencodeFromPNGs(ctx context.Context, binaryPath, pngDir string, fps float64, codec VideoCodec, outputPath string) error {
	codecName := "h264_nvenc"
	quality := []string{"-preset", "p4", "-rc", "vbr", "-cq", "23"}
	if codec == CodecSoftware {
		codecName = "libx264"
		quality = []string{"-preset", "fast", "-crf", "23"}
	}
	args := []string{
		"-framerate", fmt.Sprintf("%g", fps),
		"-i", filepath.Join(pngDir, "frame_%08d.png"),
		"-an",
		"-c:v", codecName,
		"-pix_fmt", "yuv420p",
	}
	args = append(args, quality...)
	args = append(args, "-y", outputPath)

	cmd := exec.CommandContext(ctx, binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return merr.NewEncoderPipe("reencode_from_pngs", fmt.Errorf("%w: %s", err, stderr.String()))
	}
	return nil
}
