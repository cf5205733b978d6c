// Package encode drives the external transcoder subprocess (video) and
// writes WAV PCM directly (audio), per the media-encoder contract.
package encode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// VideoCodec selects the transcoder's target video codec.
type VideoCodec int

const (
	CodecHardware VideoCodec = iota // NVENC-style hardware encode
	CodecSoftware                   // software H.264 fallback
)

const shutdownJoinTimeout = 30 * time.Second

// VideoEncoderConfig describes one chunk's transcoder invocation.
type VideoEncoderConfig struct {
	BinaryPath string
	Width      int
	Height     int
	FPS        float64
	Codec      VideoCodec
	OutputPath string
}

// VideoEncoder owns one external transcoder subprocess for the lifetime of a
// single video chunk. Frames are piped to stdin as raw RGBA; stderr is
// pumped concurrently so the child never blocks on a full pipe, mirroring
// the retrieval pack's FFmpeg transcoder wrapper.
type VideoEncoder struct {
	mu           sync.Mutex
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	stderr       io.ReadCloser
	logger       *slog.Logger
	cfg          VideoEncoderConfig
	pipeBroken   bool
	stderrLines  []string
	stderrMu     sync.Mutex
	wg           sync.WaitGroup
	bytesWritten uint64
}

func buildArgs(cfg VideoEncoderConfig) []string {
	codecName := "h264_nvenc"
	quality := []string{"-preset", "p4", "-rc", "vbr", "-cq", "23"}
	if cfg.Codec == CodecSoftware {
		codecName = "libx264"
		quality = []string{"-preset", "fast", "-crf", "23"}
	}
	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", fmt.Sprintf("%g", cfg.FPS),
		"-i", "pipe:0",
		"-an",
		"-c:v", codecName,
		"-pix_fmt", "yuv420p",
	}
	args = append(args, quality...)
	args = append(args, "-y", cfg.OutputPath)
	return args
}

// NewVideoEncoder spawns the transcoder. Spawn failure is reported as
// merr.EncoderSpawn.
func NewVideoEncoder(ctx context.Context, cfg VideoEncoderConfig, logger *slog.Logger) (*VideoEncoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.CommandContext(ctx, cfg.BinaryPath, buildArgs(cfg)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, merr.NewEncoderSpawn("video_encoder.stdin_pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, merr.NewEncoderSpawn("video_encoder.stderr_pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, merr.NewEncoderSpawn("video_encoder.start", err)
	}

	e := &VideoEncoder{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		logger: logger,
		cfg:    cfg,
	}

	e.wg.Add(1)
	go e.pumpStderr()

	return e, nil
}

// pumpStderr drains the child's stderr concurrently so the child never
// blocks writing diagnostics while stdin is also being written.
func (e *VideoEncoder) pumpStderr() {
	defer e.wg.Done()
	scanner := bufio.NewScanner(e.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		e.stderrMu.Lock()
		e.stderrLines = append(e.stderrLines, line)
		if len(e.stderrLines) > 50 {
			e.stderrLines = e.stderrLines[1:]
		}
		e.stderrMu.Unlock()
		e.logger.Debug("transcoder stderr", "line", line)
	}
}

// AddFrame writes one tightly-packed RGBA frame to the child's stdin. A
// broken pipe is reported as merr.EncoderPipe so the recorder can fall back
// to the PNG-then-encode path once and reset the chunk.
func (e *VideoEncoder) AddFrame(rgba []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeBroken {
		return merr.NewEncoderPipe("add_frame", fmt.Errorf("pipe already broken"))
	}
	n, err := e.stdin.Write(rgba)
	if err != nil {
		e.pipeBroken = true
		return merr.NewEncoderPipe("add_frame", err)
	}
	e.bytesWritten += uint64(n)
	return nil
}

// Finalize closes stdin first, then waits for the process to exit, matching
// the contract that truncates the output if closed any other way. It
// returns the output path on success.
func (e *VideoEncoder) Finalize() (string, error) {
	e.mu.Lock()
	stdin := e.stdin
	e.mu.Unlock()

	if err := stdin.Close(); err != nil && !e.pipeBroken {
		e.logger.Warn("video encoder stdin close error", "err", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()

	select {
	case err := <-done:
		e.wg.Wait()
		if err != nil {
			return "", merr.NewEncoderPipe("finalize_chunk", fmt.Errorf("transcoder exited: %w: %s", err, e.recentStderr()))
		}
		return e.cfg.OutputPath, nil
	case <-time.After(shutdownJoinTimeout):
		_ = e.cmd.Process.Kill()
		e.wg.Wait()
		return "", merr.NewTimeout("finalize_chunk", shutdownJoinTimeout, fmt.Errorf("transcoder did not exit: %s", e.recentStderr()))
	}
}

// Discard kills the subprocess without waiting for a clean exit, used when
// the recorder abandons a chunk after a fallback.
func (e *VideoEncoder) Discard() {
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	e.wg.Wait()
}

func (e *VideoEncoder) recentStderr() string {
	e.stderrMu.Lock()
	defer e.stderrMu.Unlock()
	if len(e.stderrLines) == 0 {
		return ""
	}
	out := e.stderrLines[0]
	for _, line := range e.stderrLines[1:] {
		out += "; " + line
	}
	return out
}
