package recorder

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nicolasestrem/memoire/internal/bufpool"
	"github.com/nicolasestrem/memoire/internal/capture"
	"github.com/nicolasestrem/memoire/internal/config"
	"github.com/nicolasestrem/memoire/internal/encode"
	"github.com/nicolasestrem/memoire/internal/events"
	"github.com/nicolasestrem/memoire/internal/merr"
	"github.com/nicolasestrem/memoire/internal/phash"
	"github.com/nicolasestrem/memoire/internal/sanitize"
	"github.com/nicolasestrem/memoire/internal/storage"
)

const captureFrameTimeout = 100 * time.Millisecond

// videoEncoder is the subset of *encode.VideoEncoder the recorder needs.
// Abstracted so tests can substitute a fake instead of spawning a real
// transcoder subprocess.
type videoEncoder interface {
	AddFrame(rgba []byte) error
	Finalize() (string, error)
	Discard()
}

// pngFallbackWriter is the subset of *encode.PNGFallbackWriter the recorder
// needs for the broken-pipe fallback path.
type pngFallbackWriter interface {
	AddFrame(rgba []byte) error
	FrameCount() int
	Close() error
}

// videoEncoderFactory spawns a fresh video encoder for a new chunk.
type videoEncoderFactory func(ctx context.Context, outputPath string, width, height int) (videoEncoder, error)

// pngFallbackFactory creates the scratch-PNG writer used when a subprocess
// pipe breaks mid-chunk.
type pngFallbackFactory func(dir string, width, height int) (pngFallbackWriter, error)

// reencodeFunc drives the transcoder a second time over the PNG scratch
// directory once the chunk is finalized via the fallback path.
type reencodeFunc func(ctx context.Context, binaryPath, pngDir string, fps float64, codec encode.VideoCodec, outputPath string) error

// monitorState is the per-monitor state machine described by the recorder
// spec: one capture endpoint, one active encoder, the open chunk (if any),
// a monotone frame index, a batch buffer of pending frame metadata and the
// last retained frame's perceptual hash.
type monitorState struct {
	info            capture.MonitorInfo
	sanitizedDevice string
	dup             capture.Duplicator

	cfg    config.Config
	store  *storage.Store
	logger *slog.Logger
	hooks  *events.HookManager

	newEncoder videoEncoderFactory
	newPNG     pngFallbackFactory
	reencode   reencodeFunc
	openDup    func(capture.MonitorInfo) (capture.Duplicator, error)

	chunkIndex        int
	currentChunkID    int64
	currentChunkPath  string
	currentChunkStart time.Time
	frameWidth        int
	frameHeight       int
	frameIndex        int

	consecutiveErrors int

	batch     []storage.NewFrame
	lastFlush time.Time

	lastHash    *uint64
	hasLastHash bool

	encoder       videoEncoder
	pngFallback   pngFallbackWriter
	pngScratchDir string
	usedFallback  bool

	skipped int64
}

func newMonitorState(info capture.MonitorInfo, dup capture.Duplicator, cfg config.Config, store *storage.Store, logger *slog.Logger, hooks *events.HookManager) *monitorState {
	sanitized := sanitize.MonitorName(info.DeviceName)
	return &monitorState{
		info:            info,
		sanitizedDevice: sanitized,
		dup:             dup,
		cfg:             cfg,
		store:           store,
		logger:          logger.With("device", sanitized),
		hooks:           hooks,
		newEncoder:      defaultVideoEncoderFactory(cfg, logger),
		newPNG:          defaultPNGFallbackFactory(),
		reencode:        encode.ReencodeFromPNGs,
		openDup:         capture.Open,
		lastFlush:       time.Now(),
	}
}

func defaultVideoEncoderFactory(cfg config.Config, logger *slog.Logger) videoEncoderFactory {
	return func(ctx context.Context, outputPath string, width, height int) (videoEncoder, error) {
		codec := encode.CodecSoftware
		if cfg.UseHWEncoding {
			codec = encode.CodecHardware
		}
		encCfg := encode.VideoEncoderConfig{
			BinaryPath: cfg.EncoderPath,
			Width:      width,
			Height:     height,
			FPS:        cfg.FPS,
			Codec:      codec,
			OutputPath: outputPath,
		}
		enc, err := encode.NewVideoEncoder(ctx, encCfg, logger)
		if err != nil && codec == encode.CodecHardware {
			logger.Warn("hardware encoder spawn failed, falling back to software H.264", "error", err)
			encCfg.Codec = encode.CodecSoftware
			enc, err = encode.NewVideoEncoder(ctx, encCfg, logger)
		}
		if err != nil {
			return nil, err
		}
		return enc, nil
	}
}

func defaultPNGFallbackFactory() pngFallbackFactory {
	return func(dir string, width, height int) (pngFallbackWriter, error) {
		return encode.NewPNGFallbackWriter(dir, width, height)
	}
}

// step runs one iteration of the per-monitor capture algorithm.
func (m *monitorState) step(ctx context.Context) error {
	frame, ok, err := m.dup.CaptureFrame(ctx, captureFrameTimeout)
	if err != nil {
		return m.handleCaptureError(ctx, err)
	}
	m.consecutiveErrors = 0
	if !ok {
		return nil
	}
	// frame.Data is pool-allocated on the real capture path (see
	// bgraToRGBATightlyPacked); every consumer below this point has
	// finished with it by the time step returns.
	defer bufpool.Put(frame.Data)

	hash := phash.Hash(frame.Data, frame.Width, frame.Height)
	if m.hasLastHash && phash.IsDuplicate(*m.lastHash, hash, int(m.cfg.DedupThreshold)) {
		m.skipped++
		m.hooks.TriggerEvent(ctx, *events.NewEvent(events.EventDedupSkip).
			WithDevice(m.sanitizedDevice).WithData("skipped_total", m.skipped))
		return nil
	}

	if m.currentChunkID == 0 {
		if err := m.startChunk(ctx, frame.Width, frame.Height, frame.Timestamp); err != nil {
			return err
		}
	}

	if err := m.addFrame(ctx, frame.Data); err != nil {
		m.logger.Error("add_frame failed", "error", err)
	}

	signedHash := int64(hash)
	m.batch = append(m.batch, storage.NewFrame{
		VideoChunkID: m.currentChunkID,
		OffsetIndex:  m.frameIndex,
		Timestamp:    frame.Timestamp,
		Focused:      true,
		FrameHash:    &signedHash,
	})
	m.frameIndex++
	m.lastHash = &hash
	m.hasLastHash = true

	if len(m.batch) >= 30 || time.Since(m.lastFlush) >= 5*time.Second {
		if err := m.flushBatch(ctx); err != nil {
			m.logger.Error("batch flush failed", "error", err)
		}
	}

	if time.Since(m.currentChunkStart) >= m.cfg.ChunkDuration {
		if err := m.finalizeChunk(ctx); err != nil {
			m.logger.Error("finalize_chunk failed", "error", err)
		}
		m.chunkIndex++
	}

	return nil
}

// handleCaptureError applies the capture failure policy: CaptureLost
// reinitializes immediately, CaptureTransient is counted and triggers
// reinitialization after 10 consecutive occurrences.
func (m *monitorState) handleCaptureError(ctx context.Context, err error) error {
	if merr.IsCaptureLost(err) {
		m.reinit(ctx)
		return err
	}
	m.consecutiveErrors++
	if m.consecutiveErrors >= capture.MaxConsecutiveFailures {
		m.reinit(ctx)
	}
	return err
}

// reinit discards the current capture endpoint, reopens it and finalizes
// any open chunk so no partially-written file is left dangling across the
// discontinuity.
func (m *monitorState) reinit(ctx context.Context) {
	m.logger.Warn("reinitializing capture endpoint", "consecutive_errors", m.consecutiveErrors)
	if err := m.finalizeChunk(ctx); err != nil {
		m.logger.Error("finalize on reinit failed", "error", err)
	}
	_ = m.dup.Close()

	newDup, err := m.openDup(m.info)
	if err != nil {
		m.logger.Error("failed to reopen capture endpoint", "error", err)
		return
	}
	m.dup = newDup
	m.consecutiveErrors = 0
	m.hooks.TriggerEvent(ctx, *events.NewEvent(events.EventCaptureReinit).WithDevice(m.sanitizedDevice))
}

func (m *monitorState) startChunk(ctx context.Context, width, height int, at time.Time) error {
	path := videoChunkPath(m.cfg.DataDir, m.sanitizedDevice, at, m.chunkIndex)
	w, h := width, height
	id, err := m.store.InsertVideoChunk(ctx, m.sanitizedDevice, path, &w, &h)
	if err != nil {
		return fmt.Errorf("start chunk: %w", err)
	}

	enc, err := m.newEncoder(ctx, path, width, height)
	if err != nil {
		return fmt.Errorf("start chunk: spawn encoder: %w", err)
	}

	m.currentChunkID = id
	m.currentChunkPath = path
	m.currentChunkStart = at
	m.frameWidth = width
	m.frameHeight = height
	m.frameIndex = 0
	m.encoder = enc
	m.pngFallback = nil
	m.usedFallback = false

	m.hooks.TriggerEvent(ctx, *events.NewEvent(events.EventChunkOpened).
		WithDevice(m.sanitizedDevice).WithChunkID(id).WithData("path", path))
	return nil
}

// addFrame writes one frame to the active encoder, falling back once per
// chunk to the PNG-then-reencode path on a broken pipe.
func (m *monitorState) addFrame(ctx context.Context, rgba []byte) error {
	if m.pngFallback != nil {
		return m.pngFallback.AddFrame(rgba)
	}

	err := m.encoder.AddFrame(rgba)
	if err == nil {
		return nil
	}

	var pipeErr *merr.EncoderPipe
	if !stdErrors.As(err, &pipeErr) || m.usedFallback {
		return err
	}

	m.logger.Warn("encoder pipe broken, switching to PNG fallback", "error", err)
	m.encoder.Discard()
	m.encoder = nil
	m.usedFallback = true

	dir, derr := os.MkdirTemp("", "memoire-png-fallback-*")
	if derr != nil {
		return fmt.Errorf("create png fallback dir: %w", derr)
	}
	writer, werr := m.newPNG(dir, m.frameWidth, m.frameHeight)
	if werr != nil {
		return fmt.Errorf("create png fallback writer: %w", werr)
	}
	m.pngFallback = writer
	m.pngScratchDir = dir

	m.hooks.TriggerEvent(ctx, *events.NewEvent(events.EventEncoderFallback).
		WithDevice(m.sanitizedDevice).WithChunkID(m.currentChunkID))

	return m.pngFallback.AddFrame(rgba)
}

// flushBatch commits the pending frame metadata in a single transaction.
func (m *monitorState) flushBatch(ctx context.Context) error {
	if len(m.batch) == 0 {
		m.lastFlush = time.Now()
		return nil
	}
	_, err := m.store.InsertFramesBatch(ctx, m.batch)
	n := len(m.batch)
	m.batch = m.batch[:0]
	m.lastFlush = time.Now()
	if err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	m.hooks.TriggerEvent(ctx, *events.NewEvent(events.EventFrameBatchFlushed).
		WithDevice(m.sanitizedDevice).WithChunkID(m.currentChunkID).WithData("count", n))
	return nil
}

// finalizeChunk flushes pending frame metadata before closing the encoder,
// per the chunk-finalize contract: otherwise a partial row set could point
// at a file still missing its last frames.
func (m *monitorState) finalizeChunk(ctx context.Context) error {
	if m.currentChunkID == 0 {
		return nil
	}

	flushErr := m.flushBatch(ctx)

	var finalizeErr error
	if m.pngFallback != nil {
		frameCount := m.pngFallback.FrameCount()
		closeErr := m.pngFallback.Close()
		if closeErr != nil {
			finalizeErr = fmt.Errorf("close png fallback: %w", closeErr)
		} else if frameCount > 0 {
			codec := encode.CodecSoftware
			if m.cfg.UseHWEncoding {
				codec = encode.CodecHardware
			}
			finalizeErr = m.reencode(ctx, m.cfg.EncoderPath, m.pngScratchDir, m.cfg.FPS, codec, m.currentChunkPath)
		}
	} else if m.encoder != nil {
		_, finalizeErr = m.encoder.Finalize()
	}

	m.hooks.TriggerEvent(ctx, *events.NewEvent(events.EventChunkFinalized).
		WithDevice(m.sanitizedDevice).WithChunkID(m.currentChunkID).
		WithData("path", m.currentChunkPath).WithData("frame_count", m.frameIndex))

	m.currentChunkID = 0
	m.currentChunkPath = ""
	m.encoder = nil
	m.pngFallback = nil
	m.pngScratchDir = ""

	if flushErr != nil {
		return flushErr
	}
	return finalizeErr
}
