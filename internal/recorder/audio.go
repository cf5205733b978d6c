package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nicolasestrem/memoire/internal/audiocap"
	"github.com/nicolasestrem/memoire/internal/config"
	"github.com/nicolasestrem/memoire/internal/storage"
)

const targetSampleRate = 16000

// audioEncoder is the subset of *encode.AudioEncoder the recorder needs.
type audioEncoder interface {
	AddSamples(samples []int16) error
	DurationSeconds() float64
	Close() (string, error)
}

type audioEncoderFactory func(path string) (audioEncoder, error)

// audioState drives one open audio endpoint (microphone or loopback): it
// folds incoming chunks to mono, resamples to 16kHz, frames them into
// configured-duration WAV chunks and inserts the owning audio_chunks row
// when a chunk is started.
type audioState struct {
	endpoint audiocap.EndpointInfo
	mode     audiocap.Mode
	dup      audiocap.Duplicator

	sanitizedDevice string
	isInput         bool

	cfg    config.Config
	store  *storage.Store
	logger *slog.Logger

	newEncoder audioEncoderFactory

	chunkIndex       int
	currentChunkID   int64
	currentChunkPath string
	encoder          audioEncoder
}

func newAudioState(endpoint audiocap.EndpointInfo, mode audiocap.Mode, dup audiocap.Duplicator, sanitizedDevice string, cfg config.Config, store *storage.Store, logger *slog.Logger, factory audioEncoderFactory) *audioState {
	return &audioState{
		endpoint:        endpoint,
		mode:            mode,
		dup:             dup,
		sanitizedDevice: sanitizedDevice,
		isInput:         mode == audiocap.ModeInput,
		cfg:             cfg,
		store:           store,
		logger:          logger.With("audio_device", sanitizedDevice, "mode", mode.String()),
		newEncoder:      factory,
	}
}

// consume processes one chunk delivered from the duplicator's queue.
func (a *audioState) consume(ctx context.Context, chunk audiocap.Chunk) error {
	mono := audiocap.FoldToMono(chunk.Samples, chunk.Channels)
	resampled := audiocap.Resample(mono, chunk.SampleRate, targetSampleRate)
	pcm := audiocap.ToPCM16(resampled)

	if a.currentChunkID == 0 {
		if err := a.startChunk(ctx, chunk.Timestamp); err != nil {
			return err
		}
	}

	if err := a.encoder.AddSamples(pcm); err != nil {
		return fmt.Errorf("audio add_samples: %w", err)
	}

	if a.encoder.DurationSeconds() >= a.cfg.AudioChunkDuration.Seconds() {
		if err := a.finalizeChunk(ctx); err != nil {
			return err
		}
		a.chunkIndex++
	}
	return nil
}

func (a *audioState) startChunk(ctx context.Context, at time.Time) error {
	path := audioChunkPath(a.cfg.DataDir, a.sanitizedDevice, at, a.chunkIndex)
	enc, err := a.newEncoder(path)
	if err != nil {
		return fmt.Errorf("start audio chunk: %w", err)
	}

	deviceName := a.sanitizedDevice
	isInput := a.isInput
	id, err := a.store.InsertAudioChunk(ctx, path, &deviceName, &isInput)
	if err != nil {
		return fmt.Errorf("start audio chunk: insert row: %w", err)
	}

	a.currentChunkID = id
	a.currentChunkPath = path
	a.encoder = enc
	return nil
}

func (a *audioState) finalizeChunk(ctx context.Context) error {
	if a.currentChunkID == 0 || a.encoder == nil {
		return nil
	}
	_, err := a.encoder.Close()
	a.currentChunkID = 0
	a.currentChunkPath = ""
	a.encoder = nil
	return err
}

// run drains the duplicator's sample queue until the context is cancelled,
// then finalizes any open chunk.
func (a *audioState) run(ctx context.Context) {
	if err := a.dup.Start(ctx); err != nil {
		a.logger.Error("audio duplicator failed to start", "error", err)
		return
	}
	defer func() {
		if err := a.finalizeChunk(context.Background()); err != nil {
			a.logger.Error("finalize audio chunk on shutdown failed", "error", err)
		}
		_ = a.dup.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-a.dup.Samples():
			if !ok {
				return
			}
			if err := a.consume(ctx, chunk); err != nil {
				a.logger.Error("audio chunk consume failed", "error", err)
			}
		}
	}
}
