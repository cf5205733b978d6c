package encode

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

const (
	wavBitsPerSample = 16
	wavChannels      = 1
	wavSampleRate    = 16000
	wavHeaderSize    = 44
)

// AudioEncoder writes 16-bit PCM mono 16kHz WAV data directly to disk (no
// subprocess). It mirrors the teacher's media.Recorder: a mutex-guarded
// writer that disables itself on the first write error rather than
// panicking, and exposes Close for a clean finalize.
type AudioEncoder struct {
	mu        sync.Mutex
	f         *os.File
	logger    *slog.Logger
	path      string
	dataBytes uint32
	closed    bool
}

// NewAudioEncoder creates a WAV file at path with a placeholder header that
// is patched with real sizes on Close.
func NewAudioEncoder(path string, logger *slog.Logger) (*AudioEncoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio_encoder.create: %w", err)
	}
	e := &AudioEncoder{f: f, logger: logger, path: path}
	if err := e.writeHeader(); err != nil {
		return nil, err
	}
	return e, nil
}

// writeHeader writes a 44-byte RIFF/WAVE header with placeholder sizes.
func (e *AudioEncoder) writeHeader() error {
	if _, err := e.f.WriteString("RIFF"); err != nil {
		return e.failLocked("header", err)
	}
	if err := binary.Write(e.f, binary.LittleEndian, uint32(0)); err != nil {
		return e.failLocked("header", err)
	}
	if _, err := e.f.WriteString("WAVE"); err != nil {
		return e.failLocked("header", err)
	}
	if _, err := e.f.WriteString("fmt "); err != nil {
		return e.failLocked("header", err)
	}

	blockAlign := wavChannels * (wavBitsPerSample / 8)
	byteRate := wavSampleRate * blockAlign

	fields := []any{
		uint32(16),
		uint16(1), // PCM
		uint16(wavChannels),
		uint32(wavSampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(wavBitsPerSample),
	}
	for _, field := range fields {
		if err := binary.Write(e.f, binary.LittleEndian, field); err != nil {
			return e.failLocked("header", err)
		}
	}

	if _, err := e.f.WriteString("data"); err != nil {
		return e.failLocked("header", err)
	}
	if err := binary.Write(e.f, binary.LittleEndian, uint32(0)); err != nil {
		return e.failLocked("header", err)
	}
	return nil
}

// AddSamples appends 16-bit PCM samples (already mono, already 16kHz; the
// recorder is responsible for fold-down and resampling upstream).
func (e *AudioEncoder) AddSamples(samples []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("audio_encoder: write after close")
	}
	for _, s := range samples {
		if err := binary.Write(e.f, binary.LittleEndian, s); err != nil {
			return e.failLocked("add_samples", err)
		}
	}
	e.dataBytes += uint32(len(samples)) * (wavBitsPerSample / 8)
	return nil
}

// DurationSeconds returns the accumulated audio duration written so far.
func (e *AudioEncoder) DurationSeconds() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	bytesPerSec := wavSampleRate * wavChannels * (wavBitsPerSample / 8)
	return float64(e.dataBytes) / float64(bytesPerSec)
}

// Close patches the RIFF and data chunk sizes and closes the file, returning
// the finalized path.
func (e *AudioEncoder) Close() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return e.path, nil
	}
	e.closed = true

	riffSize := uint32(36) + e.dataBytes
	if _, err := e.f.Seek(4, 0); err != nil {
		e.f.Close()
		return "", fmt.Errorf("audio_encoder.close: seek riff size: %w", err)
	}
	if err := binary.Write(e.f, binary.LittleEndian, riffSize); err != nil {
		e.f.Close()
		return "", fmt.Errorf("audio_encoder.close: write riff size: %w", err)
	}
	if _, err := e.f.Seek(wavHeaderSize-4, 0); err != nil {
		e.f.Close()
		return "", fmt.Errorf("audio_encoder.close: seek data size: %w", err)
	}
	if err := binary.Write(e.f, binary.LittleEndian, e.dataBytes); err != nil {
		e.f.Close()
		return "", fmt.Errorf("audio_encoder.close: write data size: %w", err)
	}
	if err := e.f.Close(); err != nil {
		return "", fmt.Errorf("audio_encoder.close: %w", err)
	}
	return e.path, nil
}

func (e *AudioEncoder) failLocked(op string, err error) error {
	e.logger.Error("audio encoder write failed", "op", op, "path", e.path, "err", err)
	e.f.Close()
	e.closed = true
	return fmt.Errorf("audio_encoder.%s: %w", op, err)
}
