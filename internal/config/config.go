// Package config defines the shape the external configuration loader must
// produce: the Config struct, its defaults and its validation. Reading
// TOML/YAML/env layering is explicitly out of scope here (this module's
// cmd/memoired flag parser is a convenience launcher, not that subsystem);
// this package only defines what a loaded configuration must look like and
// rejects values the core cannot operate on.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds the fields the core consumes. Any field not listed here is
// ignored by callers that parse a richer configuration source.
type Config struct {
	// DataDir is the root directory for the database, video/audio chunk
	// trees and model directory. Defaults to %LOCALAPPDATA%\Memoire.
	DataDir string

	// FPS is the target capture frame rate per monitor.
	FPS float64

	// UseHWEncoding selects hardware (NVENC-style) encoding with automatic
	// fallback to software H.264 on spawn failure.
	UseHWEncoding bool

	// ChunkDuration bounds a video chunk's wall-clock length.
	ChunkDuration time.Duration

	// AudioChunkDuration bounds an audio chunk's wall-clock length.
	AudioChunkDuration time.Duration

	// OCRFPS is the indexer's rate limit for OCR iterations.
	OCRFPS uint32

	// OCRLanguage is the BCP-47 tag passed to the platform OCR service.
	OCRLanguage string

	// DedupThreshold is the maximum Hamming distance for two perceptual
	// hashes to be considered duplicates.
	DedupThreshold uint32

	// EncoderPath is the external transcoder executable.
	EncoderPath string

	// ASRModelDir holds the ONNX encoder/decoder/joiner graphs and
	// tokens.txt vocabulary.
	ASRModelDir string

	// ExtractionConcurrency caps concurrent out-of-process frame
	// extractions the OCR indexer launches per iteration.
	ExtractionConcurrency int

	// IndexerBatchSize is the number of unprocessed frames/audio chunks
	// pulled per indexer iteration.
	IndexerBatchSize int
}

const (
	defaultFPS                   = 1.0
	defaultChunkDuration         = 300 * time.Second
	defaultAudioChunkDuration    = 30 * time.Second
	defaultOCRFPS                = 10
	defaultOCRLanguage           = "en-US"
	defaultDedupThreshold        = 5
	defaultExtractionConcurrency = 4
	defaultIndexerBatchSize      = 30
	maxFPS                       = 60.0
	minFPS                       = 0.1
	maxDedupThreshold            = 64
	maxExtractionConcurrency     = 64
)

// DefaultDataDir returns the platform default data directory. On non-Windows
// build targets (used for tests and tooling) it falls back to the relative
// directory ".memoire", resolved against the working directory, so the rest
// of the pipeline can still run.
func DefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return `%LOCALAPPDATA%\Memoire`
	}
	return ".memoire"
}

// Defaults returns a Config with every field set to its documented default.
func Defaults() Config {
	return Config{
		DataDir:                DefaultDataDir(),
		FPS:                    defaultFPS,
		UseHWEncoding:          true,
		ChunkDuration:          defaultChunkDuration,
		AudioChunkDuration:     defaultAudioChunkDuration,
		OCRFPS:                 defaultOCRFPS,
		OCRLanguage:            defaultOCRLanguage,
		DedupThreshold:         defaultDedupThreshold,
		EncoderPath:            "ffmpeg",
		ASRModelDir:            "models/parakeet-tdt",
		ExtractionConcurrency:  defaultExtractionConcurrency,
		IndexerBatchSize:       defaultIndexerBatchSize,
	}
}

// ApplyDefaults fills zero-valued fields of cfg with their documented
// defaults, mirroring the teacher's applyDefaults pattern for server.Config.
func ApplyDefaults(cfg Config) Config {
	d := Defaults()
	if cfg.DataDir == "" {
		cfg.DataDir = d.DataDir
	}
	if cfg.FPS == 0 {
		cfg.FPS = d.FPS
	}
	if cfg.ChunkDuration == 0 {
		cfg.ChunkDuration = d.ChunkDuration
	}
	if cfg.AudioChunkDuration == 0 {
		cfg.AudioChunkDuration = d.AudioChunkDuration
	}
	if cfg.OCRFPS == 0 {
		cfg.OCRFPS = d.OCRFPS
	}
	if cfg.OCRLanguage == "" {
		cfg.OCRLanguage = d.OCRLanguage
	}
	if cfg.DedupThreshold == 0 {
		cfg.DedupThreshold = d.DedupThreshold
	}
	if cfg.EncoderPath == "" {
		cfg.EncoderPath = d.EncoderPath
	}
	if cfg.ASRModelDir == "" {
		cfg.ASRModelDir = d.ASRModelDir
	}
	if cfg.ExtractionConcurrency == 0 {
		cfg.ExtractionConcurrency = d.ExtractionConcurrency
	}
	if cfg.IndexerBatchSize == 0 {
		cfg.IndexerBatchSize = d.IndexerBatchSize
	}
	return cfg
}

// Validate rejects values the core cannot operate on. Callers should apply
// defaults before validating.
func Validate(cfg Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if cfg.FPS < minFPS || cfg.FPS > maxFPS {
		return fmt.Errorf("config: fps must be in [%.1f, %.1f], got %v", minFPS, maxFPS, cfg.FPS)
	}
	if cfg.ChunkDuration <= 0 {
		return fmt.Errorf("config: chunk_duration_secs must be > 0")
	}
	if cfg.AudioChunkDuration <= 0 {
		return fmt.Errorf("config: audio_chunk_duration_secs must be > 0")
	}
	if cfg.OCRFPS == 0 {
		return fmt.Errorf("config: ocr_fps must be > 0")
	}
	if cfg.DedupThreshold > maxDedupThreshold {
		return fmt.Errorf("config: dedup_threshold must be <= %d, got %d", maxDedupThreshold, cfg.DedupThreshold)
	}
	if cfg.EncoderPath == "" {
		return fmt.Errorf("config: encoder path must not be empty")
	}
	if cfg.ExtractionConcurrency <= 0 || cfg.ExtractionConcurrency > maxExtractionConcurrency {
		return fmt.Errorf("config: extraction_concurrency must be in (0, %d], got %d", maxExtractionConcurrency, cfg.ExtractionConcurrency)
	}
	if cfg.IndexerBatchSize <= 0 {
		return fmt.Errorf("config: indexer_batch_size must be > 0")
	}
	return nil
}
