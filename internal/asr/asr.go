// Package asr is the ASR engine (C7): a fixed Parakeet-style transducer
// (token-duration transducer) running on ONNX Runtime. A mel-spectrogram
// front-end turns 16kHz mono PCM into encoder features; greedy transducer
// decoding over encoder/decoder/joiner graphs produces a token sequence,
// detokenized via a SentencePiece-style vocabulary file.
package asr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nicolasestrem/memoire/internal/audiocap"
)

// VocabSize is the transducer's text-token vocabulary size. Token ids
// 0..VocabSize-2 are text tokens; BlankID is the blank/non-emitting symbol.
const (
	VocabSize = 1025
	BlankID   = VocabSize - 1

	// DurationClasses is the token-duration transducer's duration head
	// width. Not specified by name anywhere the model files are
	// documented in this corpus; 5 (durations 0..4 frames) is the
	// published Parakeet-TDT convention and is treated as a fixed
	// architecture constant, not a tunable.
	DurationClasses = 5

	sampleRateHz  = 16000
	melBins       = 128
	windowSamples = 400 // 25ms at 16kHz
	hopSamples    = 160 // 10ms at 16kHz
)

// Segment is one detokenized span of the transcription with its
// frame-derived timestamps.
type Segment struct {
	Text    string
	StartMS int64
	EndMS   int64
}

// Transcription is the full result of one audio chunk's recognition.
type Transcription struct {
	Text     string
	Segments []Segment
}

// Engine recognizes 16kHz mono PCM16 audio. Missing model files are a
// recoverable, user-visible condition: New returns merr.ASRMissing rather
// than panicking, and the caller (the audio indexer) declines to start.
type Engine interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Transcription, error)
	Close() error
}

// New waits for the model directory to be populated (modeldir.go), loads
// the vocabulary and opens the encoder/decoder/joiner ONNX sessions
// (onnx.go), preferring a CUDA execution provider and falling back to CPU.
func New(ctx context.Context, modelDir string, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := WaitForModelDir(ctx, modelDir); err != nil {
		return nil, err
	}

	vocab, err := LoadVocabulary(modelDir + "/tokens.txt")
	if err != nil {
		return nil, fmt.Errorf("asr: load vocabulary: %w", err)
	}

	sessions, err := openSessions(modelDir, logger)
	if err != nil {
		return nil, err
	}

	return &onnxEngine{
		sessions: sessions,
		vocab:    vocab,
		logger:   logger,
	}, nil
}

type onnxEngine struct {
	sessions *sessionSet
	vocab    []string
	logger   *slog.Logger
}

func (e *onnxEngine) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Transcription, error) {
	if sampleRate != sampleRateHz {
		floatSamples := make([]float32, len(pcm))
		for i, s := range pcm {
			floatSamples[i] = float32(s) / 32768
		}
		resampled := audiocap.Resample(floatSamples, uint32(sampleRate), sampleRateHz)
		pcm = audiocap.ToPCM16(resampled)
	}

	melFrames, err := Spectrogram(pcm, sampleRateHz)
	if err != nil {
		return Transcription{}, fmt.Errorf("asr: spectrogram: %w", err)
	}
	melFlat := toChannelMajor(melFrames)

	encoded, encChannels, encLen, err := e.sessions.encoder.Run(melFlat, melBins, len(melFrames))
	if err != nil {
		return Transcription{}, fmt.Errorf("asr: encoder: %w", err)
	}

	return greedyDecode(ctx, encoded, encChannels, encLen, e.sessions.decoder, e.sessions.joiner, e.vocab)
}

func (e *onnxEngine) Close() error {
	return e.sessions.Close()
}

// toChannelMajor flattens [][]float32 frames (time-major: frames[t][bin])
// into the channel-major layout the ONNX graphs expect: flat[d*T+t].
func toChannelMajor(frames [][]float32) []float32 {
	if len(frames) == 0 {
		return nil
	}
	t := len(frames)
	d := len(frames[0])
	out := make([]float32, d*t)
	for ti, frame := range frames {
		for di, v := range frame {
			out[di*t+ti] = v
		}
	}
	return out
}
