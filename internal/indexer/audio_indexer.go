package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/nicolasestrem/memoire/internal/asr"
	"github.com/nicolasestrem/memoire/internal/encode"
	"github.com/nicolasestrem/memoire/internal/events"
	"github.com/nicolasestrem/memoire/internal/storage"
)

// AudioIndexer runs the long-lived audio/ASR indexing task, the audio
// variant of §4.8: it differs from OCRIndexer in that it reads whole WAV
// files directly (no subprocess extraction), invokes the ASR engine, and
// inserts one or more transcription segments per chunk rather than a
// single text value.
type AudioIndexer struct {
	Store  *storage.Store
	Engine asr.Engine
	Logger *slog.Logger
	Hooks  *events.HookManager

	BatchSize int
	OCRFPS    uint32 // reuses the same rate-limit knob as the video indexer

	lastIteration time.Time
}

// RunOnce executes one iteration: rate-limit, fetch a batch of
// untranscribed chunks, read and transcribe each sequentially (the ONNX
// Runtime session is not assumed thread-safe), and insert segments.
func (x *AudioIndexer) RunOnce(ctx context.Context) (processed int, empty bool, err error) {
	x.waitForRateLimit()

	chunks, err := x.Store.GetAudioChunksWithoutTranscription(ctx, x.batchSize())
	if err != nil {
		return 0, false, err
	}
	if len(chunks) == 0 {
		return 0, true, nil
	}

	for _, chunk := range chunks {
		if err := x.transcribeOne(ctx, chunk); err != nil {
			return processed, false, err
		}
		processed++
	}

	if x.Hooks != nil {
		x.Hooks.TriggerEvent(ctx, *events.NewEvent(events.EventASRBatchCommitted).WithData("count", processed))
	}
	return processed, false, nil
}

// Run loops RunOnce until ctx is canceled, following the same idle/error
// sleep contract as OCRIndexer.Run.
func (x *AudioIndexer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, empty, err := x.RunOnce(ctx)
		if err != nil {
			x.logger().Error("audio indexer iteration failed", "error", err)
			sleepOrDone(ctx, 5*time.Second)
			continue
		}
		if empty {
			sleepOrDone(ctx, time.Second)
		}
	}
}

// transcribeOne reads one chunk's PCM16 samples and inserts either its
// transcribed segments or, on failure, a single empty segment so the
// chunk is not re-queued forever, mirroring OCRIndexer's failed-extraction
// policy.
func (x *AudioIndexer) transcribeOne(ctx context.Context, chunk storage.AudioChunk) error {
	pcm, sampleRate, err := encode.ReadWAV(chunk.FilePath)
	if err != nil {
		x.logger().Warn("audio chunk read failed", "chunk_id", chunk.ID, "error", err)
		_, insertErr := x.Store.InsertAudioTranscription(ctx, storage.AudioTranscription{
			AudioChunkID: chunk.ID,
			Text:         "",
			Timestamp:    chunk.Timestamp,
		})
		return insertErr
	}

	transcription, err := x.Engine.Transcribe(ctx, pcm, sampleRate)
	if err != nil {
		x.logger().Warn("asr transcription failed", "chunk_id", chunk.ID, "error", err)
		_, insertErr := x.Store.InsertAudioTranscription(ctx, storage.AudioTranscription{
			AudioChunkID: chunk.ID,
			Text:         "",
			Timestamp:    chunk.Timestamp,
		})
		return insertErr
	}

	if len(transcription.Segments) == 0 {
		_, insertErr := x.Store.InsertAudioTranscription(ctx, storage.AudioTranscription{
			AudioChunkID: chunk.ID,
			Text:         transcription.Text,
			Timestamp:    chunk.Timestamp,
		})
		return insertErr
	}

	for _, seg := range transcription.Segments {
		start := float64(seg.StartMS) / 1000
		end := float64(seg.EndMS) / 1000
		if _, insertErr := x.Store.InsertAudioTranscription(ctx, storage.AudioTranscription{
			AudioChunkID: chunk.ID,
			Text:         seg.Text,
			Timestamp:    chunk.Timestamp,
			StartTime:    &start,
			EndTime:      &end,
		}); insertErr != nil {
			return insertErr
		}
	}
	return nil
}

func (x *AudioIndexer) waitForRateLimit() {
	fps := x.OCRFPS
	if fps == 0 {
		fps = 10
	}
	minInterval := time.Second / time.Duration(fps)
	if x.lastIteration.IsZero() {
		x.lastIteration = time.Now()
		return
	}
	elapsed := time.Since(x.lastIteration)
	if elapsed < minInterval {
		time.Sleep(minInterval - elapsed)
	}
	x.lastIteration = time.Now()
}

func (x *AudioIndexer) batchSize() int {
	if x.BatchSize <= 0 {
		return 30
	}
	return x.BatchSize
}

func (x *AudioIndexer) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return slog.Default()
}
