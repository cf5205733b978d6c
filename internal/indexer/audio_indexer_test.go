package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nicolasestrem/memoire/internal/asr"
	"github.com/nicolasestrem/memoire/internal/encode"
	"github.com/nicolasestrem/memoire/internal/storage"
)

func writeTestWAV(t *testing.T, samples []int16) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.wav")
	enc, err := encode.NewAudioEncoder(path, testLogger())
	if err != nil {
		t.Fatalf("NewAudioEncoder: %v", err)
	}
	if err := enc.AddSamples(samples); err != nil {
		t.Fatalf("AddSamples: %v", err)
	}
	if _, err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestAudioIndexerRunOnceTranscribesAndInsertsSegments(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	path := writeTestWAV(t, []int16{0, 100, -100, 200})
	chunkID, err := store.InsertAudioChunk(ctx, path, nil, nil)
	if err != nil {
		t.Fatalf("insert audio chunk: %v", err)
	}

	engine := asr.NewFake([]asr.Transcription{{
		Text: "hello there",
		Segments: []asr.Segment{
			{Text: "hello", StartMS: 0, EndMS: 500},
			{Text: "there", StartMS: 500, EndMS: 1000},
		},
	}})

	idx := &AudioIndexer{Store: store, Engine: engine, Logger: testLogger()}

	processed, empty, err := idx.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if empty {
		t.Fatal("expected non-empty batch")
	}
	if processed != 1 {
		t.Fatalf("expected 1 chunk processed, got %d", processed)
	}
	if engine.Calls() != 1 {
		t.Fatalf("expected 1 transcribe call, got %d", engine.Calls())
	}

	remaining, err := store.GetAudioChunksWithoutTranscription(ctx, 10)
	if err != nil {
		t.Fatalf("GetAudioChunksWithoutTranscription: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected chunk %d to no longer be pending, got %d remaining", chunkID, len(remaining))
	}
}

func TestAudioIndexerRunOnceReturnsEmptyWhenNoChunks(t *testing.T) {
	store := openTestStore(t)
	idx := &AudioIndexer{Store: store, Engine: asr.NewFake(nil), Logger: testLogger()}

	processed, empty, err := idx.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !empty {
		t.Fatal("expected empty batch")
	}
	if processed != 0 {
		t.Fatalf("expected 0 processed, got %d", processed)
	}
}

func TestAudioIndexerTranscriptionFailureRecordsEmptySegment(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	path := writeTestWAV(t, []int16{1, 2, 3})
	if _, err := store.InsertAudioChunk(ctx, path, nil, nil); err != nil {
		t.Fatalf("insert audio chunk: %v", err)
	}

	engine := asr.NewFake(nil)
	engine.FailNext(errors.New("transcription boom"))

	idx := &AudioIndexer{Store: store, Engine: engine, Logger: testLogger()}

	processed, _, err := idx.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed (empty segment on failure), got %d", processed)
	}

	remaining, err := store.GetAudioChunksWithoutTranscription(ctx, 10)
	if err != nil {
		t.Fatalf("GetAudioChunksWithoutTranscription: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected chunk to no longer be pending after empty-segment fallback, got %d remaining", len(remaining))
	}
}

func TestAudioIndexerUnreadableFileRecordsEmptySegment(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertAudioChunk(ctx, filepath.Join(t.TempDir(), "missing.wav"), nil, nil); err != nil {
		t.Fatalf("insert audio chunk: %v", err)
	}

	engine := asr.NewFake(nil)
	idx := &AudioIndexer{Store: store, Engine: engine, Logger: testLogger()}

	processed, _, err := idx.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed (empty segment on unreadable file), got %d", processed)
	}
	if engine.Calls() != 0 {
		t.Fatalf("expected ASR engine not invoked for unreadable file, got %d calls", engine.Calls())
	}
}

func TestAudioIndexerRunStopsOnContextCancellation(t *testing.T) {
	store := openTestStore(t)
	idx := &AudioIndexer{Store: store, Engine: asr.NewFake(nil), Logger: testLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		idx.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
