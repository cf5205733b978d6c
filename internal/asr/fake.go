package asr

import (
	"context"
	"sync"
)

// Fake is a deterministic Engine used by tests and by development builds
// without ONNX Runtime or real model files installed.
type Fake struct {
	mu          sync.Mutex
	transcripts []Transcription
	next        int
	failNext    error
	closed      bool
	calls       int
}

// NewFake builds a Fake engine that replays transcriptions in order,
// repeating the last one once exhausted. If transcripts is empty,
// Transcribe returns an empty Transcription.
func NewFake(transcripts []Transcription) *Fake {
	return &Fake{transcripts: transcripts}
}

// FailNext arranges for the next Transcribe call to return err instead of
// a transcription.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

func (f *Fake) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Transcription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return Transcription{}, err
	}
	if len(f.transcripts) == 0 {
		return Transcription{}, nil
	}
	idx := f.next
	if idx >= len(f.transcripts) {
		idx = len(f.transcripts) - 1
	} else {
		f.next++
	}
	return f.transcripts[idx], nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls reports how many times Transcribe has been invoked.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
