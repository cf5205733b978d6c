package ocr

import (
	"fmt"
	"sync"
)

// Fake is a deterministic Engine used by tests and by development builds
// off Windows. It returns a scripted Result per call, or synthesizes one
// from raw text via NewFakeResult.
type Fake struct {
	mu       sync.Mutex
	results  []Result
	next     int
	failNext error
	closed   bool
	calls    int
}

// NewFake builds a Fake engine that replays results in order, repeating the
// last result once exhausted. If results is empty, Recognize returns an
// empty Result.
func NewFake(results []Result) *Fake {
	return &Fake{results: results}
}

// NewFakeResult builds a single Result from raw per-line text, scoring
// confidence with the same heuristic as the real engine.
func NewFakeResult(lines ...string) Result {
	built := make([]Line, 0, len(lines))
	var text string
	for i, l := range lines {
		built = append(built, Line{Text: l, Confidence: scoreLine(l)})
		if i > 0 {
			text += "\n"
		}
		text += l
	}
	return Result{Text: text, Lines: built, Confidence: aggregateConfidence(built)}
}

// FailNext arranges for the next Recognize call to return err instead of a
// result.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

func (f *Fake) Recognize(data []byte, width, height int, language string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return Result{}, err
	}
	if len(f.results) == 0 {
		return Result{}, nil
	}
	idx := f.next
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	} else {
		f.next++
	}
	return f.results[idx], nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("ocr: fake engine already closed")
	}
	f.closed = true
	return nil
}

// Calls reports how many times Recognize has been invoked.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
