package capture

import (
	"context"
	"sync"
	"time"
)

// Fake is a deterministic, non-Windows Duplicator used by tests and by
// development builds off Windows. It replays a fixed list of frames (and
// reports "unchanged" if none are supplied) and can be told to fail in the
// two ways the real endpoint can.
type Fake struct {
	mu        sync.Mutex
	frames    []CapturedFrame
	next      int
	closed    bool
	failNext  error // returned once, then cleared
	noFrame   bool  // when true, CaptureFrame reports "unchanged" once
	closeHook func()
}

// NewFake builds a Fake duplicator that replays frames in order, repeating
// the last frame once exhausted. If frames is empty, CaptureFrame always
// reports "unchanged".
func NewFake(frames []CapturedFrame) *Fake {
	return &Fake{frames: frames}
}

// FailNext arranges for the next CaptureFrame call to return err instead of
// a frame.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// SkipNext arranges for the next CaptureFrame call to report "unchanged".
func (f *Fake) SkipNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noFrame = true
}

func (f *Fake) CaptureFrame(_ context.Context, _ time.Duration) (CapturedFrame, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return CapturedFrame{}, false, err
	}
	if f.noFrame {
		f.noFrame = false
		return CapturedFrame{}, false, nil
	}
	if len(f.frames) == 0 {
		return CapturedFrame{}, false, nil
	}

	idx := f.next
	if idx >= len(f.frames) {
		idx = len(f.frames) - 1
	} else {
		f.next++
	}
	frame := f.frames[idx]
	frame.Timestamp = time.Now()
	return frame, true, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.closeHook != nil {
		f.closeHook()
	}
	return nil
}

// Closed reports whether Close has been called, for test assertions.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SolidFrame builds a width*height RGBA frame filled with one color, useful
// for perceptual-hash and dedup tests.
func SolidFrame(width, height int, r, g, b, a byte) CapturedFrame {
	data := make([]byte, width*height*4)
	for i := 0; i < len(data); i += 4 {
		data[i] = r
		data[i+1] = g
		data[i+2] = b
		data[i+3] = a
	}
	return CapturedFrame{Data: data, Width: width, Height: height}
}
