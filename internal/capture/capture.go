// Package capture is the display duplicator (C1): one capture endpoint per
// attached monitor, each producing tightly-packed RGBA still frames on
// demand. The real endpoint is backed by Windows.Graphics.Capture and only
// builds under GOOS=windows; a Fake implementation is always available for
// tests and non-Windows development.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// CapturedFrame is one still captured from a monitor: tightly-packed 8-bit
// RGBA in row-major order, one pixel per 4 bytes, no inter-row padding.
type CapturedFrame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// MonitorInfo describes one enumerated display output.
type MonitorInfo struct {
	DeviceName   string // stable, e.g. "\\.\DISPLAY1"
	AdapterIndex int
	OutputIndex  int
	Width        int
	Height       int
}

// Duplicator is one open capture endpoint for a single monitor. Callers must
// call Close to release the underlying duplication resources.
type Duplicator interface {
	// CaptureFrame blocks up to timeout waiting for a changed frame. It
	// returns (frame, true, nil) on a new frame, (zero, false, nil) when the
	// compositor reports "unchanged" within the timeout, or a non-nil error
	// from the merr taxonomy (CaptureTransient, CaptureLost) on failure.
	CaptureFrame(ctx context.Context, timeout time.Duration) (CapturedFrame, bool, error)
	Close() error
}

// EnumerateMonitors lists every attached display output. On non-Windows
// builds this always returns an empty, nil-error result; callers needing a
// deterministic set for tests should use the Fake duplicator directly.
func EnumerateMonitors() ([]MonitorInfo, error) {
	return enumerateMonitors()
}

// Open opens a duplication endpoint for the given monitor.
func Open(info MonitorInfo) (Duplicator, error) {
	return open(info)
}

// MaxConsecutiveFailures is the threshold after which the caller must fully
// reinitialize a capture endpoint, per spec §4.1/§4.5.
const MaxConsecutiveFailures = 10

// ValidateFrameBuffer checks the invariants the duplicator guarantees about
// a raw frame buffer before it is handed to the encoder: row pitch must
// cover the claimed width, and the buffer must not overflow width*height*4.
// Violations are reported as CaptureTransient (FrameAcquisition), per
// spec §4.1.
func ValidateFrameBuffer(data []byte, width, height, rowPitch int) error {
	if rowPitch < width*4 {
		return merr.NewCaptureTransient("validate_frame_buffer",
			fmt.Errorf("row pitch %d shorter than width*4 (%d)", rowPitch, width*4))
	}
	want := width * height * 4
	if len(data) < want {
		return merr.NewCaptureTransient("validate_frame_buffer",
			fmt.Errorf("buffer length %d shorter than width*height*4 (%d)", len(data), want))
	}
	return nil
}
