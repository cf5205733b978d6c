// Package audiocap is the audio duplicator (C2): one endpoint capturing
// either a microphone (input, event-driven shared mode) or system output
// (loopback, polling shared mode is mandatory for loopback at the OS
// layer). Delivers f32 interleaved PCM over an in-process queue. The
// fold-down to mono, resampling and PCM16 conversion helpers (FoldToMono,
// Resample, ToPCM16) live in this package and are applied by
// internal/recorder, which also frames the samples into chunks.
package audiocap

import (
	"context"
	"time"
)

// Mode selects which WASAPI shared-mode stream an endpoint opens.
type Mode int

const (
	ModeInput Mode = iota
	ModeLoopback
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeLoopback:
		return "loopback"
	default:
		return "unknown"
	}
}

// EndpointInfo describes one enumerated render or capture endpoint.
type EndpointInfo struct {
	ID   string
	Name string
	Mode Mode
}

// Chunk is one batch of interleaved f32 PCM samples delivered from the
// audio callback thread, copied out so the caller owns the backing array.
type Chunk struct {
	Samples    []float32
	Channels   int
	SampleRate uint32
	Timestamp  time.Time
}

// Duplicator is one open audio capture endpoint. Samples returns the
// in-process delivery queue; it is closed when the duplicator stops.
type Duplicator interface {
	Start(ctx context.Context) error
	Samples() <-chan Chunk
	Close() error
}

// EnumerateEndpoints lists capture (microphone) and render (for loopback)
// endpoints.
func EnumerateEndpoints() ([]EndpointInfo, error) {
	return enumerateEndpoints()
}

// Open opens endpoint in the given mode. Input and loopback are mutually
// exclusive at the OS layer: an endpoint enumerated as one cannot be opened
// as the other.
func Open(endpoint EndpointInfo, mode Mode) (Duplicator, error) {
	return open(endpoint, mode)
}

// queueCapacity bounds the in-process delivery queue; the audio callback
// drops the oldest chunk rather than blocking when the consumer falls
// behind, matching the real-time constraint on the callback thread.
const queueCapacity = 64
