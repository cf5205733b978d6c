package audiocap

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// malgoDuplicator drives one malgo.Device and republishes its callback
// samples onto a bounded Go channel so the real-time audio thread never
// blocks on a slow consumer. The ring-buffer-vs-channel choice favors a
// channel here since the consumer (internal/encode.AudioEncoder via the
// recorder) is expected to keep pace within the 30s chunk window; the
// drop-oldest policy on a full queue is the same backpressure contract a
// lock-free ring buffer would give, expressed with stdlib primitives.
type malgoDuplicator struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	endpoint EndpointInfo
	mode     Mode
	queue    chan Chunk

	mu      sync.Mutex
	started bool
	closed  bool
}

func enumerateEndpoints() ([]EndpointInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, merr.NewFatal("audiocap.enumerate_endpoints", fmt.Errorf("init context: %w", err))
	}
	defer ctx.Free()

	var endpoints []EndpointInfo

	captureDevices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, merr.NewFatal("audiocap.enumerate_endpoints", fmt.Errorf("list capture devices: %w", err))
	}
	for _, d := range captureDevices {
		endpoints = append(endpoints, EndpointInfo{ID: d.ID.String(), Name: d.Name(), Mode: ModeInput})
	}

	renderDevices, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, merr.NewFatal("audiocap.enumerate_endpoints", fmt.Errorf("list render devices: %w", err))
	}
	for _, d := range renderDevices {
		endpoints = append(endpoints, EndpointInfo{ID: d.ID.String(), Name: d.Name(), Mode: ModeLoopback})
	}

	return endpoints, nil
}

func open(endpoint EndpointInfo, mode Mode) (Duplicator, error) {
	if endpoint.Mode != mode {
		return nil, merr.NewFatal("audiocap.open",
			fmt.Errorf("endpoint %q enumerated as %s, cannot open as %s", endpoint.Name, endpoint.Mode, mode))
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, merr.NewFatal("audiocap.open", fmt.Errorf("init context: %w", err))
	}

	d := &malgoDuplicator{
		ctx:      ctx,
		endpoint: endpoint,
		mode:     mode,
		queue:    make(chan Chunk, queueCapacity),
	}
	return d, nil
}

func (d *malgoDuplicator) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	deviceType := malgo.Capture
	if d.mode == ModeLoopback {
		deviceType = malgo.Loopback
	}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 2
	deviceConfig.SampleRate = 48000
	if d.mode == ModeLoopback {
		// The loopback shared stream is polling-only; malgo selects this
		// automatically for malgo.Loopback, but the period size is kept
		// generous to avoid starving the poll loop under load.
		deviceConfig.PeriodSizeInMilliseconds = 20
	} else {
		deviceConfig.PeriodSizeInMilliseconds = 10
	}

	onRecv := func(_, input []byte, frameCount uint32) {
		samples := bytesToFloat32(input)
		chunk := Chunk{
			Samples:    append([]float32(nil), samples...),
			Channels:   int(deviceConfig.Capture.Channels),
			SampleRate: deviceConfig.SampleRate,
			Timestamp:  time.Now(),
		}
		select {
		case d.queue <- chunk:
		default:
			// Queue full: drop the oldest chunk to make room rather than
			// block the audio callback thread.
			select {
			case <-d.queue:
			default:
			}
			select {
			case d.queue <- chunk:
			default:
			}
		}
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return merr.NewFatal("audiocap.start", fmt.Errorf("init device: %w", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return merr.NewFatal("audiocap.start", fmt.Errorf("start device: %w", err))
	}

	d.device = device
	d.started = true
	return nil
}

func (d *malgoDuplicator) Samples() <-chan Chunk {
	return d.queue
}

func (d *malgoDuplicator) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	if d.device != nil {
		d.device.Stop()
		d.device.Uninit()
	}
	if d.ctx != nil {
		d.ctx.Uninit()
		d.ctx.Free()
	}
	close(d.queue)
	return nil
}

// bytesToFloat32 decodes little-endian f32 PCM bytes delivered by the
// audio callback, per the PolyphaseResampler-adjacent precedent in the
// pack's malgo consumers.
func bytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
