// Package recorder is the central state machine (C5): one Recorder manages
// every attached monitor's video capture loop and every opened audio
// endpoint's capture loop, both driving the storage layer (C4) and the
// media encoder (C3) to produce time-sliced chunk files and their metadata
// rows.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nicolasestrem/memoire/internal/audiocap"
	"github.com/nicolasestrem/memoire/internal/capture"
	"github.com/nicolasestrem/memoire/internal/config"
	"github.com/nicolasestrem/memoire/internal/encode"
	"github.com/nicolasestrem/memoire/internal/events"
	"github.com/nicolasestrem/memoire/internal/merr"
	"github.com/nicolasestrem/memoire/internal/sanitize"
	"github.com/nicolasestrem/memoire/internal/storage"
)

// Recorder owns every monitor's and audio endpoint's capture loop. It
// mirrors the teacher's Server: a config, a shared store, a hook manager,
// a registry of live workers (here: monitors and audio endpoints) guarded
// by a mutex, and a WaitGroup tracking their goroutines.
type Recorder struct {
	cfg    config.Config
	store  *storage.Store
	logger *slog.Logger
	hooks  *events.HookManager

	mu       sync.RWMutex
	monitors map[string]*monitorState
	audios   map[string]*audioState

	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New discovers every capturable monitor via capture.EnumerateMonitors,
// opens a duplicator for each, and returns merr.Fatal if none are
// capturable (process exit code 3 per the external-interfaces contract).
// Audio capture is best-effort: enumeration or open failures are logged
// and recording proceeds video-only, since audio is an optional feature.
func New(cfg config.Config, store *storage.Store, logger *slog.Logger, hooks *events.HookManager) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	monitorInfos, err := capture.EnumerateMonitors()
	if err != nil {
		return nil, fmt.Errorf("enumerate monitors: %w", err)
	}
	if len(monitorInfos) == 0 {
		return nil, merr.NewFatal("recorder.new", fmt.Errorf("no capturable monitors"))
	}

	r := &Recorder{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		hooks:    hooks,
		monitors: make(map[string]*monitorState),
		audios:   make(map[string]*audioState),
	}

	for _, info := range monitorInfos {
		dup, openErr := capture.Open(info)
		if openErr != nil {
			logger.Error("failed to open monitor duplicator", "device", info.DeviceName, "error", openErr)
			continue
		}
		r.monitors[info.DeviceName] = newMonitorState(info, dup, cfg, store, logger, hooks)
	}
	if len(r.monitors) == 0 {
		return nil, merr.NewFatal("recorder.new", fmt.Errorf("no monitor duplicator could be opened"))
	}

	endpoints, endpointErr := audiocap.EnumerateEndpoints()
	if endpointErr != nil {
		logger.Warn("audio endpoint enumeration failed, continuing video-only", "error", endpointErr)
		return r, nil
	}
	for _, ep := range endpoints {
		dup, openErr := audiocap.Open(ep, ep.Mode)
		if openErr != nil {
			logger.Warn("failed to open audio endpoint", "endpoint", ep.Name, "error", openErr)
			continue
		}
		sanitized := sanitize.MonitorName(ep.Name)
		if ep.Mode == audiocap.ModeLoopback {
			sanitized = "loopback"
		}
		factory := defaultAudioEncoderFactory(logger)
		r.audios[ep.ID] = newAudioState(ep, ep.Mode, dup, sanitized, cfg, store, logger, factory)
	}

	return r, nil
}

func defaultAudioEncoderFactory(logger *slog.Logger) audioEncoderFactory {
	return func(path string) (audioEncoder, error) {
		return encode.NewAudioEncoder(path, logger)
	}
}

// AddMonitor registers a pre-built monitor worker, used by tests to inject
// a capture.Fake without going through OS enumeration.
func (r *Recorder) AddMonitor(info capture.MonitorInfo, dup capture.Duplicator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.monitors == nil {
		r.monitors = make(map[string]*monitorState)
	}
	r.monitors[info.DeviceName] = newMonitorState(info, dup, r.cfg, r.store, r.logger, r.hooks)
}

// AddAudioEndpoint registers a pre-built audio worker, used by tests to
// inject an audiocap.Fake.
func (r *Recorder) AddAudioEndpoint(ep audiocap.EndpointInfo, dup audiocap.Duplicator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audios == nil {
		r.audios = make(map[string]*audioState)
	}
	sanitized := sanitize.MonitorName(ep.Name)
	if ep.Mode == audiocap.ModeLoopback {
		sanitized = "loopback"
	}
	r.audios[ep.ID] = newAudioState(ep, ep.Mode, dup, sanitized, r.cfg, r.store, r.logger, defaultAudioEncoderFactory(r.logger))
}

// Start launches one goroutine per monitor and per audio endpoint. It is
// safe to call only once.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("recorder: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	monitors := make([]*monitorState, 0, len(r.monitors))
	for _, m := range r.monitors {
		monitors = append(monitors, m)
	}
	audios := make([]*audioState, 0, len(r.audios))
	for _, a := range r.audios {
		audios = append(audios, a)
	}
	r.mu.Unlock()

	for _, m := range monitors {
		r.wg.Add(1)
		go func(m *monitorState) {
			defer r.wg.Done()
			r.captureLoop(runCtx, m)
		}(m)
	}
	for _, a := range audios {
		r.wg.Add(1)
		go func(a *audioState) {
			defer r.wg.Done()
			a.run(runCtx)
		}(a)
	}

	r.logger.Info("recorder started", "monitors", len(monitors), "audio_endpoints", len(audios))
	return nil
}

// captureLoop is the outer per-monitor loop: sleep to respect the
// configured frame interval (elapsed-aware), run one step, and on
// cancellation flush the batch and finalize any open chunk before
// returning.
func (r *Recorder) captureLoop(ctx context.Context, m *monitorState) {
	interval := time.Duration(float64(time.Second) / m.cfg.FPS)

	for {
		if ctx.Err() != nil {
			shutdownCtx := context.Background()
			if err := m.flushBatch(shutdownCtx); err != nil {
				m.logger.Error("shutdown batch flush failed", "error", err)
			}
			if err := m.finalizeChunk(shutdownCtx); err != nil {
				m.logger.Error("shutdown finalize_chunk failed", "error", err)
			}
			_ = m.dup.Close()
			return
		}

		start := time.Now()
		if err := m.step(ctx); err != nil {
			m.logger.Debug("capture step error", "error", err)
		}
		elapsed := time.Since(start)

		if elapsed < interval {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(interval - elapsed):
			}
		}
	}
}

// Stop signals every worker to wind down and waits for them to finish
// flushing and finalizing their current chunks.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info("recorder stopped")
}
