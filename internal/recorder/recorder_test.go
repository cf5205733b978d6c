package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/nicolasestrem/memoire/internal/audiocap"
	"github.com/nicolasestrem/memoire/internal/capture"
	"github.com/nicolasestrem/memoire/internal/encode"
)

type fakeAudioEncoder struct {
	samples  []int16
	duration float64
	closed   bool
}

func (f *fakeAudioEncoder) AddSamples(samples []int16) error {
	f.samples = append(f.samples, samples...)
	f.duration += float64(len(samples)) / 16000
	return nil
}
func (f *fakeAudioEncoder) DurationSeconds() float64 { return f.duration }
func (f *fakeAudioEncoder) Close() (string, error)   { f.closed = true; return "", nil }

func newBareRecorder(t *testing.T) *Recorder {
	t.Helper()
	return &Recorder{
		cfg:      baseConfig(t),
		store:    openTestStore(t),
		logger:   testLogger(),
		hooks:    testHooks(),
		monitors: make(map[string]*monitorState),
		audios:   make(map[string]*audioState),
	}
}

func TestRecorderStartStopFlushesAndFinalizesMonitorsOnShutdown(t *testing.T) {
	r := newBareRecorder(t)
	r.cfg.FPS = 50 // fast loop so the test doesn't wait long

	info := capture.MonitorInfo{DeviceName: "DISPLAY1"}
	dup := capture.NewFake([]capture.CapturedFrame{checkerFrame(0), checkerFrame(1), checkerFrame(0), checkerFrame(1)})
	m := newMonitorState(info, dup, r.cfg, r.store, r.logger, r.hooks)
	m.newEncoder = func(ctx context.Context, outputPath string, width, height int) (videoEncoder, error) {
		return &fakeVideoEncoder{}, nil
	}
	m.newPNG = func(dir string, width, height int) (pngFallbackWriter, error) {
		return &fakePNGWriter{}, nil
	}
	m.reencode = func(ctx context.Context, binaryPath, pngDir string, fps float64, codec encode.VideoCodec, outputPath string) error {
		return nil
	}
	r.monitors[info.DeviceName] = m

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	r.Stop()

	if m.currentChunkID != 0 {
		t.Fatalf("expected chunk finalized on shutdown, currentChunkID=%d", m.currentChunkID)
	}
	if len(m.batch) != 0 {
		t.Fatalf("expected batch flushed on shutdown, still holding %d", len(m.batch))
	}

	rows, err := r.store.GetFramesWithoutOCR(context.Background(), 1000)
	if err != nil {
		t.Fatalf("query frames: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected at least one frame persisted before shutdown")
	}
}

func TestRecorderStopIsIdempotent(t *testing.T) {
	r := newBareRecorder(t)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.Stop()
	r.Stop() // must not panic or block
}

func TestRecorderStartTwiceErrors(t *testing.T) {
	r := newBareRecorder(t)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer r.Stop()
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

func TestAudioStateFinalizesChunkOnShutdown(t *testing.T) {
	cfg := baseConfig(t)
	cfg.AudioChunkDuration = time.Hour
	store := openTestStore(t)

	fake := audiocap.NewFake(8)
	var enc *fakeAudioEncoder
	factory := func(path string) (audioEncoder, error) {
		enc = &fakeAudioEncoder{}
		return enc, nil
	}
	a := newAudioState(audiocap.EndpointInfo{ID: "mic1", Name: "Microphone", Mode: audiocap.ModeInput}, audiocap.ModeInput, fake, "microphone", cfg, store, testLogger(), factory)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.run(ctx)
		close(done)
	}()

	fake.PushChunk(audiocap.Chunk{
		Samples:    []float32{0.1, 0.2, -0.1, -0.2},
		Channels:   2,
		SampleRate: 48000,
		Timestamp:  time.Now(),
	})

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if enc == nil {
		t.Fatal("expected an audio encoder to have been created")
	}
	if !enc.closed {
		t.Fatal("expected audio encoder to be closed on shutdown")
	}

	stats, err := store.GetAudioStats(context.Background())
	if err != nil {
		t.Fatalf("get audio stats: %v", err)
	}
	if stats.TotalChunks != 1 {
		t.Fatalf("expected 1 audio chunk row, got %d", stats.TotalChunks)
	}
}
