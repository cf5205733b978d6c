package audiocap

import (
	"context"
	"testing"
	"time"
)

func TestModeString(t *testing.T) {
	if ModeInput.String() != "input" {
		t.Fatalf("got %q", ModeInput.String())
	}
	if ModeLoopback.String() != "loopback" {
		t.Fatalf("got %q", ModeLoopback.String())
	}
}

func TestFakeDeliversPushedChunks(t *testing.T) {
	fake := NewFake(4)
	if err := fake.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !fake.Started() {
		t.Fatal("expected Started() true after Start")
	}

	want := Chunk{Samples: []float32{0.1, -0.2, 0.3}, Channels: 2, SampleRate: 48000, Timestamp: time.Now()}
	fake.PushChunk(want)

	select {
	case got := <-fake.Samples():
		if len(got.Samples) != len(want.Samples) || got.Channels != want.Channels {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pushed chunk")
	}
}

func TestFakeCloseIsIdempotentAndDrainsCleanly(t *testing.T) {
	fake := NewFake(2)
	if err := fake.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := fake.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// PushChunk after Close must not panic on a closed channel.
	fake.PushChunk(Chunk{Samples: []float32{1}})

	_, ok := <-fake.Samples()
	if ok {
		t.Fatal("expected closed channel to drain to zero value with ok=false")
	}
}

func TestOpenRejectsModeMismatch(t *testing.T) {
	endpoint := EndpointInfo{ID: "dev1", Name: "Mic", Mode: ModeInput}
	if _, err := open(endpoint, ModeLoopback); err == nil {
		t.Fatal("expected error opening an input-enumerated endpoint as loopback")
	}
}
