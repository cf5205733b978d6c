package encode

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadWAVRoundTripsSamplesAndSampleRate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunk.wav")

	enc, err := NewAudioEncoder(path, nil)
	if err != nil {
		t.Fatalf("NewAudioEncoder: %v", err)
	}
	want := []int16{0, 100, -100, 32767, -32768, 42}
	if err := enc.AddSamples(want); err != nil {
		t.Fatalf("AddSamples: %v", err)
	}
	if _, err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, sampleRate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if sampleRate != wavSampleRate {
		t.Fatalf("expected sample rate %d, got %d", wavSampleRate, sampleRate)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestReadWAVRejectsNonWAVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-wav.bin")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	if _, _, err := ReadWAV(path); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}
