package encode

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestAudioEncoderWritesValidWAVHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunk.wav")

	enc, err := NewAudioEncoder(path, nil)
	if err != nil {
		t.Fatalf("NewAudioEncoder: %v", err)
	}
	samples := make([]int16, wavSampleRate) // 1 second of silence
	if err := enc.AddSamples(samples); err != nil {
		t.Fatalf("AddSamples: %v", err)
	}
	if d := enc.DurationSeconds(); d < 0.99 || d > 1.01 {
		t.Fatalf("expected ~1s duration, got %v", d)
	}
	if _, err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) < wavHeaderSize {
		t.Fatalf("file too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		t.Fatalf("missing fmt/data chunk markers")
	}

	channels := binary.LittleEndian.Uint16(data[22:24])
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	if channels != wavChannels {
		t.Fatalf("expected %d channel, got %d", wavChannels, channels)
	}
	if sampleRate != wavSampleRate {
		t.Fatalf("expected sample rate %d, got %d", wavSampleRate, sampleRate)
	}
	if bitsPerSample != wavBitsPerSample {
		t.Fatalf("expected %d bits per sample, got %d", wavBitsPerSample, bitsPerSample)
	}

	dataSize := binary.LittleEndian.Uint32(data[40:44])
	wantDataSize := uint32(len(samples)) * 2
	if dataSize != wantDataSize {
		t.Fatalf("expected data size %d, got %d", wantDataSize, dataSize)
	}
	riffSize := binary.LittleEndian.Uint32(data[4:8])
	if riffSize != 36+wantDataSize {
		t.Fatalf("expected riff size %d, got %d", 36+wantDataSize, riffSize)
	}
}

func TestAudioEncoderRejectsWriteAfterClose(t *testing.T) {
	dir := t.TempDir()
	enc, err := NewAudioEncoder(filepath.Join(dir, "chunk.wav"), nil)
	if err != nil {
		t.Fatalf("NewAudioEncoder: %v", err)
	}
	if _, err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := enc.AddSamples([]int16{1, 2, 3}); err == nil {
		t.Fatalf("expected error writing after close")
	}
}

func TestAudioEncoderCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunk.wav")
	enc, err := NewAudioEncoder(path, nil)
	if err != nil {
		t.Fatalf("NewAudioEncoder: %v", err)
	}
	if _, err := enc.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if got, err := enc.Close(); err != nil || got != path {
		t.Fatalf("second Close should be a no-op returning path, got %q err=%v", got, err)
	}
}
