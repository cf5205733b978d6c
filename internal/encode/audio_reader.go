package encode

import (
	"encoding/binary"
	"fmt"
	"os"
)

// ReadWAV reads a PCM16 mono WAV file written by AudioEncoder back into
// samples, returning the sample rate recorded in the file's fmt chunk. It
// is the read-side counterpart the audio indexer uses to hand whole chunk
// files to the ASR engine.
func ReadWAV(path string) ([]int16, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read_wav: %w", err)
	}
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("read_wav: not a RIFF/WAVE file")
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	if bitsPerSample != wavBitsPerSample {
		return nil, 0, fmt.Errorf("read_wav: unsupported bits per sample %d", bitsPerSample)
	}

	dataStart, dataSize, err := findDataChunk(data)
	if err != nil {
		return nil, 0, err
	}

	n := dataSize / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		off := dataStart + i*2
		samples[i] = int16(binary.LittleEndian.Uint16(data[off : off+2]))
	}
	return samples, sampleRate, nil
}

// findDataChunk locates the "data" RIFF subchunk, which AudioEncoder always
// places immediately after the 16-byte PCM fmt chunk but is searched for
// generically in case an upstream tool wrote extra chunks in between.
func findDataChunk(data []byte) (start, size int, err error) {
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if id == "data" {
			if body+chunkSize > len(data) {
				chunkSize = len(data) - body
			}
			return body, chunkSize, nil
		}
		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++ // RIFF chunks are word-aligned
		}
	}
	return 0, 0, fmt.Errorf("read_wav: no data chunk found")
}
