package indexer

import (
	"context"
	"errors"
	"sync"
)

// FakeExtractor is a deterministic FrameExtractor for tests: it returns a
// scripted frame buffer per (chunkPath, offsetIndex) pair, or a scripted
// failure if one was set for that key.
type FakeExtractor struct {
	mu          sync.Mutex
	frames      map[string][]byte
	fail        map[string]error
	calls       int
	defaultData []byte
}

func NewFakeExtractor() *FakeExtractor {
	return &FakeExtractor{frames: make(map[string][]byte), fail: make(map[string]error)}
}

func (f *FakeExtractor) key(chunkPath string, offsetIndex int) string {
	return chunkPath + "#" + itoaIndexer(offsetIndex)
}

// SetFrame scripts the bytes Extract returns for one (chunkPath,
// offsetIndex) pair.
func (f *FakeExtractor) SetFrame(chunkPath string, offsetIndex int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[f.key(chunkPath, offsetIndex)] = data
}

// SetDefaultFrame scripts the bytes returned for any pair without its own
// SetFrame entry.
func (f *FakeExtractor) SetDefaultFrame(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultData = data
}

// FailFrame scripts an error for one (chunkPath, offsetIndex) pair.
func (f *FakeExtractor) FailFrame(chunkPath string, offsetIndex int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[f.key(chunkPath, offsetIndex)] = err
}

func (f *FakeExtractor) Extract(ctx context.Context, chunkPath string, offsetIndex, width, height int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	key := f.key(chunkPath, offsetIndex)
	if err, ok := f.fail[key]; ok {
		return nil, err
	}
	if data, ok := f.frames[key]; ok {
		return data, nil
	}
	if f.defaultData != nil {
		return f.defaultData, nil
	}
	return nil, errors.New("fake extractor: no scripted frame")
}

func (f *FakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func itoaIndexer(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
