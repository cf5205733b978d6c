package asr

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// requiredModelFiles are the files a usable Parakeet-TDT model directory
// must contain before the ASR engine can open its ONNX sessions.
var requiredModelFiles = []string{"encoder.onnx", "decoder.onnx", "joiner.onnx", "tokens.txt"}

// WaitForModelDir blocks until modelDir contains every required model
// file, or returns merr.ASRMissing immediately if the directory does not
// exist and ctx has no deadline to wait out, or when ctx is cancelled
// while waiting. A populated directory at call time returns immediately
// without starting a watch.
func WaitForModelDir(ctx context.Context, modelDir string) error {
	if modelDirReady(modelDir) {
		return nil
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		if _, err := os.Stat(modelDir); os.IsNotExist(err) {
			return merr.NewASRMissing(modelDir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return merr.NewASRMissing(modelDir, err)
	}
	defer watcher.Close()

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return merr.NewASRMissing(modelDir, err)
	}
	if err := watcher.Add(modelDir); err != nil {
		return merr.NewASRMissing(modelDir, err)
	}

	if modelDirReady(modelDir) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return merr.NewASRMissing(modelDir, ctx.Err())
		case err, ok := <-watcher.Errors:
			if !ok {
				return merr.NewASRMissing(modelDir, nil)
			}
			return merr.NewASRMissing(modelDir, err)
		case _, ok := <-watcher.Events:
			if !ok {
				return merr.NewASRMissing(modelDir, nil)
			}
			if modelDirReady(modelDir) {
				return nil
			}
		}
	}
}

func modelDirReady(modelDir string) bool {
	for _, name := range requiredModelFiles {
		info, err := os.Stat(filepath.Join(modelDir, name))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}
