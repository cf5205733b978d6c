package indexer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nicolasestrem/memoire/internal/events"
	"github.com/nicolasestrem/memoire/internal/ocr"
	"github.com/nicolasestrem/memoire/internal/storage"
)

// OCRIndexer runs the long-lived video/OCR indexing task (§4.8): it pulls
// frames with no ocr_text row, extracts each frame's raw image out of its
// chunk file, recognizes text sequentially, and commits the results.
type OCRIndexer struct {
	Store     *storage.Store
	Extractor FrameExtractor
	Engine    ocr.Engine
	Logger    *slog.Logger
	Hooks     *events.HookManager

	BatchSize   int
	Concurrency int
	OCRFPS      uint32
	Language    string

	lastIteration time.Time
}

type extractedFrame struct {
	frame  storage.Frame
	data   []byte
	width  int
	height int
	err    error
}

// RunOnce executes one iteration of the §4.8 algorithm: rate-limit,
// fetch a batch, extract concurrently, recognize sequentially, insert.
// It returns the number of frames processed and whether the batch was
// empty (callers use this to decide the idle-sleep).
func (x *OCRIndexer) RunOnce(ctx context.Context) (processed int, empty bool, err error) {
	x.waitForRateLimit()

	frames, err := x.Store.GetFramesWithoutOCR(ctx, x.batchSize())
	if err != nil {
		return 0, false, err
	}
	if len(frames) == 0 {
		return 0, true, nil
	}

	extracted := x.extractBatch(ctx, frames)

	for _, ef := range extracted {
		text, textJSON, confidence := x.recognize(ef)
		if _, insertErr := x.Store.InsertOCRText(ctx, ef.frame.ID, text, textJSON, confidence); insertErr != nil {
			return processed, false, insertErr
		}
		processed++
	}

	if x.Hooks != nil {
		x.Hooks.TriggerEvent(ctx, *events.NewEvent(events.EventOCRBatchCommitted).WithData("count", processed))
	}
	return processed, false, nil
}

// Run loops RunOnce until ctx is canceled, sleeping 1s on an empty batch
// and 5s after an iteration error, per §4.8's error-recovery contract.
func (x *OCRIndexer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, empty, err := x.RunOnce(ctx)
		if err != nil {
			x.logger().Error("ocr indexer iteration failed", "error", err)
			sleepOrDone(ctx, 5*time.Second)
			continue
		}
		if empty {
			sleepOrDone(ctx, time.Second)
		}
	}
}

func (x *OCRIndexer) waitForRateLimit() {
	fps := x.OCRFPS
	if fps == 0 {
		fps = 10
	}
	minInterval := time.Second / time.Duration(fps)
	if x.lastIteration.IsZero() {
		x.lastIteration = time.Now()
		return
	}
	elapsed := time.Since(x.lastIteration)
	if elapsed < minInterval {
		time.Sleep(minInterval - elapsed)
	}
	x.lastIteration = time.Now()
}

func (x *OCRIndexer) batchSize() int {
	if x.BatchSize <= 0 {
		return 30
	}
	return x.BatchSize
}

func (x *OCRIndexer) concurrency() int64 {
	if x.Concurrency <= 0 {
		return 4
	}
	return int64(x.Concurrency)
}

// extractBatch launches one goroutine per frame, bounded by a weighted
// semaphore capped at x.Concurrency, mirroring the spec's "blocking work
// pool" with the buffered-stream concurrency cap translated to Go's
// goroutine-plus-semaphore idiom: no separate pool type is needed since
// goroutines are cheap and the scheduler already multiplexes them.
func (x *OCRIndexer) extractBatch(ctx context.Context, frames []storage.Frame) []extractedFrame {
	results := make([]extractedFrame, len(frames))
	sem := semaphore.NewWeighted(x.concurrency())
	g, gctx := errgroup.WithContext(ctx)

	var chunkMu sync.Mutex
	chunkCache := make(map[int64]storage.VideoChunk)
	for i, f := range frames {
		i, f := i, f
		results[i].frame = f
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i].err = err
				return nil
			}
			defer sem.Release(1)

			chunkMu.Lock()
			chunk, ok := chunkCache[f.VideoChunkID]
			chunkMu.Unlock()
			if !ok {
				var err error
				chunk, err = x.Store.GetChunkByID(ctx, f.VideoChunkID)
				if err != nil {
					results[i].err = err
					return nil
				}
				chunkMu.Lock()
				chunkCache[f.VideoChunkID] = chunk
				chunkMu.Unlock()
			}

			width, height := 0, 0
			if chunk.Width != nil {
				width = *chunk.Width
			}
			if chunk.Height != nil {
				height = *chunk.Height
			}

			data, err := x.Extractor.Extract(ctx, chunk.FilePath, f.OffsetIndex, width, height)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].data = data
			results[i].width = width
			results[i].height = height
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// recognize runs OCR sequentially since the platform OCR service is not
// known to be thread-safe. A failed extraction or recognition is reported
// as an empty OCR result so the frame is not re-queued forever.
func (x *OCRIndexer) recognize(ef extractedFrame) (text string, textJSON *string, confidence *float64) {
	if ef.err != nil || ef.data == nil {
		return "", nil, nil
	}
	result, err := x.Engine.Recognize(ef.data, ef.width, ef.height, x.Language)
	if err != nil {
		x.logger().Warn("ocr recognition failed", "frame_id", ef.frame.ID, "error", err)
		return "", nil, nil
	}
	c := result.Confidence
	return result.Text, linesJSON(result.Lines, x.logger()), &c
}

// linesJSON serializes a recognition result's per-line geometry into the
// ocr_text.text_json column. A marshal failure (none of Result.Lines's
// fields can produce one) is logged and treated as "no geometry" rather
// than discarding the already-recognized text.
func linesJSON(lines []ocr.Line, log *slog.Logger) *string {
	if len(lines) == 0 {
		return nil
	}
	data, err := json.Marshal(lines)
	if err != nil {
		log.Warn("failed to marshal ocr line geometry", "error", err)
		return nil
	}
	s := string(data)
	return &s
}

func (x *OCRIndexer) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return slog.Default()
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
