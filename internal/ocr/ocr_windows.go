//go:build windows

package ocr

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/go-ole/go-ole"
	"github.com/saltosystems/winrt-go/windows/globalization"
	"github.com/saltosystems/winrt-go/windows/graphics/imaging"
	"github.com/saltosystems/winrt-go/windows/media/ocr"
	"github.com/saltosystems/winrt-go/windows/storage/streams"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// windowsEngine wraps a Windows.Media.Ocr.OcrEngine bound to one language.
// The underlying COM object is not documented as thread-safe, so callers
// (the indexer) must serialize Recognize calls.
type windowsEngine struct {
	mu     sync.Mutex
	engine *ocr.OcrEngine
	lang   string
	closed bool
}

func newEngine(language string) (Engine, error) {
	_ = ole.RoInitialize(1 /* RO_INIT_MULTITHREADED */)

	profileLang, err := globalization.NewLanguage(language)
	if err != nil {
		return nil, merr.NewOCRFailure("ocr.new", fmt.Errorf("create language %q: %w", language, err))
	}
	defer profileLang.Release()

	if supported, err := ocr.OcrEngineIsLanguageSupported(profileLang); err != nil || !supported {
		return nil, merr.NewOCRFailure("ocr.new",
			fmt.Errorf("language %q not installed for Windows OCR", language))
	}

	eng, err := ocr.OcrEngineTryCreateFromLanguage(profileLang)
	if err != nil || eng == nil {
		return nil, merr.NewOCRFailure("ocr.new", fmt.Errorf("create OcrEngine for %q: %w", language, err))
	}

	return &windowsEngine{engine: eng, lang: language}, nil
}

// Recognize wraps data in an in-memory BMP container (BitmapEncoder into an
// InMemoryRandomAccessStream), decodes it back into a SoftwareBitmap and
// invokes RecognizeAsync, per Windows.Media.Ocr's documented input contract
// of accepting a SoftwareBitmap rather than a raw pixel buffer.
func (e *windowsEngine) Recognize(data []byte, width, height int, language string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("engine closed"))
	}
	if language != "" && language != e.lang {
		return Result{}, merr.NewOCRFailure("ocr.recognize",
			fmt.Errorf("engine bound to %q, cannot recognize %q without reopening", e.lang, language))
	}

	stream, err := streams.NewInMemoryRandomAccessStream()
	if err != nil {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("create stream: %w", err))
	}
	defer stream.Release()

	encoder, err := imaging.BitmapEncoderCreateAsync(imaging.BitmapEncoderBmpEncoderId(), stream)
	if err != nil {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("create bitmap encoder: %w", err))
	}
	defer encoder.Release()

	buffer, err := streams.NewBufferFromBytes(data)
	if err != nil {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("wrap pixel buffer: %w", err))
	}
	defer buffer.Release()

	if err := encoder.SetPixelData(
		imaging.BitmapPixelFormatRgba8(),
		imaging.BitmapAlphaModeStraight(),
		uint32(width), uint32(height), 96, 96, buffer,
	); err != nil {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("set pixel data: %w", err))
	}
	if err := encoder.FlushAsync(); err != nil {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("flush bitmap encoder: %w", err))
	}

	decoder, err := imaging.BitmapDecoderCreateAsync(stream)
	if err != nil {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("create bitmap decoder: %w", err))
	}
	defer decoder.Release()

	softwareBitmap, err := decoder.GetSoftwareBitmapAsync()
	if err != nil {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("decode software bitmap: %w", err))
	}
	defer softwareBitmap.Release()

	ocrResult, err := e.engine.RecognizeAsync(softwareBitmap)
	if err != nil {
		return Result{}, merr.NewOCRFailure("ocr.recognize", fmt.Errorf("recognize: %w", err))
	}

	return buildResult(ocrResult), nil
}

// buildResult concatenates per-line text with newlines and scores each
// line's heuristic confidence (§4.6), since the platform yields none.
func buildResult(r *ocr.OcrResult) Result {
	ocrLines := r.GetLines()
	lines := make([]Line, 0, len(ocrLines))
	var textBuf bytes.Buffer

	for i, ol := range ocrLines {
		text := ol.GetText()
		rect := ol.GetBoundingRect()
		lines = append(lines, Line{
			Text: text,
			BBox: BBox{
				X:      int(rect.X),
				Y:      int(rect.Y),
				Width:  int(rect.Width),
				Height: int(rect.Height),
			},
			Confidence: scoreLine(text),
		})
		if i > 0 {
			textBuf.WriteByte('\n')
		}
		textBuf.WriteString(text)
	}

	return Result{
		Text:       textBuf.String(),
		Lines:      lines,
		Confidence: aggregateConfidence(lines),
	}
}

func (e *windowsEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.engine.Release()
	return nil
}
