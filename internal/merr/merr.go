// Package merr defines the typed error taxonomy shared by the capture,
// encode, storage, OCR/ASR and search layers. Failures that callers need to
// classify are returned as one of these types (directly or wrapped with
// fmt.Errorf("...: %w", err)); other errors, such as config validation
// failures, are plain wrapped errors. Callers classify with
// errors.As/errors.Is and apply the policy documented next to each type.
package merr

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"
)

// captureMarker is implemented by the two capture-layer error types so
// callers can classify them together (e.g. to decide when to reinitialize
// a duplication endpoint).
type captureMarker interface {
	error
	isCapture()
}

// CaptureTransient reports a single-frame acquisition failure (mapping,
// pitch, null source pointer). The caller counts consecutive occurrences;
// it is never fatal on its own.
type CaptureTransient struct {
	Op  string
	Err error
}

func (e *CaptureTransient) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture transient: %s", e.Op)
	}
	return fmt.Sprintf("capture transient: %s: %v", e.Op, e.Err)
}
func (e *CaptureTransient) Unwrap() error { return e.Err }
func (e *CaptureTransient) isCapture()    {}

// CaptureLost reports a duplication endpoint access loss (UAC elevation
// prompt, secure-desktop switch). The caller must discard and reopen the
// endpoint immediately.
type CaptureLost struct {
	Op  string
	Err error
}

func (e *CaptureLost) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture lost: %s", e.Op)
	}
	return fmt.Sprintf("capture lost: %s: %v", e.Op, e.Err)
}
func (e *CaptureLost) Unwrap() error { return e.Err }
func (e *CaptureLost) isCapture()    {}

// EncoderPipe reports a broken subprocess pipe mid-chunk. The caller falls
// back once to the PNG-then-encode path and resets the chunk.
type EncoderPipe struct {
	Op  string
	Err error
}

func (e *EncoderPipe) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("encoder pipe error: %s", e.Op)
	}
	return fmt.Sprintf("encoder pipe error: %s: %v", e.Op, e.Err)
}
func (e *EncoderPipe) Unwrap() error { return e.Err }

// EncoderSpawn reports that the external transcoder could not be started
// at all (missing binary, invalid arguments). The recorder's capture loop
// logs it and keeps running; cmd/memoired does not map it to an exit code.
type EncoderSpawn struct {
	Op  string
	Err error
}

func (e *EncoderSpawn) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("encoder spawn error: %s", e.Op)
	}
	return fmt.Sprintf("encoder spawn error: %s: %v", e.Op, e.Err)
}
func (e *EncoderSpawn) Unwrap() error { return e.Err }

// DBError reports a storage read/write failure (covers both Db busy and
// generic Db errors from spec's taxonomy; busy-ness is distinguished via
// IsDBBusy). Neither indexer retries it within an iteration: the failed
// iteration is logged and the Run loop waits 5s before the next one. The
// recorder returns or logs it.
type DBError struct {
	Op   string
	Busy bool
	Err  error
}

func (e *DBError) Error() string {
	kind := "db error"
	if e.Busy {
		kind = "db busy"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", kind, e.Op, e.Err)
}
func (e *DBError) Unwrap() error { return e.Err }

// OCRFailure reports that recognition failed for a single frame. Policy:
// store an empty OCR row so the frame is not re-queued forever.
type OCRFailure struct {
	Op  string
	Err error
}

func (e *OCRFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ocr failure: %s", e.Op)
	}
	return fmt.Sprintf("ocr failure: %s: %v", e.Op, e.Err)
}
func (e *OCRFailure) Unwrap() error { return e.Err }

// ASRMissing reports that the ASR model files are absent. The audio
// indexer declines to start and this is surfaced as a one-line diagnostic.
type ASRMissing struct {
	ModelDir string
	Err      error
}

func (e *ASRMissing) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("asr model missing: %s", e.ModelDir)
	}
	return fmt.Sprintf("asr model missing: %s: %v", e.ModelDir, e.Err)
}
func (e *ASRMissing) Unwrap() error { return e.Err }

// BadRequest reports an empty or malformed search query, rejected at the
// query layer before any DB work happens.
type BadRequest struct {
	Op  string
	Err error
}

func (e *BadRequest) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("bad request: %s", e.Op)
	}
	return fmt.Sprintf("bad request: %s: %v", e.Op, e.Err)
}
func (e *BadRequest) Unwrap() error { return e.Err }

// Fatal reports an unrecoverable startup condition: storage cannot be
// opened, no monitors are capturable, or sanitization produced an empty
// result even after the fallback. The process must terminate.
type Fatal struct {
	Op  string
	Err error
}

func (e *Fatal) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fatal: %s", e.Op)
	}
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}
func (e *Fatal) Unwrap() error { return e.Err }

// TimeoutError indicates an operation exceeded a deadline (capture_frame,
// subprocess join on shutdown, indexer iteration backoff).
type TimeoutError struct {
	Op       string
	Duration time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout: %s (after %s)", e.Op, e.Duration)
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}
func (e *TimeoutError) Unwrap() error { return e.Err }

// IsCaptureFailure reports whether err is (or wraps) CaptureTransient or
// CaptureLost.
func IsCaptureFailure(err error) bool {
	if err == nil {
		return false
	}
	var cm captureMarker
	return stdErrors.As(err, &cm)
}

// IsCaptureLost reports whether err is (or wraps) CaptureLost specifically,
// which requires immediate endpoint reinitialization.
func IsCaptureLost(err error) bool {
	var cl *CaptureLost
	return stdErrors.As(err, &cl)
}

// IsFatal reports whether err is (or wraps) Fatal.
func IsFatal(err error) bool {
	var f *Fatal
	return stdErrors.As(err, &f)
}

// IsDBBusy reports whether err is a DBError with Busy set.
func IsDBBusy(err error) bool {
	var d *DBError
	if stdErrors.As(err, &d) {
		return d.Busy
	}
	return false
}

// IsTimeout reports whether err is (or wraps) a TimeoutError or a context
// deadline exceeded.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if stdErrors.As(err, &te) {
		return true
	}
	return stdErrors.Is(err, context.DeadlineExceeded)
}

// Constructors. Callers are encouraged to keep layering context with
// fmt.Errorf("...: %w", err) above these where useful.
func NewCaptureTransient(op string, cause error) error { return &CaptureTransient{Op: op, Err: cause} }
func NewCaptureLost(op string, cause error) error      { return &CaptureLost{Op: op, Err: cause} }
func NewEncoderPipe(op string, cause error) error      { return &EncoderPipe{Op: op, Err: cause} }
func NewEncoderSpawn(op string, cause error) error     { return &EncoderSpawn{Op: op, Err: cause} }
func NewDBError(op string, busy bool, cause error) error {
	return &DBError{Op: op, Busy: busy, Err: cause}
}
func NewOCRFailure(op string, cause error) error { return &OCRFailure{Op: op, Err: cause} }
func NewASRMissing(modelDir string, cause error) error {
	return &ASRMissing{ModelDir: modelDir, Err: cause}
}
func NewBadRequest(op string, cause error) error { return &BadRequest{Op: op, Err: cause} }
func NewFatal(op string, cause error) error      { return &Fatal{Op: op, Err: cause} }
func NewTimeout(op string, d time.Duration, cause error) error {
	return &TimeoutError{Op: op, Duration: d, Err: cause}
}
