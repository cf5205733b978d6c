//go:build !windows

package ocr

import (
	"fmt"

	"github.com/nicolasestrem/memoire/internal/merr"
)

// On non-Windows platforms there is no Windows.Media.Ocr surface to bind
// to, so engine construction always fails; callers wanting a deterministic
// engine off Windows should use Fake.
func newEngine(language string) (Engine, error) {
	return nil, merr.NewOCRFailure("ocr.new", fmt.Errorf("platform OCR unavailable on this OS (language %q)", language))
}
