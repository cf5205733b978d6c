package capture

import (
	"fmt"

	"github.com/nicolasestrem/memoire/internal/merr"
)

func errUnsupportedPlatform(device string) error {
	return merr.NewFatal("capture.open",
		fmt.Errorf("display duplication is only available on windows (device %q)", device))
}
