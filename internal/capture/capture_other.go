//go:build !windows

package capture

// On non-Windows platforms there is no Desktop Duplication / Windows.Graphics.
// Capture surface to bind to, so enumeration reports no monitors and Open
// always fails; callers wanting a capture source off Windows should use
// NewFake directly.
func enumerateMonitors() ([]MonitorInfo, error) {
	return nil, nil
}

func open(info MonitorInfo) (Duplicator, error) {
	return nil, errUnsupportedPlatform(info.DeviceName)
}
