package sanitize

import "testing"

func TestMonitorNameReplacesInvalidChars(t *testing.T) {
	got := MonitorName(`Dell\P2419H:1*?"<>|`)
	for _, bad := range []string{`\`, "/", ":", "*", "?", `"`, "<", ">", "|"} {
		if contains(got, bad) {
			t.Fatalf("expected %q stripped from %q", bad, got)
		}
	}
}

func TestMonitorNamePathTraversal(t *testing.T) {
	got := MonitorName("../../etc/passwd")
	if contains(got, "..") {
		t.Fatalf("expected no .. substring in %q", got)
	}
}

func TestMonitorNameReservedDeviceName(t *testing.T) {
	for _, reserved := range []string{"CON", "con", "PRN", "COM1", "LPT9", "NUL"} {
		got := MonitorName(reserved)
		if got == reserved {
			t.Fatalf("expected reserved name %q to be prefixed, got %q", reserved, got)
		}
	}
}

func TestMonitorNameEmptyFallsBackToMonitor(t *testing.T) {
	if got := MonitorName(""); got != "monitor" {
		t.Fatalf("expected 'monitor', got %q", got)
	}
	if got := MonitorName("   "); got != "monitor" {
		t.Fatalf("expected 'monitor' for whitespace input, got %q", got)
	}
}

func TestMonitorNameTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "a"
	}
	got := MonitorName(long)
	if len(got) > maxMonitorNameLen {
		t.Fatalf("expected length <= %d, got %d", maxMonitorNameLen, len(got))
	}
}

func TestMonitorNameIsFixedPoint(t *testing.T) {
	inputs := []string{
		`Dell\P2419H:1`,
		"../../etc",
		"CON",
		"",
		"   ...   ",
		"DISPLAY1",
	}
	for _, in := range inputs {
		once := MonitorName(in)
		twice := MonitorName(once)
		if once != twice {
			t.Fatalf("not a fixed point for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
