package main

import (
	"testing"

	"github.com/nicolasestrem/memoire/internal/config"
)

func TestParseFlagsDefaults(t *testing.T) {
	cli, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	d := config.Defaults()
	if cli.dataDir != d.DataDir {
		t.Errorf("dataDir = %q, want %q", cli.dataDir, d.DataDir)
	}
	if cli.fps != d.FPS {
		t.Errorf("fps = %v, want %v", cli.fps, d.FPS)
	}
	if cli.ocrLanguage != d.OCRLanguage {
		t.Errorf("ocrLanguage = %q, want %q", cli.ocrLanguage, d.OCRLanguage)
	}
	if cli.logLevel != "info" {
		t.Errorf("logLevel = %q, want info", cli.logLevel)
	}
	if cli.requireOCR || cli.requireASR {
		t.Error("requireOCR/requireASR should default to false")
	}
	if cli.hookConcurrency != 10 {
		t.Errorf("hookConcurrency = %d, want 10", cli.hookConcurrency)
	}
}

func TestParseFlagsOverridesAndToConfig(t *testing.T) {
	cli, err := parseFlags([]string{
		"-data-dir", "/tmp/memoire-test",
		"-fps", "2.5",
		"-ocr-language", "fr-FR",
		"-extraction-concurrency", "8",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg := cli.toConfig()
	if cfg.DataDir != "/tmp/memoire-test" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.FPS != 2.5 {
		t.Errorf("FPS = %v", cfg.FPS)
	}
	if cfg.OCRLanguage != "fr-FR" {
		t.Errorf("OCRLanguage = %q", cfg.OCRLanguage)
	}
	if cfg.ExtractionConcurrency != 8 {
		t.Errorf("ExtractionConcurrency = %d", cfg.ExtractionConcurrency)
	}
}

func TestParseFlagsRejectsInvalidLogLevel(t *testing.T) {
	if _, err := parseFlags([]string{"-log-level", "verbose"}); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestParseFlagsRejectsInvalidHookStdioFormat(t *testing.T) {
	if _, err := parseFlags([]string{"-hook-stdio-format", "xml"}); err == nil {
		t.Fatal("expected error for invalid hook-stdio-format")
	}
}

func TestParseFlagsRejectsInvalidHookTimeout(t *testing.T) {
	if _, err := parseFlags([]string{"-hook-timeout", "soon"}); err == nil {
		t.Fatal("expected error for invalid hook-timeout")
	}
}

func TestParseFlagsRejectsOutOfRangeHookConcurrency(t *testing.T) {
	if _, err := parseFlags([]string{"-hook-concurrency", "0"}); err == nil {
		t.Fatal("expected error for hook-concurrency below range")
	}
	if _, err := parseFlags([]string{"-hook-concurrency", "101"}); err == nil {
		t.Fatal("expected error for hook-concurrency above range")
	}
}

func TestParseFlagsRejectsMalformedHookAssignment(t *testing.T) {
	if _, err := parseFlags([]string{"-hook-script", "no-equals-sign"}); err == nil {
		t.Fatal("expected error for hook-script without '='")
	}
}

func TestParseFlagsRejectsUnknownEventType(t *testing.T) {
	if _, err := parseFlags([]string{"-hook-script", "bogus_event=./run.sh"}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseFlagsAcceptsKnownEventTypeAssignment(t *testing.T) {
	cli, err := parseFlags([]string{"-hook-webhook", "chunk_finalized=https://example.invalid/hook"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if len(cli.hookWebhooks) != 1 {
		t.Fatalf("expected 1 hook webhook, got %d", len(cli.hookWebhooks))
	}
}

func TestParseFlagsVersion(t *testing.T) {
	cli, err := parseFlags([]string{"-version"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if !cli.showVersion {
		t.Error("expected showVersion to be true")
	}
}
