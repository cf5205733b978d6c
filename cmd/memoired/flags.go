package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nicolasestrem/memoire/internal/config"
	"github.com/nicolasestrem/memoire/internal/events"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into
// config.Config and events.HookConfig, so main.go can validate and map.
type cliConfig struct {
	dataDir           string
	fps               float64
	useHWEncoding     bool
	chunkDurationSecs float64
	audioChunkDurSecs float64
	ocrFPS            uint
	ocrLanguage       string
	dedupThreshold    uint
	encoderPath       string
	asrModelDir       string
	extractionConc    int
	indexerBatchSize  int
	requireOCR        bool
	requireASR        bool
	logLevel          string
	showVersion       bool

	hookScripts     []string
	hookWebhooks    []string
	hookStdioFormat string
	hookTimeout     string
	hookConcurrency int
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("memoired", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	var hookScripts stringSliceFlag
	var hookWebhooks stringSliceFlag

	d := config.Defaults()
	fs.StringVar(&cfg.dataDir, "data-dir", d.DataDir, "Root directory for the database and chunk trees")
	fs.Float64Var(&cfg.fps, "fps", d.FPS, "Target capture frame rate per monitor")
	fs.BoolVar(&cfg.useHWEncoding, "hw-encoding", d.UseHWEncoding, "Use hardware encoding with software fallback")
	fs.Float64Var(&cfg.chunkDurationSecs, "chunk-duration-secs", d.ChunkDuration.Seconds(), "Maximum wall-clock length of one video chunk")
	fs.Float64Var(&cfg.audioChunkDurSecs, "audio-chunk-duration-secs", d.AudioChunkDuration.Seconds(), "Maximum wall-clock length of one audio chunk")
	fs.UintVar(&cfg.ocrFPS, "ocr-fps", uint(d.OCRFPS), "Indexer rate limit for OCR/ASR iterations")
	fs.StringVar(&cfg.ocrLanguage, "ocr-language", d.OCRLanguage, "BCP-47 language tag passed to the platform OCR service")
	fs.UintVar(&cfg.dedupThreshold, "dedup-threshold", uint(d.DedupThreshold), "Maximum Hamming distance for two perceptual hashes to be duplicates")
	fs.StringVar(&cfg.encoderPath, "encoder-path", d.EncoderPath, "External transcoder executable")
	fs.StringVar(&cfg.asrModelDir, "asr-model-dir", d.ASRModelDir, "Directory holding the ONNX encoder/decoder/joiner graphs and tokens.txt")
	fs.IntVar(&cfg.extractionConc, "extraction-concurrency", d.ExtractionConcurrency, "Concurrent out-of-process frame extractions per indexer iteration")
	fs.IntVar(&cfg.indexerBatchSize, "indexer-batch-size", d.IndexerBatchSize, "Unprocessed frames/chunks pulled per indexer iteration")
	fs.BoolVar(&cfg.requireOCR, "require-ocr", false, "Exit with an error if the platform OCR engine cannot be opened")
	fs.BoolVar(&cfg.requireASR, "require-asr", false, "Exit with an error if the ASR model directory is missing")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Var(&hookScripts, "hook-script", "Hook script in format event_type=script_path (can be specified multiple times)")
	fs.Var(&hookWebhooks, "hook-webhook", "Hook webhook in format event_type=webhook_url (can be specified multiple times)")
	fs.StringVar(&cfg.hookStdioFormat, "hook-stdio-format", "", "Enable structured stdio output: json|env (empty=disabled)")
	fs.StringVar(&cfg.hookTimeout, "hook-timeout", "30s", "Timeout for hook execution")
	fs.IntVar(&cfg.hookConcurrency, "hook-concurrency", 10, "Maximum concurrent hook executions")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.hookScripts = hookScripts
	cfg.hookWebhooks = hookWebhooks

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if err := validateHookConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// toConfig maps validated CLI flags into the core config.Config shape.
func (cfg *cliConfig) toConfig() config.Config {
	return config.Config{
		DataDir:               cfg.dataDir,
		FPS:                   cfg.fps,
		UseHWEncoding:         cfg.useHWEncoding,
		ChunkDuration:         time.Duration(cfg.chunkDurationSecs * float64(time.Second)),
		AudioChunkDuration:    time.Duration(cfg.audioChunkDurSecs * float64(time.Second)),
		OCRFPS:                uint32(cfg.ocrFPS),
		OCRLanguage:           cfg.ocrLanguage,
		DedupThreshold:        uint32(cfg.dedupThreshold),
		EncoderPath:           cfg.encoderPath,
		ASRModelDir:           cfg.asrModelDir,
		ExtractionConcurrency: cfg.extractionConc,
		IndexerBatchSize:      cfg.indexerBatchSize,
	}
}

func (cfg *cliConfig) toHookConfig() events.HookConfig {
	return events.HookConfig{
		Timeout:     cfg.hookTimeout,
		Concurrency: cfg.hookConcurrency,
		StdioFormat: cfg.hookStdioFormat,
	}
}

// stringSliceFlag implements flag.Value for multiple string values.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string   { return strings.Join(*s, ", ") }
func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

var validEventTypes = map[string]bool{
	string(events.EventChunkOpened):       true,
	string(events.EventChunkFinalized):    true,
	string(events.EventFrameBatchFlushed): true,
	string(events.EventDedupSkip):         true,
	string(events.EventCaptureReinit):     true,
	string(events.EventEncoderFallback):   true,
	string(events.EventOCRBatchCommitted): true,
	string(events.EventASRBatchCommitted): true,
	string(events.EventASRModelMissing):   true,
}

func validateHookConfig(cfg *cliConfig) error {
	if cfg.hookStdioFormat != "" && cfg.hookStdioFormat != "json" && cfg.hookStdioFormat != "env" {
		return fmt.Errorf("invalid hook-stdio-format %q, must be 'json' or 'env'", cfg.hookStdioFormat)
	}
	if cfg.hookTimeout != "" {
		if _, err := time.ParseDuration(cfg.hookTimeout); err != nil {
			return fmt.Errorf("invalid hook-timeout %q: %w", cfg.hookTimeout, err)
		}
	}
	if cfg.hookConcurrency < 1 || cfg.hookConcurrency > 100 {
		return fmt.Errorf("hook-concurrency must be between 1 and 100, got %d", cfg.hookConcurrency)
	}
	for _, script := range cfg.hookScripts {
		if err := validateHookAssignment("hook-script", script); err != nil {
			return err
		}
	}
	for _, webhook := range cfg.hookWebhooks {
		if err := validateHookAssignment("hook-webhook", webhook); err != nil {
			return err
		}
	}
	return nil
}

func validateHookAssignment(flagName, assignment string) error {
	parts := strings.SplitN(assignment, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid %s format %q, expected event_type=value", flagName, assignment)
	}
	eventType, value := parts[0], parts[1]
	if eventType == "" {
		return fmt.Errorf("invalid %s: event type cannot be empty", flagName)
	}
	if value == "" {
		return fmt.Errorf("invalid %s: value cannot be empty", flagName)
	}
	if !validEventTypes[eventType] {
		return fmt.Errorf("invalid %s: unknown event type %q", flagName, eventType)
	}
	return nil
}
