// Command memoired is the Memoire recording daemon: it wires the capture,
// encode, storage, recorder, OCR, ASR and indexer packages into one
// long-lived process. An HTTP/search front end is out of scope here (see
// internal/search for the query layer a future server would call).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/nicolasestrem/memoire/internal/asr"
	"github.com/nicolasestrem/memoire/internal/config"
	"github.com/nicolasestrem/memoire/internal/events"
	"github.com/nicolasestrem/memoire/internal/indexer"
	"github.com/nicolasestrem/memoire/internal/logger"
	"github.com/nicolasestrem/memoire/internal/merr"
	"github.com/nicolasestrem/memoire/internal/ocr"
	"github.com/nicolasestrem/memoire/internal/recorder"
	"github.com/nicolasestrem/memoire/internal/storage"
)

// asrStartupTimeout bounds how long run() waits for the ASR model
// directory to become populated before treating it as absent.
const asrStartupTimeout = 3 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is main's body pulled into a return-an-int function per the exit
// code contract, so it is unit-testable without os.Exit tearing down the
// test binary. Exit codes: 0 success, 1 a required dependency or model is
// missing, 2 bad flags or storage could not be opened, 3 no capturable
// monitor was found.
func run(args []string) int {
	cli, err := parseFlags(args)
	if err != nil {
		return 2
	}
	if cli.showVersion {
		fmt.Println(version)
		return 0
	}

	logger.Init()
	if err := logger.SetLevel(cli.logLevel); err != nil {
		fmt.Printf("warning: invalid log level %q, using default\n", cli.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	mcfg := config.ApplyDefaults(cli.toConfig())
	if err := config.Validate(mcfg); err != nil {
		log.Error("invalid configuration", "error", err)
		return 2
	}

	banner(mcfg)

	if err := os.MkdirAll(mcfg.DataDir, 0o755); err != nil {
		log.Error("failed to create data directory", "dir", mcfg.DataDir, "error", err)
		return 2
	}

	store, err := storage.Open(filepath.Join(mcfg.DataDir, "memoire.db"), log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return 2
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("failed to close storage", "error", closeErr)
		}
	}()

	hooks := events.NewHookManager(cli.toHookConfig(), log)
	if err := registerHooks(hooks, cli); err != nil {
		log.Error("invalid hook configuration", "error", err)
		return 2
	}
	defer func() {
		if closeErr := hooks.Close(); closeErr != nil {
			log.Error("failed to close hook manager", "error", closeErr)
		}
	}()

	rec, err := recorder.New(mcfg, store, log, hooks)
	if err != nil {
		if merr.IsFatal(err) {
			log.Error("no capturable monitor found", "error", err)
			return 3
		}
		log.Error("failed to initialize recorder", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rec.Start(ctx); err != nil {
		log.Error("failed to start recorder", "error", err)
		return 1
	}
	log.Info("recorder started")

	ocrIndexer, ocrEngine, code := startOCRIndexer(mcfg, store, hooks, log, cli.requireOCR)
	if code != 0 {
		rec.Stop()
		return code
	}
	asrIndexer, asrEngine, code := startASRIndexer(ctx, mcfg, store, hooks, log, cli.requireASR)
	if code != 0 {
		rec.Stop()
		return code
	}

	if ocrIndexer != nil {
		go ocrIndexer.Run(ctx)
	}
	if asrIndexer != nil {
		go asrIndexer.Run(ctx)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	rec.Stop()
	if ocrEngine != nil {
		_ = ocrEngine.Close()
	}
	if asrEngine != nil {
		_ = asrEngine.Close()
	}

	log.Info("shutdown complete")
	return 0
}

// startOCRIndexer opens the platform OCR engine and, on success, builds an
// OCRIndexer ready to run. Engine-open failure is non-fatal unless
// requireOCR was set, mirroring the recorder's own audio-endpoint
// soft-skip policy: an optional feature degrades rather than aborting.
func startOCRIndexer(cfg config.Config, store *storage.Store, hooks *events.HookManager, log *slog.Logger, requireOCR bool) (*indexer.OCRIndexer, ocr.Engine, int) {
	engine, err := ocr.New(cfg.OCRLanguage)
	if err != nil {
		if requireOCR {
			log.Error("ocr engine unavailable and -require-ocr was set", "error", err)
			return nil, nil, 1
		}
		log.Warn("ocr engine unavailable, video text indexing disabled", "error", err)
		return nil, nil, 0
	}

	idx := &indexer.OCRIndexer{
		Store:       store,
		Extractor:   indexer.ExternalExtractor{BinaryPath: cfg.EncoderPath},
		Engine:      engine,
		Logger:      log,
		Hooks:       hooks,
		BatchSize:   cfg.IndexerBatchSize,
		Concurrency: cfg.ExtractionConcurrency,
		OCRFPS:      cfg.OCRFPS,
		Language:    cfg.OCRLanguage,
	}
	return idx, engine, 0
}

// startASRIndexer waits up to asrStartupTimeout for the ASR model
// directory to become populated, then opens the ONNX Runtime sessions. A
// missing model directory is non-fatal unless requireASR was set, the
// same soft-skip policy startOCRIndexer applies to the OCR engine.
func startASRIndexer(ctx context.Context, cfg config.Config, store *storage.Store, hooks *events.HookManager, log *slog.Logger, requireASR bool) (*indexer.AudioIndexer, asr.Engine, int) {
	waitCtx, cancel := context.WithTimeout(ctx, asrStartupTimeout)
	defer cancel()

	engine, err := asr.New(waitCtx, cfg.ASRModelDir, log)
	if err != nil {
		if requireASR {
			log.Error("asr model unavailable and -require-asr was set", "error", err)
			return nil, nil, 1
		}
		log.Warn("asr model unavailable, audio transcription indexing disabled", "error", err)
		hooks.TriggerEvent(ctx, *events.NewEvent(events.EventASRModelMissing).WithData("model_dir", cfg.ASRModelDir))
		return nil, nil, 0
	}

	idx := &indexer.AudioIndexer{
		Store:     store,
		Engine:    engine,
		Logger:    log,
		Hooks:     hooks,
		BatchSize: cfg.IndexerBatchSize,
		OCRFPS:    cfg.OCRFPS,
	}
	return idx, engine, 0
}

func banner(cfg config.Config) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	cyan.Println("memoire")
	bold.Printf("  data dir: ")
	dim.Println(cfg.DataDir)
	bold.Printf("  fps:      ")
	dim.Println(cfg.FPS)
}

func registerHooks(hooks *events.HookManager, cli *cliConfig) error {
	for _, assignment := range cli.hookScripts {
		eventType, path, _ := strings.Cut(assignment, "=")
		timeout, _ := time.ParseDuration(cli.hookTimeout)
		hook := events.NewShellHook(eventType+"-script", path, timeout)
		if err := hooks.RegisterHook(events.EventType(eventType), hook); err != nil {
			return err
		}
	}
	for _, assignment := range cli.hookWebhooks {
		eventType, url, _ := strings.Cut(assignment, "=")
		timeout, _ := time.ParseDuration(cli.hookTimeout)
		hook := events.NewWebhookHook(eventType+"-webhook", url, timeout)
		if err := hooks.RegisterHook(events.EventType(eventType), hook); err != nil {
			return err
		}
	}
	return nil
}
