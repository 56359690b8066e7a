// Command otoforge assembles UTAU-style voicebanks: it aligns recorded takes,
// slices them into per-phoneme samples, estimates oto timing parameters, and
// persists the finished entry collection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kazenokoe/otoforge/internal/align"
	"github.com/kazenokoe/otoforge/internal/align/httpalign"
	"github.com/kazenokoe/otoforge/internal/align/resilient"
	"github.com/kazenokoe/otoforge/internal/assembly"
	"github.com/kazenokoe/otoforge/internal/config"
	"github.com/kazenokoe/otoforge/internal/lockmap"
	"github.com/kazenokoe/otoforge/internal/observe"
	"github.com/kazenokoe/otoforge/internal/slicer"
	"github.com/kazenokoe/otoforge/internal/storage"
	"github.com/kazenokoe/otoforge/internal/suggest"
	"github.com/kazenokoe/otoforge/internal/voicebank"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	takesDir := flag.String("takes", "", "directory of recorded takes (*.wav) to assemble")
	bankID := flag.String("bank", "", "destination voicebank identifier")
	style := flag.String("style", "cv", "recording style: cv or vcv")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "otoforge: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "otoforge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("otoforge starting",
		"config", *configPath,
		"storage_backend", cfg.Storage.Backend,
		"log_level", cfg.Server.LogLevel,
	)

	if *bankID == "" || *takesDir == "" {
		fmt.Fprintln(os.Stderr, "otoforge: -bank and -takes are required")
		return 1
	}
	recStyle := voicebank.Style(*style)
	if !recStyle.IsValid() {
		fmt.Fprintf(os.Stderr, "otoforge: unknown style %q (valid: cv, vcv)\n", *style)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Storage backend ───────────────────────────────────────────────────────
	blobs, cleanup, err := buildStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise storage", "err", err)
		return 1
	}
	defer cleanup()

	// ── Wiring ────────────────────────────────────────────────────────────────
	locks, err := lockmap.New(cfg.Pipeline.LockMapSize)
	if err != nil {
		slog.Error("failed to create lock map", "err", err)
		return 1
	}
	if _, err := observe.DefaultMetrics().ObserveLockMapSize(locks.Len); err != nil {
		slog.Warn("failed to register lock map gauge", "err", err)
	}
	banks := voicebank.NewStore(blobs, locks)
	estimator := suggest.NewEngine()
	slices := slicer.NewEngine(estimator, slicer.WithTargetRate(cfg.Audio.TargetSampleRate))

	pipeline := assembly.New(assembly.Config{
		Aligner:            buildAligner(cfg),
		Slicer:             slices,
		Banks:              banks,
		MaxConcurrentTakes: cfg.Pipeline.MaxConcurrentTakes,
	})

	// ── Collect takes ─────────────────────────────────────────────────────────
	takes, err := loadTakes(*takesDir)
	if err != nil {
		slog.Error("failed to load takes", "dir", *takesDir, "err", err)
		return 1
	}
	if len(takes) == 0 {
		slog.Warn("no wav files found", "dir", *takesDir)
		return 0
	}

	// ── Run the batch ─────────────────────────────────────────────────────────
	result, err := pipeline.Run(ctx, assembly.BatchRequest{
		BankID:   *bankID,
		Style:    recStyle,
		Language: cfg.Aligner.Language,
		Takes:    takes,
	})
	if err != nil {
		slog.Error("assembly batch aborted", "err", err)
		return 1
	}

	for _, f := range result.Failures {
		slog.Warn("take not assembled", "take_id", f.TakeID, "stage", f.Stage, "reason", f.Reason)
	}
	slog.Info("voicebank assembly complete",
		"bank_id", *bankID,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"slices_written", result.SlicesWritten,
	)
	return 0
}

// buildStorage constructs the configured blob store backend. The returned
// cleanup must be called on shutdown.
func buildStorage(ctx context.Context, cfg *config.Config) (storage.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pg, err := storage.NewPGStore(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		fs, err := storage.NewFSStore(cfg.Storage.RootDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

// buildAligner constructs the configured aligner collaborator, or nil when
// alignment is disabled.
func buildAligner(cfg *config.Config) align.Aligner {
	if cfg.Aligner.Name != "http" {
		return nil
	}
	client := httpalign.New(cfg.Aligner.BaseURL,
		httpalign.WithTimeout(time.Duration(cfg.Aligner.TimeoutSeconds)*time.Second),
	)
	// A circuit breaker keeps a dead alignment service from dragging every
	// take of a batch through a full timeout.
	return resilient.Wrap(client, resilient.Config{})
}

// loadTakes reads every .wav file in dir as a take, using the bare filename
// as the transcript, which matches the common reclist recording convention
// of naming each take after its prompt.
func loadTakes(dir string) ([]assembly.TakeInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var takes []assembly.TakeInput
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".wav") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		takes = append(takes, assembly.TakeInput{
			ID:         strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			WAV:        data,
			Transcript: strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
		})
	}
	sort.Slice(takes, func(i, j int) bool { return takes[i].ID < takes[j].ID })
	return takes, nil
}

// newLogger builds a slog text logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
