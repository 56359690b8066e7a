// Package assembly runs the end-to-end voicebank assembly batch: for each
// recorded take it obtains a phoneme alignment, slices the audio into
// samples, and persists the sample files and their oto entries under the
// destination voicebank's lock.
//
// Batches are partial-failure tolerant and fail-fast per take: a take that
// cannot be decoded, aligned, or sliced is logged, counted, and skipped, and
// the batch continues. The returned [BatchResult] carries processed, skipped,
// and failed counts plus per-take reasons instead of aborting on the first
// failure.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kazenokoe/otoforge/internal/align"
	"github.com/kazenokoe/otoforge/internal/observe"
	"github.com/kazenokoe/otoforge/internal/oto"
	"github.com/kazenokoe/otoforge/internal/slicer"
	"github.com/kazenokoe/otoforge/internal/storage"
	"github.com/kazenokoe/otoforge/internal/voicebank"
	"github.com/kazenokoe/otoforge/pkg/audio"
)

// defaultMaxConcurrent bounds how many takes are processed simultaneously
// when the config does not say otherwise.
const defaultMaxConcurrent = 4

// TakeInput is one take submitted to a batch.
type TakeInput struct {
	// ID identifies the take. Generated when empty.
	ID string

	// WAV is the complete RIFF/WAVE recording.
	WAV []byte

	// Transcript is the reclist prompt for this take.
	Transcript string
}

// BatchRequest describes one assembly run.
type BatchRequest struct {
	// BankID is the destination voicebank.
	BankID string

	// Style is the recording style dictating slice boundaries.
	Style voicebank.Style

	// Language is passed through to the aligner.
	Language string

	// Takes are the recordings to process.
	Takes []TakeInput
}

// TakeFailure records why one take was not assembled.
type TakeFailure struct {
	// TakeID identifies the take.
	TakeID string `json:"take_id"`

	// Stage names the pipeline stage that failed: "decode", "align",
	// "slice", or "persist".
	Stage string `json:"stage"`

	// Reason is the human-readable failure reason.
	Reason string `json:"reason"`
}

// BatchResult is the structured outcome of an assembly run.
type BatchResult struct {
	// Processed counts takes fully assembled and persisted.
	Processed int `json:"processed"`

	// Skipped counts takes skipped because they yielded no viable slice.
	Skipped int `json:"skipped"`

	// Failed counts takes that failed a pipeline stage.
	Failed int `json:"failed"`

	// SlicesWritten counts persisted sample slices across all takes.
	SlicesWritten int `json:"slices_written"`

	// Failures holds the per-take failure reasons for skipped and failed
	// takes.
	Failures []TakeFailure `json:"failures,omitempty"`
}

// Pipeline wires the aligner, slicing engine, and voicebank store into the
// assembly batch. Construct once and share; safe for concurrent use.
type Pipeline struct {
	aligner       align.Aligner
	slices        *slicer.Engine
	banks         *voicebank.Store
	metrics       *observe.Metrics
	maxConcurrent int
}

// Config holds all dependencies for a [Pipeline].
type Config struct {
	// Aligner produces phoneme alignments for takes.
	Aligner align.Aligner

	// Slicer converts aligned takes into sample slices.
	Slicer *slicer.Engine

	// Banks is the destination voicebank store.
	Banks *voicebank.Store

	// Metrics receives pipeline metrics. Defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// MaxConcurrentTakes bounds take-level parallelism. Defaults to 4.
	MaxConcurrentTakes int
}

// New creates a Pipeline with the given dependencies.
func New(cfg Config) *Pipeline {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	maxConcurrent := cfg.MaxConcurrentTakes
	if maxConcurrent < 1 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Pipeline{
		aligner:       cfg.Aligner,
		slices:        cfg.Slicer,
		banks:         cfg.Banks,
		metrics:       metrics,
		maxConcurrent: maxConcurrent,
	}
}

// Run processes every take in the request and returns the structured batch
// outcome. Individual take failures never abort the batch; only context
// cancellation does.
func (p *Pipeline) Run(ctx context.Context, req BatchRequest) (BatchResult, error) {
	var (
		mu     sync.Mutex
		result BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)

	for _, input := range req.Takes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			takeID := input.ID
			if takeID == "" {
				takeID = uuid.NewString()
			}

			written, err := p.processTake(gctx, req, takeID, input)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Processed++
				result.SlicesWritten += written
				p.metrics.RecordTakeProcessed(gctx, string(req.Style))
			case errors.Is(err, slicer.ErrNoViableSlice):
				result.Skipped++
				result.Failures = append(result.Failures, TakeFailure{
					TakeID: takeID, Stage: "slice", Reason: err.Error(),
				})
				p.metrics.RecordTakeSkipped(gctx, "no_viable_slice")
				slog.Info("take skipped", "take_id", takeID, "reason", err)
			default:
				var failure *stageError
				stage := "slice"
				if errors.As(err, &failure) {
					stage = failure.stage
				}
				result.Failed++
				result.Failures = append(result.Failures, TakeFailure{
					TakeID: takeID, Stage: stage, Reason: err.Error(),
				})
				p.metrics.RecordTakeFailed(gctx, stage)
				slog.Warn("take failed", "take_id", takeID, "stage", stage, "err", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("assembly: batch aborted: %w", err)
	}

	slog.Info("assembly batch finished",
		"bank_id", req.BankID,
		"style", req.Style,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"slices_written", result.SlicesWritten,
	)
	return result, nil
}

// stageError tags a take failure with the pipeline stage it occurred in.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// processTake runs one take through decode, align, slice, and persist.
// Returns the number of slices written.
func (p *Pipeline) processTake(ctx context.Context, req BatchRequest, takeID string, input TakeInput) (int, error) {
	clip, err := audio.DecodeWAV(input.WAV)
	if err != nil {
		return 0, &stageError{stage: "decode", err: err}
	}

	alignment, err := p.alignTake(ctx, input, req.Language, clip)
	if err != nil {
		return 0, &stageError{stage: "align", err: err}
	}

	exists := func(ctx context.Context, filename string) (bool, error) {
		return p.banks.SampleExists(ctx, req.BankID, filename)
	}
	results, err := p.slices.Slice(ctx, slicer.Take{
		ID:         takeID,
		Clip:       clip,
		Alignment:  alignment,
		Transcript: input.Transcript,
	}, req.Style, exists)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, res := range results {
		p.metrics.SuggestionConfidence.Record(ctx, res.Suggestion.Confidence)

		filename, err := p.writeSampleRenaming(ctx, req.BankID, res.Entry.Alias, res.Sample.Filename, res.WAV)
		if err != nil {
			return written, &stageError{stage: "persist", err: err}
		}
		res.Sample.Filename = filename
		res.Entry.Filename = filename

		if err := p.banks.CreateEntry(ctx, req.BankID, res.Entry); err != nil {
			if errors.Is(err, oto.ErrDuplicateEntry) {
				p.metrics.EntryConflicts.Add(ctx, 1)
			}
			return written, &stageError{stage: "persist", err: err}
		}
		written++
		p.metrics.SlicesWritten.Add(ctx, 1)
	}
	return written, nil
}

// writeSampleRenaming persists one sample, renaming past write conflicts.
// The slicer picks a free name against a point-in-time existence check, but
// takes run in parallel and two of them can pick the same name; the store's
// exclusive write turns that race into storage.ErrExists, and the next
// candidate name is tried until one is claimed. Returns the filename the
// sample was stored under.
func (p *Pipeline) writeSampleRenaming(ctx context.Context, bankID, alias, filename string, wav []byte) (string, error) {
	for attempt := 1; ; attempt++ {
		err := p.banks.WriteSample(ctx, bankID, filename, wav)
		if err == nil {
			return filename, nil
		}
		if !errors.Is(err, storage.ErrExists) || attempt >= slicer.MaxNameAttempts {
			return "", err
		}
		filename = slicer.CandidateFilename(alias, attempt)
	}
}

// alignTake obtains the phoneme alignment for a take. An aligner transport
// error fails the take; a successful but empty alignment is normal and flows
// through to default parameter estimation. The clip duration backstops a
// missing duration in the aligner response.
func (p *Pipeline) alignTake(ctx context.Context, input TakeInput, language string, clip audio.Clip) (align.Alignment, error) {
	if p.aligner == nil {
		return align.Alignment{DurationMS: clip.DurationMS(), Method: "none"}, nil
	}

	start := time.Now()
	alignment, err := p.aligner.Align(ctx, input.WAV, input.Transcript, language)
	p.metrics.AlignDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return align.Alignment{}, err
	}

	if alignment.DurationMS <= 0 {
		alignment.DurationMS = clip.DurationMS()
	}
	return alignment, nil
}
