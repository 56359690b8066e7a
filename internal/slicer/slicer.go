// Package slicer converts recorded takes into discrete, named sample slices
// with estimated oto parameters.
//
// One take passes through a fixed sequence: its alignment determines the
// slice windows (style dispatch), each window's audio is extracted and
// post-processed, the estimation engine produces oto parameters per slice,
// and a collision-free filename is assigned. A failure anywhere marks the
// whole take as failed; there are no per-take retries. Batch-level tolerance
// for failed takes lives in the assembly package.
package slicer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazenokoe/otoforge/internal/align"
	"github.com/kazenokoe/otoforge/internal/oto"
	"github.com/kazenokoe/otoforge/internal/suggest"
	"github.com/kazenokoe/otoforge/internal/voicebank"
	"github.com/kazenokoe/otoforge/pkg/audio"
)

// ErrNoViableSlice indicates a take yielded no slice meeting the minimum
// duration. The take is skippable rather than failed: the audio was simply
// too short to use.
var ErrNoViableSlice = errors.New("slicer: no viable slice")

const (
	// minSliceMS is the minimum viable slice duration; shorter slices are
	// skipped.
	minSliceMS = 50.0

	// cvLeadPadMS / cvTrailPadMS pad the whole-take trim around the detected
	// phoneme boundaries.
	cvLeadPadMS  = 10.0
	cvTrailPadMS = 20.0

	// vcvLeadPadMS / vcvTrailPadMS pad each vowel-to-vowel slice window.
	vcvLeadPadMS  = 30.0
	vcvTrailPadMS = 20.0

	// peakTarget is the normalization target: 95% of full scale.
	peakTarget = 0.95

	// fadeMS is the linear fade applied at both slice boundaries.
	fadeMS = 5.0

	// defaultTargetRate is the sample rate slices are resampled to.
	defaultTargetRate = 44100
)

// Take is one recorded take plus its phoneme alignment, ready for slicing.
type Take struct {
	// ID identifies the take within its batch.
	ID string

	// Clip is the decoded take audio.
	Clip audio.Clip

	// Alignment is the aligner's result for this take. An empty alignment is
	// allowed; slicing falls back to whole-take extraction and estimation
	// degrades to defaults.
	Alignment align.Alignment

	// Transcript is the reclist prompt the take was recorded against. Used
	// as the CV alias when present.
	Transcript string
}

// SlicedSample describes one physical audio slice extracted from a take.
type SlicedSample struct {
	Filename     string  `json:"filename"`
	Alias        string  `json:"alias"`
	SourceTakeID string  `json:"source_take_id"`
	PhonemeLabel string  `json:"phoneme_label"`
	StartMS      float64 `json:"start_ms"`
	EndMS        float64 `json:"end_ms"`
	DurationMS   float64 `json:"duration_ms"`
}

// Result pairs a sliced sample with its estimated oto entry and the encoded
// audio ready to persist.
type Result struct {
	Sample     SlicedSample
	Entry      oto.Entry
	Suggestion suggest.Suggestion
	WAV        []byte
}

// ExistsFunc reports whether a sample filename is already taken in the
// destination voicebank. Used by the collision policy; never overwritten
// silently.
type ExistsFunc func(ctx context.Context, filename string) (bool, error)

// Engine slices takes into samples. Construct once and share; safe for
// concurrent use.
type Engine struct {
	est        *suggest.Engine
	targetRate int
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithTargetRate sets the sample rate slices are resampled to.
// Default: 44100 Hz.
func WithTargetRate(rate int) Option {
	return func(e *Engine) {
		e.targetRate = rate
	}
}

// NewEngine returns a slicing engine using est for per-slice parameter
// estimation.
func NewEngine(est *suggest.Engine, opts ...Option) *Engine {
	e := &Engine{est: est, targetRate: defaultTargetRate}
	for _, o := range opts {
		o(e)
	}
	return e
}

// window is one candidate slice span within a take.
type window struct {
	startMS float64
	endMS   float64
	alias   string
	label   string
}

// Slice converts one take into sample slices according to the recording
// style. exists is consulted when assigning filenames. Returns an error when
// the take yields no viable slice at all; individual sub-minimum VCV windows
// are skipped with a log line.
func (e *Engine) Slice(ctx context.Context, take Take, style voicebank.Style, exists ExistsFunc) ([]Result, error) {
	durationMS := take.Clip.DurationMS()
	if durationMS <= 0 {
		return nil, fmt.Errorf("slicer: take %q has no audio", take.ID)
	}

	windows := e.windows(take, style, durationMS)

	var results []Result
	for _, w := range windows {
		if w.endMS-w.startMS < minSliceMS {
			slog.Info("skipping slice below minimum duration",
				"take_id", take.ID,
				"alias", w.alias,
				"duration_ms", w.endMS-w.startMS,
			)
			continue
		}

		res, err := e.buildSlice(ctx, take, w, exists)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("take %q produced no slice of at least %gms: %w", take.ID, minSliceMS, ErrNoViableSlice)
	}
	return results, nil
}

// windows computes the slice spans for a take. CV and unrecognised styles use
// the whole take; VCV emits one window per consecutive vowel pair, falling
// back to the whole take when fewer than two vowels were detected: a
// single-vowel VCV take must still yield a usable sample.
func (e *Engine) windows(take Take, style voicebank.Style, durationMS float64) []window {
	if style != voicebank.StyleVCV {
		return []window{e.wholeTakeWindow(take, durationMS)}
	}

	segs := take.Alignment.Segments
	var vowelIdx []int
	for i, s := range segs {
		if suggest.Classify(s.Phoneme) == suggest.ClassVowel {
			vowelIdx = append(vowelIdx, i)
		}
	}

	if len(vowelIdx) < 2 {
		slog.Info("vcv take has fewer than two vowels; falling back to whole-take slice",
			"take_id", take.ID, "vowels", len(vowelIdx))
		return []window{e.wholeTakeWindow(take, durationMS)}
	}

	windows := make([]window, 0, len(vowelIdx)-1)
	for i := 0; i+1 < len(vowelIdx); i++ {
		v1, v2 := segs[vowelIdx[i]], segs[vowelIdx[i+1]]

		var middle strings.Builder
		for j := vowelIdx[i] + 1; j < vowelIdx[i+1]; j++ {
			middle.WriteString(segs[j].Phoneme)
		}

		alias := fmt.Sprintf("%s %s%s", v1.Phoneme, middle.String(), v2.Phoneme)
		windows = append(windows, window{
			startMS: clamp(v1.StartMS-vcvLeadPadMS, 0, durationMS),
			endMS:   clamp(v2.EndMS+vcvTrailPadMS, 0, durationMS),
			alias:   alias,
			label:   alias,
		})
	}
	return windows
}

// wholeTakeWindow trims the take to its phoneme boundaries with small pads
// when an alignment exists, else spans the full take.
func (e *Engine) wholeTakeWindow(take Take, durationMS float64) window {
	start, end := 0.0, durationMS
	segs := take.Alignment.Segments
	if len(segs) > 0 {
		start = clamp(segs[0].StartMS-cvLeadPadMS, 0, durationMS)
		end = clamp(segs[len(segs)-1].EndMS+cvTrailPadMS, 0, durationMS)
	}

	label := joinLabels(segs)
	alias := take.Transcript
	if alias == "" {
		alias = label
	}
	return window{startMS: start, endMS: end, alias: alias, label: label}
}

// buildSlice extracts, post-processes, estimates, and names one slice.
func (e *Engine) buildSlice(ctx context.Context, take Take, w window, exists ExistsFunc) (Result, error) {
	clip := take.Clip.SliceMS(w.startMS, w.endMS)

	// Uniform post-chain: resample, peak-normalize, boundary fades.
	samples := audio.Resample(clip.Samples, clip.SampleRate, e.targetRate)
	processed := audio.Clip{Samples: samples, SampleRate: e.targetRate}
	audio.Normalize(processed.Samples, peakTarget)
	audio.ApplyFades(processed.Samples, processed.SampleRate, fadeMS)

	// Estimate parameters from the segments inside this window, rebased to
	// the slice start.
	local := windowSegments(take.Alignment.Segments, w.startMS, w.endMS)
	suggestion := e.est.Suggest(local, w.endMS-w.startMS)

	filename, err := uniqueFilename(ctx, w.alias, exists)
	if err != nil {
		return Result{}, fmt.Errorf("slicer: name slice %q of take %q: %w", w.alias, take.ID, err)
	}

	return Result{
		Sample: SlicedSample{
			Filename:     filename,
			Alias:        w.alias,
			SourceTakeID: take.ID,
			PhonemeLabel: w.label,
			StartMS:      w.startMS,
			EndMS:        w.endMS,
			DurationMS:   w.endMS - w.startMS,
		},
		Entry: oto.Entry{
			Filename: filename,
			Alias:    w.alias,
			Params:   suggestion.Params,
		},
		Suggestion: suggestion,
		WAV:        audio.EncodeWAV(processed),
	}, nil
}

// windowSegments returns the alignment segments overlapping [startMS, endMS],
// clamped to the window and rebased so the window start is time zero.
func windowSegments(segs []align.PhonemeSegment, startMS, endMS float64) []align.PhonemeSegment {
	var local []align.PhonemeSegment
	for _, s := range segs {
		if s.EndMS <= startMS || s.StartMS >= endMS {
			continue
		}
		local = append(local, align.PhonemeSegment{
			Phoneme:    s.Phoneme,
			StartMS:    clamp(s.StartMS, startMS, endMS) - startMS,
			EndMS:      clamp(s.EndMS, startMS, endMS) - startMS,
			Confidence: s.Confidence,
		})
	}
	return local
}

// joinLabels concatenates segment labels for use as a fallback alias.
func joinLabels(segs []align.PhonemeSegment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Phoneme)
	}
	return b.String()
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
