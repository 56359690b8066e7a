// Package suggest implements oto parameter estimation: converting an ordered
// sequence of timestamped, confidence-scored phoneme detections for one audio
// slice into a usable set of timing parameters plus a confidence score.
//
// Estimation is advisory and therefore never fails. When the alignment is
// missing or too unreliable to trust, the engine degrades to fixed documented
// defaults with confidence zero instead of propagating an error; the caller
// decides whether to surface the result for manual review.
package suggest

import (
	"fmt"

	"github.com/kazenokoe/otoforge/internal/align"
	"github.com/kazenokoe/otoforge/internal/oto"
)

const (
	// confidenceFloor is the minimum combined confidence below which
	// estimation is abandoned in favour of the defaults.
	confidenceFloor = 0.3

	// leadInPadMS is subtracted from the first confident segment's start so
	// the offset keeps a little pre-phoneme material.
	leadInPadMS = 10

	// trailPadMS extends the cutoff past the last confident segment's end.
	trailPadMS = 20

	// consonantOnlyPadMS extends the fixed region past the last consonant
	// when no vowel was detected.
	consonantOnlyPadMS = 20

	// consonantVowelRatio is how far into the first vowel the fixed region
	// extends when a consonant/vowel transition exists.
	consonantVowelRatio = 0.3

	// vowelOnlyRatio is how far into the first vowel the fixed region ends
	// when only vowels were detected.
	vowelOnlyRatio = 0.4

	// consonantFloorGapMS is the minimum distance the fixed region must end
	// past the preutterance point.
	consonantFloorGapMS = 20

	// overlapRatio positions the overlap between offset and preutterance.
	overlapRatio = 0.4

	// minTrailingCutMS is the minimum trailing material always marked as cut.
	minTrailingCutMS = 10
)

// Default parameter values emitted when estimation is abandoned. These are
// conservative values that play acceptably for a typical CV sample.
const (
	DefaultOffsetMS       = 20.0
	DefaultConsonantMS    = 100.0
	DefaultCutoffMS       = -30.0
	DefaultPreutteranceMS = 60.0
	DefaultOverlapMS      = 25.0
)

// Confidence signal weights (mean segment confidence / audio coverage /
// segment-count desirability).
const (
	weightMeanConfidence = 0.5
	weightCoverage       = 0.3
	weightSegmentCount   = 0.2
)

// Suggestion is an unvalidated-but-repaired parameter estimate. It never
// represents a rejection: even degraded input yields usable (default)
// parameters with Confidence 0.
type Suggestion struct {
	// Params are the estimated timing parameters, already run through the
	// clamping validator.
	Params oto.Params

	// Confidence is the combined estimation confidence in [0, 1].
	Confidence float64

	// PhonemesDetected lists the phoneme labels used for estimation, in
	// time order.
	PhonemesDetected []string

	// Warnings describes any repair or degradation applied, in human-readable
	// form. Empty when estimation ran cleanly.
	Warnings []string
}

// Engine estimates oto parameters from phoneme alignments. Construct one at
// process start and pass it explicitly to the slicing pipeline; the zero
// value is not usable.
type Engine struct {
	floor float64
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithConfidenceFloor overrides the confidence below which estimation
// degrades to defaults. Default: 0.3.
func WithConfidenceFloor(floor float64) Option {
	return func(e *Engine) {
		e.floor = floor
	}
}

// NewEngine returns an estimation engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{floor: confidenceFloor}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Suggest estimates oto parameters for one audio slice from the phoneme
// segments detected within it. durationMS is the slice's total duration.
// Suggest never fails; malformed input degrades to defaults.
func (e *Engine) Suggest(segments []align.PhonemeSegment, durationMS float64) Suggestion {
	if len(segments) == 0 || durationMS <= 0 {
		return defaultSuggestion("no phoneme segments detected; default parameters applied")
	}

	confidence := e.score(segments, durationMS)
	if confidence < e.floor {
		return defaultSuggestion(fmt.Sprintf(
			"alignment confidence %.2f below %.2f; default parameters applied", confidence, e.floor))
	}

	var vowels, consonants []align.PhonemeSegment
	labels := make([]string, 0, len(segments))
	for _, s := range segments {
		labels = append(labels, s.Phoneme)
		if Classify(s.Phoneme) == ClassVowel {
			vowels = append(vowels, s)
		} else {
			consonants = append(consonants, s)
		}
	}

	offset := e.estimateOffset(segments)
	preutterance := estimatePreutterance(segments, vowels, consonants)
	consonant := estimateConsonant(vowels, consonants, preutterance)
	overlap := estimateOverlap(offset, preutterance)
	cutoff := e.estimateCutoff(segments, durationMS)

	params, warnings := oto.Clamp(oto.Params{
		Offset:       offset,
		Consonant:    consonant,
		Cutoff:       cutoff,
		Preutterance: preutterance,
		Overlap:      overlap,
	})

	return Suggestion{
		Params:           params,
		Confidence:       confidence,
		PhonemesDetected: labels,
		Warnings:         warnings,
	}
}

// defaultSuggestion returns the documented default parameters with zero
// confidence and the given degradation note.
func defaultSuggestion(reason string) Suggestion {
	return Suggestion{
		Params: oto.Params{
			Offset:       DefaultOffsetMS,
			Consonant:    DefaultConsonantMS,
			Cutoff:       DefaultCutoffMS,
			Preutterance: DefaultPreutteranceMS,
			Overlap:      DefaultOverlapMS,
		},
		Confidence: 0,
		Warnings:   []string{reason},
	}
}

// score combines three independent confidence signals: mean per-segment
// confidence (50%), audio coverage (30%), and a segment-count desirability
// curve (20%).
func (e *Engine) score(segments []align.PhonemeSegment, durationMS float64) float64 {
	var confSum, spanSum float64
	for _, s := range segments {
		confSum += s.Confidence
		spanSum += s.DurationMS()
	}
	meanConfidence := confSum / float64(len(segments))

	coverage := spanSum / durationMS
	if coverage > 1 {
		coverage = 1
	}

	return weightMeanConfidence*meanConfidence +
		weightCoverage*coverage +
		weightSegmentCount*countScore(len(segments))
}

// countScore is the segment-count desirability curve: a handful of segments
// is ideal, a single detection is weaker evidence, and a crowded alignment
// suggests the slice boundaries are wrong.
func countScore(n int) float64 {
	switch {
	case n == 0:
		return 0.5
	case n == 1:
		return 0.7
	case n <= 5:
		return 1.0
	case n <= 10:
		return 0.8
	default:
		return 0.0
	}
}

// estimateOffset places the playback start just before the first confident
// segment, floored at zero. When no segment clears the floor, the first
// segment anchors the offset regardless.
func (e *Engine) estimateOffset(segments []align.PhonemeSegment) float64 {
	anchor := segments[0].StartMS
	for _, s := range segments {
		if s.Confidence >= e.floor {
			anchor = s.StartMS
			break
		}
	}

	offset := anchor - leadInPadMS
	if offset < 0 {
		offset = 0
	}
	return offset
}

// estimatePreutterance locates the note-alignment point: the consonant/vowel
// transition when both classes exist, otherwise whichever boundary the
// present class provides, with the first segment's end as the last resort.
func estimatePreutterance(segments, vowels, consonants []align.PhonemeSegment) float64 {
	switch {
	case len(vowels) > 0 && len(consonants) > 0:
		if c, ok := lastConsonantBefore(consonants, vowels[0].StartMS); ok {
			return c.EndMS
		}
		return vowels[0].StartMS
	case len(consonants) > 0:
		return consonants[len(consonants)-1].EndMS
	case len(vowels) > 0:
		return vowels[0].StartMS
	default:
		return segments[0].EndMS
	}
}

// lastConsonantBefore returns the last consonant segment ending at or before
// limitMS, scanning from the end of the list.
func lastConsonantBefore(consonants []align.PhonemeSegment, limitMS float64) (align.PhonemeSegment, bool) {
	for i := len(consonants) - 1; i >= 0; i-- {
		if consonants[i].EndMS <= limitMS {
			return consonants[i], true
		}
	}
	return align.PhonemeSegment{}, false
}

// estimateConsonant places the end of the fixed (non-time-stretched) region,
// then floors it to end at least consonantFloorGapMS past the preutterance.
func estimateConsonant(vowels, consonants []align.PhonemeSegment, preutterance float64) float64 {
	var boundary float64
	switch {
	case len(vowels) > 0 && len(consonants) > 0:
		// The fixed region extends partway into the first vowel so the
		// stretchable region starts inside stable vowel material.
		boundary = vowels[0].StartMS + consonantVowelRatio*vowels[0].DurationMS()
	case len(consonants) > 0:
		boundary = consonants[len(consonants)-1].EndMS + consonantOnlyPadMS
	case len(vowels) > 0:
		boundary = vowels[0].StartMS + vowelOnlyRatio*vowels[0].DurationMS()
	}

	if floor := preutterance + consonantFloorGapMS; boundary < floor {
		boundary = floor
	}
	return boundary
}

// estimateOverlap interpolates the crossfade point partway from offset toward
// preutterance. Degenerate orderings collapse to the offset.
func estimateOverlap(offset, preutterance float64) float64 {
	if preutterance <= offset {
		return offset
	}
	return offset + overlapRatio*(preutterance-offset)
}

// estimateCutoff measures the cut region backward from the audio end, padded
// past the last confident segment, always leaving at least minTrailingCutMS
// of trailing material marked as cut.
func (e *Engine) estimateCutoff(segments []align.PhonemeSegment, durationMS float64) float64 {
	end := segments[len(segments)-1].EndMS
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i].Confidence >= e.floor {
			end = segments[i].EndMS
			break
		}
	}

	cutoff := -(durationMS - (end + trailPadMS))
	if cutoff > -minTrailingCutMS {
		cutoff = -minTrailingCutMS
	}
	return cutoff
}
