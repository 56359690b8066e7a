// Package align defines the phoneme alignment types and the collaborator
// interface through which the pipeline obtains timestamped phoneme segments
// for a recorded take. The alignment engine itself (forced alignment, ML
// phoneme detection) lives outside this module; implementations of [Aligner]
// wrap whatever service performs the actual work.
package align

import "context"

// PhonemeSegment is one timestamped phoneme detection produced by an aligner.
// Segments are ordered by time but are not guaranteed clean: consumers must
// tolerate overlaps and gaps.
type PhonemeSegment struct {
	// Phoneme is the detected phoneme label (romaji, IPA, or ARPAbet-style
	// depending on the aligner).
	Phoneme string `json:"phoneme"`

	// StartMS is the segment start within the take, in milliseconds.
	StartMS float64 `json:"start_ms"`

	// EndMS is the segment end within the take, in milliseconds.
	// Always >= StartMS.
	EndMS float64 `json:"end_ms"`

	// Confidence is the aligner's confidence in this detection (0.0–1.0).
	Confidence float64 `json:"confidence"`
}

// DurationMS returns the segment length in milliseconds.
func (s PhonemeSegment) DurationMS() float64 {
	return s.EndMS - s.StartMS
}

// WordSegment is an optional word-level grouping some aligners emit alongside
// phoneme segments.
type WordSegment struct {
	Word    string  `json:"word"`
	StartMS float64 `json:"start_ms"`
	EndMS   float64 `json:"end_ms"`
}

// Alignment is the full result of aligning one take.
type Alignment struct {
	// Segments are the detected phoneme segments in time order.
	Segments []PhonemeSegment `json:"segments"`

	// Words are optional word-level segments. May be nil.
	Words []WordSegment `json:"words,omitempty"`

	// DurationMS is the total duration of the analysed audio.
	DurationMS float64 `json:"duration_ms"`

	// Method names the alignment backend that produced this result
	// (e.g. "mfa", "ctc-forced").
	Method string `json:"method"`
}

// Aligner produces a phoneme alignment for a recorded take. Implementations
// must be safe for concurrent use.
//
// A failed or empty alignment is not fatal to the pipeline: the estimation
// engine treats it the same as "no segments" and degrades to defaults.
type Aligner interface {
	// Align analyses wav (a complete RIFF/WAVE file) against transcript and
	// returns the detected phoneme segments. language is a BCP-47-ish code
	// the backend understands (e.g. "ja", "en").
	Align(ctx context.Context, wav []byte, transcript, language string) (Alignment, error)
}
