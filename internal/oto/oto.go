// Package oto defines the UTAU oto timing parameter model, the two validation
// policies applied to it, and the oto.ini line grammar.
//
// The five timing fields of [Params] describe how a sample file is played
// during concatenative synthesis. Two physical invariants must hold for a
// record to be usable:
//
//   - Consonant >= Offset: the fixed (non-time-stretched) region cannot end
//     before playback starts.
//   - Preutterance >= Offset: the note-alignment point cannot precede
//     playback start.
//
// Human edit paths use [ValidateStrict], which rejects violations. Machine
// suggestion paths use [Clamp], which repairs violations and reports what it
// changed, so that parameter synthesis always yields a usable record.
package oto

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by entry collections.
var (
	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("oto: entry not found")

	// ErrDuplicateEntry indicates an entry with the same (filename, alias)
	// pair already exists.
	ErrDuplicateEntry = errors.New("oto: duplicate entry")
)

// Params holds the five oto timing fields, all in milliseconds.
type Params struct {
	// Offset is the playback start position within the sample. Never negative.
	Offset float64 `json:"offset"`

	// Consonant is the end of the fixed region that synthesis never
	// time-stretches. Never negative.
	Consonant float64 `json:"consonant"`

	// Cutoff is the playback end position. Negative values are measured
	// backward from the end of the audio; positive from the start.
	Cutoff float64 `json:"cutoff"`

	// Preutterance is the absolute position used to align the sample against
	// note timing. Never negative.
	Preutterance float64 `json:"preutterance"`

	// Overlap is the absolute position where crossfade with the previous note
	// begins. Negative values create a silent gap instead of a crossfade.
	Overlap float64 `json:"overlap"`
}

// Entry is one persisted oto record: a sample file, its alias, and its timing
// parameters. Entries are unique per (Filename, Alias) within a voicebank.
type Entry struct {
	Filename string `json:"filename"`
	Alias    string `json:"alias"`
	Params   Params `json:"params"`
}

// Key returns the uniqueness key of the entry within its voicebank.
func (e Entry) Key() string {
	return e.Filename + "\x00" + e.Alias
}

// TimingError describes a strict validation failure: which invariant was
// violated and by how much.
type TimingError struct {
	// Field is the violating field name ("consonant" or "preutterance").
	Field string

	// Value is the rejected field value.
	Value float64

	// Bound is the minimum the field must reach (the offset).
	Bound float64
}

// Error implements the error interface.
func (e *TimingError) Error() string {
	return fmt.Sprintf("oto: %s %.4g precedes offset %.4g (short by %.4g ms)",
		e.Field, e.Value, e.Bound, e.Bound-e.Value)
}

// ValidateStrict rejects params that violate a hard timing invariant. Used
// wherever a human explicitly supplies or edits parameters: correctness over
// availability. Returns a *TimingError naming the first violated invariant.
func ValidateStrict(p Params) error {
	if p.Consonant < p.Offset {
		return &TimingError{Field: "consonant", Value: p.Consonant, Bound: p.Offset}
	}
	if p.Preutterance < p.Offset {
		return &TimingError{Field: "preutterance", Value: p.Preutterance, Bound: p.Offset}
	}
	return nil
}

// Clamp repairs params so that every hard invariant holds, returning the
// repaired record and a human-readable warning per applied repair. Used for
// machine-generated suggestions: availability over silent failure. Clamp is
// idempotent: clamping an already-clamped record returns it unchanged with
// no warnings.
func Clamp(p Params) (Params, []string) {
	var warnings []string

	if p.Consonant < p.Offset {
		warnings = append(warnings, fmt.Sprintf(
			"consonant %.4g preceded offset %.4g; raised to offset", p.Consonant, p.Offset))
		p.Consonant = p.Offset
	}
	if p.Preutterance < p.Offset {
		warnings = append(warnings, fmt.Sprintf(
			"preutterance %.4g preceded offset %.4g; raised to offset", p.Preutterance, p.Offset))
		p.Preutterance = p.Offset
	}
	// A crossfade extending past the stretch point produces audible artifacts.
	if p.Overlap > p.Preutterance {
		warnings = append(warnings, fmt.Sprintf(
			"overlap %.4g exceeded preutterance %.4g; lowered to preutterance", p.Overlap, p.Preutterance))
		p.Overlap = p.Preutterance
	}

	return p, warnings
}

// SoftWarnings returns non-blocking advisory notes about unusual parameter
// shapes. It never mutates and never fails; the warnings are meant for a
// human reviewer.
func SoftWarnings(p Params) []string {
	var warnings []string

	if p.Cutoff >= 0 {
		warnings = append(warnings, fmt.Sprintf(
			"cutoff %.4g is non-negative, which is unusual; cutoff is normally negative, measured from the end of the sample", p.Cutoff))
	}
	if p.Overlap > p.Preutterance {
		warnings = append(warnings, fmt.Sprintf(
			"overlap %.4g exceeds preutterance %.4g; the crossfade will reach past the stretch point", p.Overlap, p.Preutterance))
	}

	return warnings
}
