// Package mock provides a test double for the align.Aligner interface.
//
// Use Aligner to feed scripted alignments into the pipeline and inspect which
// takes were submitted:
//
//	a := &mock.Aligner{
//	    Results: map[string]align.Alignment{
//	        "ka": {Segments: segs, DurationMS: 250, Method: "scripted"},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/kazenokoe/otoforge/internal/align"
)

// AlignCall records a single invocation of Aligner.Align.
type AlignCall struct {
	// Transcript is the transcript passed to Align.
	Transcript string
	// Language is the language code passed to Align.
	Language string
	// WavLen is the byte length of the audio passed to Align.
	WavLen int
}

// Aligner is a mock implementation of align.Aligner. The zero value returns
// an empty Alignment for every call.
type Aligner struct {
	mu sync.Mutex

	// Results maps a transcript to the Alignment returned for it. Transcripts
	// not present fall back to Default.
	Results map[string]align.Alignment

	// Default is returned for transcripts absent from Results.
	Default align.Alignment

	// Err, if non-nil, is returned as the error from every Align call.
	Err error

	// Calls records every invocation.
	Calls []AlignCall
}

var _ align.Aligner = (*Aligner)(nil)

// Align records the call and returns the scripted result.
func (a *Aligner) Align(_ context.Context, wav []byte, transcript, language string) (align.Alignment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, AlignCall{Transcript: transcript, Language: language, WavLen: len(wav)})
	if a.Err != nil {
		return align.Alignment{}, a.Err
	}
	if res, ok := a.Results[transcript]; ok {
		return res, nil
	}
	return a.Default, nil
}

// Reset clears all recorded calls. Thread-safe.
func (a *Aligner) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = nil
}
