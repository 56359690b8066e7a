// Package resilient wraps an align.Aligner with a three-state circuit breaker
// (closed → open → half-open) so a struggling alignment service does not drag
// every take of a batch through a full timeout.
//
// While the breaker is open, Align fails immediately with [ErrCircuitOpen]
// instead of contacting the service; the pipeline records the take as failed
// and moves on. After the reset timeout a limited number of probe calls are
// allowed through, and the breaker closes again once they succeed.
//
// Safe for concurrent use.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kazenokoe/otoforge/internal/align"
)

// ErrCircuitOpen is returned by Align while the breaker is open and the reset
// timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilient: alignment circuit is open")

// Compile-time interface assertion.
var _ align.Aligner = (*Aligner)(nil)

// State is the breaker's current operating mode.
type State int

const (
	// StateClosed forwards every call to the wrapped aligner.
	StateClosed State = iota

	// StateOpen rejects calls immediately with ErrCircuitOpen until the
	// reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through; success
	// closes the breaker, failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the breaker's tuning knobs. Zero-value fields are replaced
// with defaults.
type Config struct {
	// MaxFailures is the number of consecutive alignment failures before the
	// breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing the
	// service again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open
	// state. Default: 3.
	HalfOpenMax int
}

// Aligner is a breaker-protected align.Aligner.
type Aligner struct {
	inner        align.Aligner
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// Wrap returns inner protected by a circuit breaker.
func Wrap(inner align.Aligner, cfg Config) *Aligner {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &Aligner{
		inner:        inner,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        StateClosed,
	}
}

// Align implements [align.Aligner]. It forwards to the wrapped aligner when
// the breaker allows it and returns ErrCircuitOpen otherwise.
func (a *Aligner) Align(ctx context.Context, wav []byte, transcript, language string) (align.Alignment, error) {
	a.mu.Lock()
	switch a.state {
	case StateOpen:
		if time.Since(a.lastFailure) < a.resetTimeout {
			a.mu.Unlock()
			return align.Alignment{}, ErrCircuitOpen
		}
		a.state = StateHalfOpen
		a.halfOpenCalls = 0
		a.halfOpenFails = 0
		slog.Info("alignment circuit transitioning to half-open")

	case StateHalfOpen:
		if a.halfOpenCalls >= a.halfOpenMax {
			a.mu.Unlock()
			return align.Alignment{}, ErrCircuitOpen
		}
	}

	inHalfOpen := a.state == StateHalfOpen
	if inHalfOpen {
		a.halfOpenCalls++
	}
	a.mu.Unlock()

	result, err := a.inner.Align(ctx, wav, transcript, language)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.recordFailure(inHalfOpen)
	} else {
		a.recordSuccess(inHalfOpen)
	}
	return result, err
}

// recordFailure handles failure accounting. Caller must hold a.mu.
func (a *Aligner) recordFailure(inHalfOpen bool) {
	a.lastFailure = time.Now()

	if inHalfOpen {
		a.halfOpenFails++
		a.state = StateOpen
		a.consecutiveFail = a.maxFailures
		slog.Warn("alignment circuit re-opened from half-open")
		return
	}

	a.consecutiveFail++
	if a.consecutiveFail >= a.maxFailures {
		a.state = StateOpen
		slog.Warn("alignment circuit opened",
			"consecutive_failures", a.consecutiveFail)
	}
}

// recordSuccess handles success accounting. Caller must hold a.mu.
func (a *Aligner) recordSuccess(inHalfOpen bool) {
	if inHalfOpen {
		if successes := a.halfOpenCalls - a.halfOpenFails; successes >= a.halfOpenMax {
			a.state = StateClosed
			a.consecutiveFail = 0
			a.halfOpenCalls = 0
			a.halfOpenFails = 0
			slog.Info("alignment circuit closed after successful probes")
		}
		return
	}
	a.consecutiveFail = 0
}

// State returns the breaker's current state. An open breaker whose reset
// timeout has elapsed reports half-open; the actual transition happens on the
// next Align call.
func (a *Aligner) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateOpen && time.Since(a.lastFailure) >= a.resetTimeout {
		return StateHalfOpen
	}
	return a.state
}
