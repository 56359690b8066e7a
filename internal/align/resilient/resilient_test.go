package resilient_test

import (
	"errors"
	"testing"
	"time"

	"github.com/kazenokoe/otoforge/internal/align"
	alignmock "github.com/kazenokoe/otoforge/internal/align/mock"
	"github.com/kazenokoe/otoforge/internal/align/resilient"
)

func TestClosedBreakerForwardsCalls(t *testing.T) {
	t.Parallel()

	inner := &alignmock.Aligner{
		Default: align.Alignment{DurationMS: 500, Method: "scripted"},
	}
	a := resilient.Wrap(inner, resilient.Config{})

	got, err := a.Align(t.Context(), []byte("wav"), "ka", "ja")
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if got.DurationMS != 500 {
		t.Fatalf("DurationMS = %g, want 500", got.DurationMS)
	}
	if a.State() != resilient.StateClosed {
		t.Fatalf("state = %v, want closed", a.State())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	inner := &alignmock.Aligner{Err: errors.New("service down")}
	a := resilient.Wrap(inner, resilient.Config{MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		if _, err := a.Align(t.Context(), nil, "ka", "ja"); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}
	if a.State() != resilient.StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", a.State())
	}

	// The open breaker rejects without touching the service.
	calls := len(inner.Calls)
	_, err := a.Align(t.Context(), nil, "ka", "ja")
	if !errors.Is(err, resilient.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if len(inner.Calls) != calls {
		t.Fatal("open breaker forwarded a call to the aligner")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	inner := &alignmock.Aligner{Err: errors.New("flaky")}
	a := resilient.Wrap(inner, resilient.Config{MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, _ = a.Align(t.Context(), nil, "ka", "ja")
	}

	inner.Err = nil
	if _, err := a.Align(t.Context(), nil, "ka", "ja"); err != nil {
		t.Fatalf("Align: %v", err)
	}

	// Two more failures must not trip the breaker: the counter was reset.
	inner.Err = errors.New("flaky again")
	for i := 0; i < 2; i++ {
		_, _ = a.Align(t.Context(), nil, "ka", "ja")
	}
	if a.State() != resilient.StateClosed {
		t.Fatalf("state = %v, want closed", a.State())
	}
}

func TestHalfOpenProbesCloseBreaker(t *testing.T) {
	t.Parallel()

	inner := &alignmock.Aligner{Err: errors.New("service down")}
	a := resilient.Wrap(inner, resilient.Config{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	_, _ = a.Align(t.Context(), nil, "ka", "ja")
	if a.State() != resilient.StateOpen {
		t.Fatalf("state = %v, want open", a.State())
	}

	time.Sleep(20 * time.Millisecond)
	if a.State() != resilient.StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", a.State())
	}

	// Successful probes close the breaker.
	inner.Err = nil
	for i := 0; i < 2; i++ {
		if _, err := a.Align(t.Context(), nil, "ka", "ja"); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if a.State() != resilient.StateClosed {
		t.Fatalf("state = %v, want closed after probes", a.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	inner := &alignmock.Aligner{Err: errors.New("service down")}
	a := resilient.Wrap(inner, resilient.Config{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
	})

	_, _ = a.Align(t.Context(), nil, "ka", "ja")
	time.Sleep(20 * time.Millisecond)

	// The probe fails; the breaker re-opens immediately.
	if _, err := a.Align(t.Context(), nil, "ka", "ja"); err == nil {
		t.Fatal("probe should fail")
	}
	if a.State() != resilient.StateOpen {
		t.Fatalf("state = %v, want open after failed probe", a.State())
	}
	if _, err := a.Align(t.Context(), nil, "ka", "ja"); !errors.Is(err, resilient.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}
