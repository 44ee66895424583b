package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failN(b *Breaker, n int) {
	for range n {
		_ = b.Do(func() error { return errBackend })
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "llm", FailureLimit: 3, Cooldown: time.Hour})
	failN(b, 2)
	if b.State() != BreakerClosed {
		t.Fatalf("state after 2 failures = %v, want closed", b.State())
	}
	failN(b, 1)
	if b.State() != BreakerOpen {
		t.Fatalf("state after 3 failures = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Do while open = %v, want ErrBreakerOpen", err)
	}
	if called {
		t.Error("fn called while breaker open")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureLimit: 3, Cooldown: time.Hour})
	failN(b, 2)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	failN(b, 2)
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed after interleaved success", b.State())
	}
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureLimit: 1, Cooldown: 10 * time.Millisecond, ProbeQuota: 2})
	failN(b, 1)
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != BreakerProbing {
		t.Fatalf("state after cooldown = %v, want probing", b.State())
	}

	// Two successful probes close the breaker.
	for range 2 {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe: %v", err)
		}
	}
	if b.State() != BreakerClosed {
		t.Errorf("state after probes = %v, want closed", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureLimit: 1, Cooldown: 10 * time.Millisecond, ProbeQuota: 2})
	failN(b, 1)
	time.Sleep(20 * time.Millisecond)

	failN(b, 1) // failed probe
	if b.State() != BreakerOpen {
		t.Fatalf("state after failed probe = %v, want open", b.State())
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Do right after reopen = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureLimit: 1, Cooldown: time.Hour})
	failN(b, 1)
	b.Reset()
	if b.State() != BreakerClosed {
		t.Fatalf("state after Reset = %v, want closed", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Do after Reset: %v", err)
	}
}
