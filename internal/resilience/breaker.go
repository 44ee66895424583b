// Package resilience protects the realtime pipeline from flaky provider
// backends. A [Breaker] stops hammering a backend after repeated failures;
// the failover wrappers in this package compose several backends of the same
// kind behind one provider interface, skipping entries whose breaker is open.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// the cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrBreakerOpen] until the cooldown
	// elapses.
	BreakerOpen

	// BreakerProbing lets a bounded number of calls through after the
	// cooldown. Success closes the breaker, failure re-opens it.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults noted on
// each field.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// FailureLimit is how many consecutive failures trip the breaker.
	// Default 3: on a live call a backend that failed three times in a row
	// is not coming back within the conversation.
	FailureLimit int

	// Cooldown is how long the breaker stays open before probing.
	// Default 15s.
	Cooldown time.Duration

	// ProbeQuota is how many trial calls the probing state admits before
	// the breaker decides. Default 2.
	ProbeQuota int
}

// Breaker is a three-state circuit breaker (closed, open, probing).
type Breaker struct {
	name         string
	failureLimit int
	cooldown     time.Duration
	probeQuota   int

	mu         sync.Mutex
	state      BreakerState
	failures   int
	openedAt   time.Time
	probesUsed int
	probesOK   int
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 2
	}
	return &Breaker{
		name:         cfg.Name,
		failureLimit: cfg.FailureLimit,
		cooldown:     cfg.Cooldown,
		probeQuota:   cfg.ProbeQuota,
	}
}

// Do runs fn if the breaker admits the call, otherwise returns
// [ErrBreakerOpen] without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.probesUsed = 0
		b.probesOK = 0
		slog.Info("breaker probing", "name", b.name)

	case BreakerProbing:
		if b.probesUsed >= b.probeQuota {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == BreakerProbing
	if probing {
		b.probesUsed++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.openedAt = time.Now()
	if probing {
		// One failed probe re-opens immediately.
		b.state = BreakerOpen
		b.failures = b.failureLimit
		slog.Warn("breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.failureLimit {
		b.state = BreakerOpen
		slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probesOK++
		if b.probesOK >= b.probeQuota {
			b.state = BreakerClosed
			b.failures = 0
			slog.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports [BreakerProbing]; the transition itself happens on the
// next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probesUsed = 0
	b.probesOK = 0
}
