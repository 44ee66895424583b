package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackends is returned when every backend in a chain failed or had an
// open breaker.
var ErrAllBackends = errors.New("resilience: all backends failed")

// backend pairs a provider value with its own breaker.
type backend[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// chain tries a primary and then each fallback in order, skipping entries
// whose breaker is open. The entry list is fixed after construction, so a
// chain is safe for concurrent use.
type chain[T any] struct {
	backends []backend[T]
}

func newChain[T any](cfg BreakerConfig, primaryName string, primary T) *chain[T] {
	return &chain[T]{backends: []backend[T]{newBackend(cfg, primaryName, primary)}}
}

func newBackend[T any](cfg BreakerConfig, name string, value T) backend[T] {
	cfg.Name = name
	return backend[T]{name: name, value: value, breaker: NewBreaker(cfg)}
}

func (c *chain[T]) add(cfg BreakerConfig, name string, value T) {
	c.backends = append(c.backends, newBackend(cfg, name, value))
}

// call tries fn against each backend until one succeeds. Generic function
// rather than a method: Go methods cannot add the result type parameter.
func call[T, R any](c *chain[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		last error
	)
	for i := range c.backends {
		be := &c.backends[i]
		var out R
		err := be.breaker.Do(func() error {
			var inner error
			out, inner = fn(be.value)
			return inner
		})
		if err == nil {
			if i > 0 {
				slog.Info("served by fallback backend", "backend", be.name)
			}
			return out, nil
		}
		last = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("backend skipped, breaker open", "backend", be.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", be.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllBackends, last)
}
