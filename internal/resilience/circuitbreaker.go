// Package resilience keeps announcements flowing when a synthesis backend
// misbehaves.
//
// [Breaker] is a closed/open/half-open circuit breaker. [Group] orders several
// backends of one type, each behind its own breaker, and tries them in turn.
// [TTSFallback] applies a Group to [tts.Provider].
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// Closed forwards every call.
	Closed BreakerState = iota

	// Open rejects calls until the cool-down has elapsed.
	Open

	// HalfOpen lets a limited number of probe calls through.
	HalfOpen
)

// String returns the lowercase name of s.
func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close the
	// breaker again. Default 1.
	Probes int

	// IsFailure classifies call errors. Nil treats every non-nil error as a
	// failure.
	IsFailure func(error) bool

	// Now is the clock. Nil uses time.Now.
	Now func() time.Time
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	isFailure   func(error) bool
	now         func() time.Time

	mu         sync.Mutex
	state      BreakerState
	failures   int
	openedAt   time.Time
	probing    int
	probesDone int
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		isFailure:   cfg.IsFailure,
		now:         cfg.Now,
	}
	if b.maxFailures <= 0 {
		b.maxFailures = 3
	}
	if b.cooldown <= 0 {
		b.cooldown = 30 * time.Second
	}
	if b.probes <= 0 {
		b.probes = 1
	}
	if b.isFailure == nil {
		b.isFailure = func(err error) bool { return err != nil }
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Do calls fn unless the breaker is open, and records the outcome. While
// open it returns [ErrCircuitOpen] without calling fn. fn's error is
// returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	callErr := fn()
	b.record(probe, b.isFailure(callErr))
	return callErr
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		b.state = HalfOpen
		b.probing = 0
		b.probesDone = 0
		slog.Info("resilience: breaker half-open", "name", b.name)
	}
	if b.state == HalfOpen {
		if b.probing >= b.probes {
			return false, ErrCircuitOpen
		}
		b.probing++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case failed && probe:
		b.trip()
	case failed:
		b.failures++
		if b.state == Closed && b.failures >= b.maxFailures {
			b.trip()
		}
	case probe:
		b.probesDone++
		if b.probesDone >= b.probes {
			b.state = Closed
			b.failures = 0
			slog.Info("resilience: breaker closed", "name", b.name)
		}
	default:
		b.failures = 0
	}
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	slog.Warn("resilience: breaker open",
		"name", b.name, "consecutive_failures", b.failures, "cooldown", b.cooldown)
}

// State returns the breaker's state. An open breaker whose cool-down has
// elapsed reports HalfOpen; the transition itself happens on the next call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probing = 0
	b.probesDone = 0
}
