package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned by [Group.Do] when no member succeeded. The
// returned error also wraps every member's error.
var ErrAllFailed = errors.New("resilience: all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group is an ordered list of interchangeable providers, each guarded by its
// own [Breaker]. Members are added during setup; Do may then be called
// concurrently.
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup returns a Group whose members get breakers configured from cfg.
// cfg.Name is replaced by each member's name.
func NewGroup[T any](cfg BreakerConfig) *Group[T] {
	return &Group[T]{cfg: cfg}
}

// Add appends a provider. Providers are tried in the order they were added.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Len returns the number of members.
func (g *Group[T]) Len() int { return len(g.members) }

// Names returns the member names in trial order.
func (g *Group[T]) Names() []string {
	out := make([]string, len(g.members))
	for i, m := range g.members {
		out[i] = m.name
	}
	return out
}

// Healthy returns nil when at least one member's breaker admits calls, and
// an error naming the open members otherwise. An empty group is unhealthy.
func (g *Group[T]) Healthy() error {
	if len(g.members) == 0 {
		return fmt.Errorf("%w: no providers registered", ErrAllFailed)
	}
	open := make([]string, 0, len(g.members))
	for _, m := range g.members {
		if m.breaker.State() != Open {
			return nil
		}
		open = append(open, m.name)
	}
	return fmt.Errorf("%w: circuit open for %v", ErrCircuitOpen, open)
}

// Do calls fn with each member in order until one call is not classified as
// a failure, and returns that call's error (which may be non-nil, e.g. a
// warning the classifier accepts). Each member is tried at most once; members
// with an open breaker are skipped. Do stops early when ctx is done.
func (g *Group[T]) Do(ctx context.Context, fn func(T) error) error {
	errs := make([]error, 0, len(g.members))
	for _, m := range g.members {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := m.breaker.Do(func() error { return fn(m.value) })
		switch {
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: skipping provider with open breaker", "provider", m.name)
		case !m.breaker.isFailure(err):
			return err
		default:
			slog.Warn("resilience: provider failed, trying next", "provider", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: no providers registered", ErrAllFailed)
	}
	return fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
