package apps

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// Compile-time interface assertions.
var (
	_ Registry = (*Catalogue)(nil)
	_ Launcher = (*Catalogue)(nil)
)

// Entry is one application known to a [Catalogue].
type Entry struct {
	App

	// Command is the executable started by Launch. An entry without a command
	// is listed but not launchable.
	Command string

	// Args are passed to Command.
	Args []string
}

// Catalogue is a static, replaceable list of applications. It is safe for
// concurrent use.
type Catalogue struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]Entry

	start func(ctx context.Context, name string, args ...string) error
}

// NewCatalogue returns a Catalogue holding entries. Later entries with a
// duplicate identifier shadow earlier ones for Launch but are still listed.
func NewCatalogue(entries []Entry) *Catalogue {
	c := &Catalogue{start: startDetached}
	c.Replace(entries)
	return c
}

// Replace swaps the catalogue contents, e.g. after a configuration reload.
func (c *Catalogue) Replace(entries []Entry) {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	byID := make(map[string]Entry, len(cp))
	for _, e := range cp {
		byID[e.Identifier] = e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = cp
	c.byID = byID
}

// ListInstalledApps returns the catalogue in configuration order.
func (c *Catalogue) ListInstalledApps(ctx context.Context) ([]App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]App, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.App
	}
	return out, nil
}

// Launch starts the entry's command without waiting for it to exit.
func (c *Catalogue) Launch(ctx context.Context, id string) error {
	c.mu.RLock()
	e, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok || e.Command == "" {
		return fmt.Errorf("apps: launch %q: %w", id, ErrNotLaunchable)
	}
	if err := c.start(ctx, e.Command, e.Args...); err != nil {
		return fmt.Errorf("apps: launch %q: %w", id, err)
	}
	return nil
}

// startDetached starts name and reaps it in the background. The launched
// application outlives ctx.
func startDetached(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
