// Package mock provides test doubles for the apps package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicelaunch/pkg/apps"
)

// Registry is a mock implementation of apps.Registry.
type Registry struct {
	mu sync.Mutex

	// Apps is returned by ListInstalledApps.
	Apps []apps.App

	// ListErr, if non-nil, is returned by ListInstalledApps.
	ListErr error

	// ListCallCount is the number of ListInstalledApps calls.
	ListCallCount int
}

// ListInstalledApps records the call and returns Apps, ListErr.
func (r *Registry) ListInstalledApps(_ context.Context) ([]apps.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListCallCount++
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	out := make([]apps.App, len(r.Apps))
	copy(out, r.Apps)
	return out, nil
}

// Ensure Registry implements apps.Registry at compile time.
var _ apps.Registry = (*Registry)(nil)

// Launcher is a mock implementation of apps.Launcher.
type Launcher struct {
	mu sync.Mutex

	// LaunchErr, if non-nil, is returned by every Launch call.
	LaunchErr error

	// Launched records the identifiers passed to Launch, in order.
	Launched []string
}

// Launch records id and returns LaunchErr.
func (l *Launcher) Launch(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Launched = append(l.Launched, id)
	return l.LaunchErr
}

// Calls returns a copy of Launched. Thread-safe.
func (l *Launcher) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.Launched))
	copy(out, l.Launched)
	return out
}

// Ensure Launcher implements apps.Launcher at compile time.
var _ apps.Launcher = (*Launcher)(nil)
