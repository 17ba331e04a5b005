// Package apps defines the host-side collaborators of the launcher: a
// [Registry] that enumerates installed applications and a [Launcher] that
// starts one of them by identifier.
//
// [Catalogue] is a configuration-backed implementation of both interfaces for
// desktop hosts. Platform bridges (for example an Android package manager)
// implement the interfaces directly.
package apps

import (
	"context"
	"errors"
)

// ErrNotLaunchable is returned by [Launcher.Launch] when no entry point exists
// for the requested identifier.
var ErrNotLaunchable = errors.New("apps: no launchable entry point")

// App is one installed application.
type App struct {
	// DisplayName is the user-facing label that speech is matched against.
	DisplayName string

	// Identifier uniquely names the application to the launcher (a package
	// name, desktop-file id, bundle id, ...).
	Identifier string
}

// Registry enumerates installed applications. Enumeration order is
// unspecified.
type Registry interface {
	ListInstalledApps(ctx context.Context) ([]App, error)
}

// Launcher starts applications.
type Launcher interface {
	// Launch starts the application identified by id. It returns an error
	// wrapping [ErrNotLaunchable] when id has no entry point.
	Launch(ctx context.Context, id string) error
}
