// Package app wires the voicelaunch subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives them until the context is cancelled (or, in console
// mode, until input ends), and Shutdown tears everything down in order.
//
// The App is the single owner of the recognition and synthesis engines; the
// session controller and the feedback dispatcher borrow them.
//
// For testing, inject test doubles via functional options (WithRegistry,
// WithLauncher, WithMetrics, ...).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicelaunch/internal/config"
	"github.com/MrWong99/voicelaunch/internal/feedback"
	"github.com/MrWong99/voicelaunch/internal/health"
	"github.com/MrWong99/voicelaunch/internal/observe"
	"github.com/MrWong99/voicelaunch/internal/ranker"
	"github.com/MrWong99/voicelaunch/internal/session"
	"github.com/MrWong99/voicelaunch/internal/textnorm"
	"github.com/MrWong99/voicelaunch/internal/web"
	"github.com/MrWong99/voicelaunch/pkg/apps"
)

// errLoopDone ends the run group when the console loop finishes normally.
var errLoopDone = errors.New("app: listen loop finished")

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	catalogue  *apps.Catalogue // nil when a registry is injected
	registry   apps.Registry
	launcher   apps.Launcher
	dispatcher *feedback.Dispatcher
	controller *session.Controller
	server     *web.Server
	watcher    *config.Watcher

	metrics    *observe.Metrics
	gatherer   prometheus.Gatherer
	level      *slog.LevelVar
	listenOnce bool

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry injects an application registry instead of the config-backed
// catalogue.
func WithRegistry(r apps.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithLauncher injects a launcher instead of the config-backed catalogue.
func WithLauncher(l apps.Launcher) Option {
	return func(a *App) { a.launcher = l }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithLevelVar lets hot reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithWatcher runs w alongside the app; its changes are applied via
// [App.Reload]. The watcher's callback must call Reload.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithListenOnce makes Run perform a single listening attempt, wait for its
// announcements and return.
func WithListenOnce(once bool) Option {
	return func(a *App) { a.listenOnce = once }
}

// New creates an App by wiring all subsystems together. The providers come
// from main.go (see [BuildProviders]).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: a recognition provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Application catalogue ─────────────────────────────────────────
	if a.registry == nil || a.launcher == nil {
		a.catalogue = apps.NewCatalogue(cfg.CatalogueEntries())
		if a.registry == nil {
			a.registry = a.catalogue
		}
		if a.launcher == nil {
			a.launcher = a.catalogue
		}
		slog.Info("app catalogue loaded", "apps", len(cfg.Apps))
	}

	// ── 2. Feedback dispatcher ───────────────────────────────────────────
	a.dispatcher = feedback.New(providers.TTS,
		feedback.WithPrompts(cfg.Feedback.Prompts),
		feedback.WithErrorLocale(cfg.Speech.ErrorLocale),
		feedback.WithMetrics(a.metrics),
	)

	// ── 3. Session controller ────────────────────────────────────────────
	if err := a.initController(); err != nil {
		_ = a.dispatcher.Close()
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// Controller first so no attempt announces into a closed dispatcher.
	a.closers = append(a.closers, a.controller.Close, a.dispatcher.Close)

	// ── 4. HTTP control surface ──────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		if err := a.initServer(); err != nil {
			_ = a.controller.Close()
			_ = a.dispatcher.Close()
			return nil, fmt.Errorf("app: init web: %w", err)
		}
	}

	return a, nil
}

func (a *App) initController() error {
	norm, err := textnorm.Parse(a.cfg.Matching.FoldLanguage)
	if err != nil {
		return err
	}
	ctrl, err := session.New(session.ControllerConfig{
		Recognizer:    a.providers.STT,
		Registry:      a.registry,
		Launcher:      a.launcher,
		Announcer:     a.dispatcher,
		Ranker:        ranker.New(norm),
		Match:         a.cfg.Matching.MatchConfig(),
		ListenTimeout: a.cfg.Recognition.ListenTimeout,
		Metrics:       a.metrics,
	})
	if err != nil {
		return err
	}
	a.controller = ctrl
	return nil
}

func (a *App) initServer() error {
	checkers := []health.Checker{
		{Name: "session", Check: a.controller.Ready},
		health.Catalogue(a.registry),
	}
	if h, ok := a.providers.TTS.(interface{ Healthy(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "speech", Check: h.Healthy})
	}

	srv, err := web.New(web.Config{
		Addr:       a.cfg.Server.ListenAddr,
		Controller: a.controller,
		Listen:     a.listenConfig(),
		Events:     a.dispatcher,
		Registry:   a.registry,
		Health:     health.New(checkers...),
		Gatherer:   a.gatherer,
		Metrics:    a.metrics,
	})
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// listenConfig is the attempt configuration taken from the recognition section.
func (a *App) listenConfig() session.Config {
	return session.Config{
		LanguageModel: a.cfg.Recognition.LanguageModel,
		MaxResults:    a.cfg.Recognition.MaxResults,
	}
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Dispatcher returns the feedback dispatcher.
func (a *App) Dispatcher() *feedback.Dispatcher { return a.dispatcher }

// Registry returns the application registry.
func (a *App) Registry() apps.Registry { return a.registry }

// Server returns the HTTP control surface, or nil when none is configured.
func (a *App) Server() *web.Server { return a.server }

// Run starts the dispatcher and runs the control surface, the config watcher
// and (without a control surface, or with WithListenOnce) the console listen
// loop. It blocks until ctx is cancelled or the listen loop finishes.
func (a *App) Run(ctx context.Context) error {
	// The dispatcher outlives the run group so that the last announcements
	// are not cut off when the loop ends; Shutdown stops it.
	a.dispatcher.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error { return a.server.Run(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	if a.server == nil || a.listenOnce {
		g.Go(func() error { return a.listenLoop(gctx) })
	}

	slog.Info("voicelaunch running",
		"control_surface", a.server != nil,
		"listen_once", a.listenOnce,
	)

	err := g.Wait()
	if errors.Is(err, errLoopDone) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// listenLoop acts as the speak button in console mode: it starts an attempt,
// waits for it to finish and repeats.
func (a *App) listenLoop(ctx context.Context) error {
	cfg := a.listenConfig()
	for {
		err := a.controller.StartListening(ctx, cfg)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrSessionBusy):
			slog.Debug("app: attempt already in progress, waiting")
		case errors.Is(err, session.ErrRecognizerUnavailable), errors.Is(err, session.ErrClosed):
			slog.Info("app: recognizer unavailable, stopping listen loop", "err", err)
			return a.finishLoop(ctx)
		default:
			return fmt.Errorf("app: start listening: %w", err)
		}

		if err := a.controller.Wait(ctx); err != nil {
			return nil
		}
		if a.listenOnce {
			return a.finishLoop(ctx)
		}
	}
}

// finishLoop waits for pending announcements and ends the run group.
func (a *App) finishLoop(ctx context.Context) error {
	if err := a.dispatcher.Flush(ctx); err != nil {
		return nil
	}
	return errLoopDone
}

// Reload applies a changed configuration. Matching, prompts, the catalogue
// and the log level change live; other keys are logged as needing a restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MatchingChanged {
		if err := a.controller.SetMatchConfig(new.Matching.MatchConfig()); err != nil {
			slog.Warn("reload: matching config rejected", "err", err)
		} else {
			slog.Info("reload: matching config applied",
				"threshold", new.Matching.Threshold,
				"algorithm", new.Matching.Algorithm,
			)
		}
	}
	if d.PromptsChanged {
		a.dispatcher.SetPrompts(new.Feedback.Prompts)
		slog.Info("reload: feedback prompts applied")
	}
	if d.AppsChanged {
		if a.catalogue != nil {
			a.catalogue.Replace(new.CatalogueEntries())
			slog.Info("reload: app catalogue replaced", "apps", len(new.Apps))
		} else {
			slog.Warn("reload: apps changed but the registry is not config-backed")
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("reload: some changes take effect after a restart", "keys", d.RestartRequired)
	}
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel converts a config log level to a [slog.Level]. Unknown levels map
// to info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
