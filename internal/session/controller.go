package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voicelaunch/internal/feedback"
	"github.com/MrWong99/voicelaunch/internal/observe"
	"github.com/MrWong99/voicelaunch/internal/ranker"
	"github.com/MrWong99/voicelaunch/internal/textnorm"
	"github.com/MrWong99/voicelaunch/pkg/apps"
	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
)

// registryErrorMessage is announced when the installed applications cannot
// be listed.
const registryErrorMessage = "Could not read installed applications"

// Announcer receives feedback events. Implementations must not block.
type Announcer interface {
	Announce(feedback.Event)
}

type discardAnnouncer struct{}

func (discardAnnouncer) Announce(feedback.Event) {}

// ControllerConfig holds the dependencies of a [Controller].
type ControllerConfig struct {
	// Recognizer is the recognition engine. Required.
	Recognizer stt.Provider

	// Registry lists the launchable applications. Required.
	Registry apps.Registry

	// Launcher starts the best match. Required.
	Launcher apps.Launcher

	// Announcer receives feedback events. Nil discards them.
	Announcer Announcer

	// Ranker scores applications. Nil uses a ranker folding with
	// [textnorm.Default].
	Ranker *ranker.Ranker

	// Match is the initial match configuration. The zero value is
	// [ranker.DefaultMatchConfig].
	Match ranker.MatchConfig

	// ListenTimeout, when positive, ends an attempt with a speech-timeout
	// error if the engine has not produced a result in time. Zero waits
	// indefinitely.
	ListenTimeout time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Status is a point-in-time view of the controller.
type Status struct {
	State      State              `json:"state"`
	AttemptID  string             `json:"attempt_id,omitempty"`
	Query      string             `json:"query,omitempty"`
	Candidates []ranker.Candidate `json:"candidates"`
}

// attempt is one listening attempt.
type attempt struct {
	id     string
	handle stt.SessionHandle
	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
	done   chan struct{} // closed once the attempt is fully processed
}

// Controller drives listening attempts. All exported methods are safe for
// concurrent use.
type Controller struct {
	recognizer    stt.Provider
	registry      apps.Registry
	launcher      apps.Launcher
	announcer     Announcer
	ranker        *ranker.Ranker
	listenTimeout time.Duration
	metrics       *observe.Metrics

	mu         sync.Mutex
	state      State
	match      ranker.MatchConfig
	active     *attempt // attempt owning the current Listening state, or nil
	latest     *attempt // most recently started attempt, for Wait
	query      string
	candidates []ranker.Candidate
	closed     bool

	wg sync.WaitGroup
}

// New creates a Controller in [StateIdle].
func New(cfg ControllerConfig) (*Controller, error) {
	var errs []error
	if cfg.Recognizer == nil {
		errs = append(errs, errors.New("recognizer is required"))
	}
	if cfg.Registry == nil {
		errs = append(errs, errors.New("registry is required"))
	}
	if cfg.Launcher == nil {
		errs = append(errs, errors.New("launcher is required"))
	}
	if cfg.ListenTimeout < 0 {
		errs = append(errs, fmt.Errorf("listen timeout %s must not be negative", cfg.ListenTimeout))
	}
	if cfg.Match == (ranker.MatchConfig{}) {
		cfg.Match = ranker.DefaultMatchConfig
	}
	if err := cfg.Match.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("session: %w", errors.Join(errs...))
	}

	c := &Controller{
		recognizer:    cfg.Recognizer,
		registry:      cfg.Registry,
		launcher:      cfg.Launcher,
		announcer:     cfg.Announcer,
		ranker:        cfg.Ranker,
		listenTimeout: cfg.ListenTimeout,
		metrics:       cfg.Metrics,
		match:         cfg.Match,
	}
	if c.announcer == nil {
		c.announcer = discardAnnouncer{}
	}
	if c.ranker == nil {
		c.ranker = ranker.New(textnorm.Default)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// StartListening begins a listening attempt. It fails with an error wrapping
// [ErrConfiguration] for invalid parameters, [ErrSessionBusy] when the
// controller is not idle, [ErrClosed] after Close, and
// [ErrRecognizerUnavailable] when the engine refuses to start; in every
// failure case the state is unchanged.
//
// On success the controller is Listening and a Listening announcement has
// fired. The outcome arrives asynchronously. The attempt is not bound to
// ctx's cancellation, only to its values; use [Controller.StopListening] to
// abandon it.
//
// The engine is armed without holding the controller lock. Meanwhile the
// controller already reports Listening, further starts are rejected as busy,
// and StopListening or Close abandon the attempt once the engine is up.
func (c *Controller) StartListening(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionBusy
	}

	id := uuid.NewString()
	spanCtx, span := observe.StartSpan(ctx, "session.attempt",
		trace.WithAttributes(
			observe.AttemptAttr(id),
			attribute.String("language_model", cfg.LanguageModel.String()),
			attribute.Int("max_results", cfg.MaxResults),
		),
	)
	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(spanCtx))
	att := &attempt{
		id:     id,
		ctx:    attemptCtx,
		cancel: cancel,
		span:   span,
		done:   make(chan struct{}),
	}
	c.state = StateListening
	c.active = att
	c.latest = att
	c.wg.Add(1)
	c.mu.Unlock()

	handle, err := c.recognizer.StartListening(attemptCtx, stt.ListenConfig{
		LanguageModel: cfg.LanguageModel,
		MaxResults:    cfg.MaxResults,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if c.active == att {
			c.state = StateIdle
			c.active = nil
		}
		c.abandonLocked(att)
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognizer unavailable")
		span.End()
		return fmt.Errorf("%w: %w", ErrRecognizerUnavailable, err)
	}
	if c.active != att {
		// Stopped or closed while the engine was arming.
		c.abandonLocked(att)
		if stopErr := handle.Stop(); stopErr != nil {
			slog.Warn("session: stop recognizer", "attempt_id", id, "err", stopErr)
		}
		c.metrics.RecordOutcome(attemptCtx, observe.OutcomeStopped)
		span.SetAttributes(attribute.String("outcome", observe.OutcomeStopped))
		span.End()
		if c.closed {
			return ErrClosed
		}
		return nil
	}

	att.handle = handle
	c.metrics.ActiveSessions.Add(attemptCtx, 1)

	observe.Logger(attemptCtx).Info("session: listening",
		"attempt_id", id,
		"language_model", cfg.LanguageModel.String(),
		"max_results", cfg.MaxResults,
	)
	c.announcer.Announce(feedback.Listening())

	go c.consume(att)
	return nil
}

// abandonLocked releases an attempt whose engine never started consuming.
// Must be called with c.mu held.
func (c *Controller) abandonLocked(att *attempt) {
	att.cancel()
	close(att.done)
	c.wg.Done()
}

// StopListening abandons the attempt in progress without an outcome and
// returns the controller to Idle. It is a no-op unless the controller is
// Listening, so it is safe to race against an in-flight result or error:
// whichever is applied first wins.
func (c *Controller) StopListening() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	if c.state != StateListening || c.active == nil {
		return nil
	}
	att := c.active
	if att.handle == nil {
		// Still arming; StartListening stops the engine once it is up.
		c.state = StateIdle
		c.active = nil
		return nil
	}
	c.finishLocked(att, observe.OutcomeStopped)
	att.cancel()
	if err := att.handle.Stop(); err != nil {
		return fmt.Errorf("session: stop recognizer: %w", err)
	}
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastCandidates returns the ranked candidates of the most recent result.
func (c *Controller) LastCandidates() []ranker.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.candidates)
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:      c.state,
		Query:      c.query,
		Candidates: slices.Clone(c.candidates),
	}
	if st.Candidates == nil {
		st.Candidates = []ranker.Candidate{}
	}
	if c.active != nil {
		st.AttemptID = c.active.id
	}
	return st
}

// MatchConfig returns the match configuration used for the next result.
func (c *Controller) MatchConfig() ranker.MatchConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match
}

// SetMatchConfig replaces the match configuration. An attempt already being
// ranked keeps the configuration it started ranking with.
func (c *Controller) SetMatchConfig(m ranker.MatchConfig) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.match = m
	return nil
}

// Wait blocks until the most recently started attempt has been fully
// processed (including its launch) or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	att := c.latest
	c.mu.Unlock()
	if att == nil {
		return nil
	}
	select {
	case <-att.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready returns [ErrClosed] after Close and nil otherwise.
func (c *Controller) Ready(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Close stops any attempt in progress and waits for background work to
// finish. Later StartListening calls fail with [ErrClosed]. Close is
// idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	err := c.stopLocked()
	c.mu.Unlock()

	c.wg.Wait()
	return err
}

// consume applies the engine events of att until the attempt ends.
func (c *Controller) consume(att *attempt) {
	defer c.wg.Done()
	defer close(att.done)
	defer att.cancel()

	var timeout <-chan time.Time
	if c.listenTimeout > 0 {
		t := time.NewTimer(c.listenTimeout)
		defer t.Stop()
		timeout = t.C
	}

	events := att.handle.Events()
	for {
		select {
		case <-att.ctx.Done():
			return
		case <-timeout:
			slog.Info("session: engine silent past listen timeout",
				"attempt_id", att.id, "timeout", c.listenTimeout)
			if c.fail(att, stt.ErrSpeechTimeout) {
				_ = att.handle.Stop()
			}
			return
		case ev, ok := <-events:
			if !ok {
				// The engine ended the attempt without a terminal event.
				c.fail(att, stt.ErrClient)
				return
			}
			switch ev.Kind {
			case stt.EventReady:
				c.ready(att)
			case stt.EventPartial:
				slog.Debug("session: partial result ignored", "attempt_id", att.id)
			case stt.EventResult:
				c.complete(att, ev.Result)
				return
			case stt.EventError:
				c.fail(att, ev.Code)
				return
			default:
				slog.Warn("session: unknown engine event", "attempt_id", att.id, "kind", int(ev.Kind))
			}
		}
	}
}

// ready handles the microphone-armed signal. It never changes state.
func (c *Controller) ready(att *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != att {
		return
	}
	slog.Debug("session: engine ready", "attempt_id", att.id)
	c.announcer.Announce(feedback.Event{Kind: feedback.KindListening, Quiet: true})
}

// fail reports code for att. It reports whether att was still current.
func (c *Controller) fail(att *attempt, code stt.ErrorCode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != att || c.state != StateListening {
		return false
	}
	c.failLocked(att, code)
	return true
}

// failLocked moves Listening → Errored → Idle, announcing the message for
// code. Must be called with c.mu held.
func (c *Controller) failLocked(att *attempt, code stt.ErrorCode) {
	c.state = StateErrored
	err := &stt.RecognitionError{Code: code}
	att.span.RecordError(err)
	att.span.SetStatus(codes.Error, code.String())
	slog.Info("session: recognition failed",
		"attempt_id", att.id, "code", code.String(), "message", code.Message())

	c.announcer.Announce(feedback.Error(code.Message()))
	c.finishLocked(att, observe.OutcomeError)
}

// complete handles the engine's final result for att.
func (c *Controller) complete(att *attempt, result stt.Result) {
	c.mu.Lock()
	if c.active != att || c.state != StateListening {
		c.mu.Unlock()
		return
	}
	top, ok := result.Top()
	if !ok {
		c.failLocked(att, stt.ErrNoMatch)
		c.mu.Unlock()
		return
	}
	c.state = StateCompleted
	match := c.match
	c.mu.Unlock()

	candidates, rankErr := c.rank(att.ctx, top.Text, match)

	c.mu.Lock()
	c.query = top.Text
	c.candidates = candidates
	var launch *ranker.Candidate
	switch {
	case rankErr != nil:
		slog.Warn("session: list installed apps", "attempt_id", att.id, "err", rankErr)
		att.span.RecordError(rankErr)
		c.announcer.Announce(feedback.Error(registryErrorMessage))
		c.finishLocked(att, observe.OutcomeError)
	case len(candidates) == 0:
		slog.Info("session: no match", "attempt_id", att.id, "query", top.Text)
		c.announcer.Announce(feedback.NoMatchFound())
		c.finishLocked(att, observe.OutcomeNoMatch)
	default:
		best := candidates[0]
		launch = &best
		slog.Info("session: launching",
			"attempt_id", att.id,
			"query", top.Text,
			"app", best.DisplayName,
			"id", best.Identifier,
			"similarity", best.Similarity,
		)
		c.finishLocked(att, observe.OutcomeLaunched)
	}
	c.mu.Unlock()

	if launch != nil {
		c.launch(att, *launch)
	}
}

// rank lists the installed applications and ranks them against query.
func (c *Controller) rank(ctx context.Context, query string, match ranker.MatchConfig) ([]ranker.Candidate, error) {
	ctx, span := observe.StartSpan(ctx, "ranker.Rank")
	defer span.End()

	installed, err := c.registry.ListInstalledApps(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registry failure")
		return nil, err
	}

	start := time.Now()
	candidates := c.ranker.Rank(query, installed, match)
	c.metrics.RankDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("algorithm", match.Algorithm.String())))
	c.metrics.RankCandidates.Record(ctx, int64(len(candidates)))
	span.SetAttributes(
		attribute.Int("installed", len(installed)),
		attribute.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// launch hands best to the launcher and announces the launch once it has
// been accepted. The controller is already idle.
func (c *Controller) launch(att *attempt, best ranker.Candidate) {
	err := c.launcher.Launch(att.ctx, best.Identifier)
	c.metrics.RecordLaunch(att.ctx, err)
	if err == nil {
		c.announcer.Announce(feedback.LaunchingApp(best.DisplayName))
		return
	}
	err = fmt.Errorf("%w: %s: %w", ErrLaunchFailure, best.Identifier, err)
	slog.Warn("session: launch failed", "attempt_id", att.id, "app", best.DisplayName, "err", err)

	msg := "Could not launch " + best.DisplayName
	if errors.Is(err, apps.ErrNotLaunchable) {
		msg = best.DisplayName + " cannot be launched"
	}
	c.announcer.Announce(feedback.Error(msg))
}

// finishLocked returns the controller to Idle and records the outcome of
// att. Must be called with c.mu held.
func (c *Controller) finishLocked(att *attempt, outcome string) {
	c.state = StateIdle
	c.active = nil
	c.metrics.ActiveSessions.Add(att.ctx, -1)
	c.metrics.RecordOutcome(att.ctx, outcome)
	att.span.SetAttributes(attribute.String("outcome", outcome))
	att.span.End()
}
