// Package session implements the recognition session controller: the state
// machine that drives one listening attempt from the speak button to a
// launched application.
//
// A [Controller] owns the recognition engine. At most one attempt is in
// flight at a time; engine events for that attempt are applied under a single
// mutex, and events belonging to an attempt that has already been stopped are
// ignored. Every finished attempt produces exactly one outcome announcement
// (launching, no match, or an error message) and returns the controller to
// [StateIdle].
package session

import (
	"errors"
	"fmt"

	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
)

var (
	// ErrConfiguration is returned by [Controller.StartListening] when the
	// session parameters are invalid. No listening attempt is made.
	ErrConfiguration = errors.New("session: invalid configuration")

	// ErrSessionBusy is returned by [Controller.StartListening] when an
	// attempt is already in progress.
	ErrSessionBusy = errors.New("session: a listening attempt is already in progress")

	// ErrRecognizerUnavailable wraps errors from the recognition engine when
	// it refuses to start listening.
	ErrRecognizerUnavailable = errors.New("session: recognizer unavailable")

	// ErrLaunchFailure wraps errors from the launcher. It is reported through
	// feedback and logs only; the session is already idle when it happens.
	ErrLaunchFailure = errors.New("session: launch failed")

	// ErrClosed is returned by [Controller.StartListening] after Close.
	ErrClosed = errors.New("session: controller closed")
)

// State is the controller's position in the recognition lifecycle.
type State int

const (
	// StateIdle accepts a new listening attempt.
	StateIdle State = iota

	// StateListening waits for the engine's result or error.
	StateListening

	// StateCompleted is held while a result is ranked.
	StateCompleted

	// StateErrored is held while an error is reported.
	StateErrored
)

// String returns the lowercase name of s.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the parameters of one listening attempt.
type Config struct {
	// LanguageModel selects the engine's language model. Required.
	LanguageModel stt.LanguageModel `json:"language_model"`

	// MaxResults caps the engine's N-best list. Zero lets the engine choose;
	// negative values are rejected.
	MaxResults int `json:"max_results"`
}

// DefaultConfig is a free-form attempt asking for the single best hypothesis.
var DefaultConfig = Config{LanguageModel: stt.FreeForm, MaxResults: 1}

// Validate reports all problems with c. The returned error wraps
// [ErrConfiguration].
func (c Config) Validate() error {
	var errs []error
	if !c.LanguageModel.IsValid() {
		errs = append(errs, fmt.Errorf("language model %s is not supported; valid values: free_form, web_search", c.LanguageModel))
	}
	if c.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("max results %d must not be negative", c.MaxResults))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}
