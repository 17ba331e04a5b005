// Package stt defines the Provider interface for speech recognition engines.
//
// A recognition engine is treated as a black box: it is asked to listen once,
// and it reports back asynchronously through a stream of [Event] values on the
// returned SessionHandle. The central event kinds mirror the lifecycle of a
// single recognition attempt: the microphone is armed ([EventReady]),
// interim guesses may arrive ([EventPartial]), and the attempt ends with either
// an N-best list ([EventResult]) or an error code ([EventError]).
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by [Provider.StartListening] when the engine
// cannot accept another listening request (for example because its input is
// exhausted or it was shut down).
var ErrUnavailable = errors.New("stt: recognition engine unavailable")

// ListenConfig carries the recognition hints for one listening attempt.
type ListenConfig struct {
	// LanguageModel selects the engine's language model.
	LanguageModel LanguageModel

	// MaxResults caps the number of hypotheses in the N-best list. Zero lets
	// the engine choose.
	MaxResults int
}

// SessionHandle represents one in-flight listening attempt.
//
// The Events channel is closed by the implementation once the attempt has
// ended, either because a terminal event ([EventResult] or [EventError]) was
// delivered or because Stop was called.
type SessionHandle interface {
	// Events returns the channel on which engine callbacks are delivered, in
	// the order the engine produced them.
	Events() <-chan Event

	// Stop asks the engine to stop listening. No terminal event is
	// guaranteed after Stop. Calling Stop more than once is safe and returns nil.
	Stop() error
}

// Provider is the abstraction over any recognition engine.
//
// The engine is a single shared resource: callers must not start a second
// attempt while one is still in flight.
type Provider interface {
	// StartListening asks the engine to begin one recognition attempt and
	// returns immediately. Completion is reported through the handle's Events.
	StartListening(ctx context.Context, cfg ListenConfig) (SessionHandle, error)
}
