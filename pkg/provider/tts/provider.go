// Package tts defines the Provider interface for speech synthesis engines.
//
// A synthesis engine turns one [Utterance] into audible speech. Speak blocks
// until the utterance has been spoken (or has failed), which lets callers build
// a strict FIFO queue on top of it: the next utterance is only submitted once
// the previous one has finished, so utterances never overlap.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrLocaleUnsupported is returned (possibly wrapped) by [Provider.Speak] when
// the requested locale is not available. The utterance has still been spoken,
// using the engine's default locale; callers should log and otherwise ignore
// this condition.
var ErrLocaleUnsupported = errors.New("tts: locale not supported, spoke with default locale")

// Utterance is one piece of text to be spoken.
type Utterance struct {
	// Text is the phrase to speak.
	Text string

	// Locale is a BCP-47 tag (e.g. "en", "ko-KR"). Empty selects the engine's
	// default locale.
	Locale string
}

// Provider is the abstraction over any speech synthesis backend.
type Provider interface {
	// Speak synthesises u and returns once playback has completed.
	//
	// A non-nil error wrapping [ErrLocaleUnsupported] means the text was spoken
	// in the default locale. Any other error means nothing was spoken.
	Speak(ctx context.Context, u Utterance) error
}
