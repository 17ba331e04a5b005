// Package feedback turns recognition session transitions into user-facing
// announcements.
//
// A [Dispatcher] speaks each announcement through a [tts.Provider] using a
// strict FIFO utterance queue and fans the raw [Event] out to subscribers
// (UI consumers such as the websocket event stream). Feedback is best-effort:
// nothing the dispatcher does can fail a recognition attempt.
package feedback

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the type of a feedback [Event].
type Kind int

const (
	// KindListening fires when a listening attempt starts and when the engine
	// reports that the microphone is armed.
	KindListening Kind = iota + 1

	// KindLaunchingApp fires when the best candidate is handed to the launcher.
	KindLaunchingApp

	// KindNoMatchFound fires when no installed application scored above the
	// similarity threshold.
	KindNoMatchFound

	// KindError fires for recognition and launch failures. Message carries the
	// user-facing text.
	KindError
)

var kindNames = map[Kind]string{
	KindListening:    "listening",
	KindLaunchingApp: "launching_app",
	KindNoMatchFound: "no_match_found",
	KindError:        "error",
}

// String returns the snake_case name of k.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements [encoding.TextMarshaler].
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("feedback: unknown event kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("feedback: unknown event kind %q", string(b))
}

// Event is one announcement produced by the session controller.
type Event struct {
	Kind    Kind      `json:"kind"`
	AppName string    `json:"app_name,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`

	// Quiet events are published to subscribers but not spoken.
	Quiet bool `json:"quiet,omitempty"`
}

// Listening returns a [KindListening] event.
func Listening() Event { return Event{Kind: KindListening} }

// LaunchingApp returns a [KindLaunchingApp] event for the named app.
func LaunchingApp(name string) Event { return Event{Kind: KindLaunchingApp, AppName: name} }

// NoMatchFound returns a [KindNoMatchFound] event.
func NoMatchFound() Event { return Event{Kind: KindNoMatchFound} }

// Error returns a [KindError] event carrying message.
func Error(message string) Event { return Event{Kind: KindError, Message: message} }

// Prompts holds the phrase templates spoken for non-error events.
type Prompts struct {
	// Listening is spoken when an attempt starts.
	Listening string `yaml:"listening"`

	// Launching is spoken before an app is launched. The first "%s" is
	// replaced by the app's display name; without one the name is appended.
	Launching string `yaml:"launching"`

	// NoMatch is spoken when no candidate passed the threshold.
	NoMatch string `yaml:"no_match"`
}

// DefaultPrompts returns the built-in English prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		Listening: "Listening",
		Launching: "Launching %s",
		NoMatch:   "No matching app found",
	}
}

// withDefaults fills empty fields of p from [DefaultPrompts].
func (p Prompts) withDefaults() Prompts {
	def := DefaultPrompts()
	if p.Listening == "" {
		p.Listening = def.Listening
	}
	if p.Launching == "" {
		p.Launching = def.Launching
	}
	if p.NoMatch == "" {
		p.NoMatch = def.NoMatch
	}
	return p
}

// Phrase renders the spoken text for ev. Error events speak their message
// verbatim.
func (p Prompts) Phrase(ev Event) string {
	p = p.withDefaults()
	switch ev.Kind {
	case KindListening:
		return p.Listening
	case KindLaunchingApp:
		if strings.Contains(p.Launching, "%s") {
			return strings.Replace(p.Launching, "%s", ev.AppName, 1)
		}
		return strings.TrimSpace(p.Launching + " " + ev.AppName)
	case KindNoMatchFound:
		return p.NoMatch
	case KindError:
		return ev.Message
	default:
		return ""
	}
}
