package stt

import (
	"fmt"
	"strings"
)

// LanguageModel selects the recognition engine's language model.
type LanguageModel int

const (
	// LanguageModelUnknown is the zero value and is rejected by validation.
	LanguageModelUnknown LanguageModel = iota

	// FreeForm is tuned for free-form dictation such as application names.
	FreeForm

	// WebSearch is tuned for short search-like queries.
	WebSearch
)

// String returns the configuration form of m.
func (m LanguageModel) String() string {
	switch m {
	case FreeForm:
		return "free_form"
	case WebSearch:
		return "web_search"
	default:
		return fmt.Sprintf("LanguageModel(%d)", int(m))
	}
}

// IsValid reports whether m is a recognised language model.
func (m LanguageModel) IsValid() bool {
	return m == FreeForm || m == WebSearch
}

// ParseLanguageModel converts the configuration form ("free_form",
// "web_search") into a [LanguageModel].
func ParseLanguageModel(s string) (LanguageModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free_form", "freeform":
		return FreeForm, nil
	case "web_search", "websearch":
		return WebSearch, nil
	}
	return LanguageModelUnknown, fmt.Errorf("stt: unknown language model %q; valid values: free_form, web_search", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (m LanguageModel) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("stt: cannot marshal %s", m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (m *LanguageModel) UnmarshalText(b []byte) error {
	v, err := ParseLanguageModel(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Hypothesis is one candidate transcript of a recognition attempt.
type Hypothesis struct {
	// Text is the recognised phrase.
	Text string

	// Confidence is the engine-reported confidence in [0, 1]. It is nil when
	// the engine does not report one; a nil confidence is not the same as 0.
	Confidence *float64
}

// Result is the N-best list of one recognition attempt, ordered by the
// engine (most confident first). It may be empty.
type Result []Hypothesis

// Top returns the first hypothesis and true, or the zero value and false when
// r is empty.
func (r Result) Top() (Hypothesis, bool) {
	if len(r) == 0 {
		return Hypothesis{}, false
	}
	return r[0], true
}

// EventKind tags the payload carried by an [Event].
type EventKind int

const (
	// EventReady signals that the microphone is armed.
	EventReady EventKind = iota + 1

	// EventPartial carries interim hypotheses. The launcher ignores them.
	EventPartial

	// EventResult carries the final N-best list.
	EventResult

	// EventError carries a recognition error code.
	EventError
)

// String returns a short lowercase name for k.
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventPartial:
		return "partial"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single engine callback. Only the field matching Kind is set.
type Event struct {
	Kind EventKind

	// Result is set for EventResult and EventPartial.
	Result Result

	// Code is set for EventError.
	Code ErrorCode
}

// Ready returns an [EventReady] event.
func Ready() Event { return Event{Kind: EventReady} }

// ResultEvent returns an [EventResult] event carrying r.
func ResultEvent(r Result) Event { return Event{Kind: EventResult, Result: r} }

// ErrorEvent returns an [EventError] event carrying code.
func ErrorEvent(code ErrorCode) Event { return Event{Kind: EventError, Code: code} }

// Confidence is a helper for building a [Hypothesis] with a reported
// confidence value.
func Confidence(v float64) *float64 { return &v }
