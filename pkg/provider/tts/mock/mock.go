// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to verify which utterances were spoken, in which order, and
// whether any two of them overlapped.
//
// Example:
//
//	p := &mock.Provider{Delay: 5 * time.Millisecond}
//	_ = p.Speak(ctx, tts.Utterance{Text: "hello"})
//	p.Texts() // ["hello"]
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voicelaunch/pkg/provider/tts"
)

// SpeakCall records a single invocation of Provider.Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Utterance is the utterance passed to Speak.
	Utterance tts.Utterance
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// UnsupportedLocales lists locales for which Speak returns
	// tts.ErrLocaleUnsupported (after recording the call).
	UnsupportedLocales []string

	// Delay simulates playback time.
	Delay time.Duration

	// --- Call records ---

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	inFlight   int
	overlapped bool
	notify     chan struct{}
}

// Speak records the call, waits Delay and returns the configured error.
func (p *Provider) Speak(ctx context.Context, u tts.Utterance) error {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > 1 {
		p.overlapped = true
	}
	p.SpeakCalls = append(p.SpeakCalls, SpeakCall{Ctx: ctx, Utterance: u})
	delay := p.Delay
	err := p.SpeakErr
	if err == nil {
		for _, l := range p.UnsupportedLocales {
			if l == u.Locale {
				err = tts.ErrLocaleUnsupported
				break
			}
		}
	}
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	p.mu.Lock()
	p.inFlight--
	if p.notify != nil {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
	p.mu.Unlock()
	return err
}

// Texts returns the spoken texts in call order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SpeakCalls))
	for i, c := range p.SpeakCalls {
		out[i] = c.Utterance.Text
	}
	return out
}

// Calls returns a copy of SpeakCalls. Thread-safe.
func (p *Provider) Calls() []SpeakCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SpeakCall, len(p.SpeakCalls))
	copy(out, p.SpeakCalls)
	return out
}

// Overlapped reports whether two Speak calls were ever in flight at once.
func (p *Provider) Overlapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlapped
}

// WaitForCalls blocks until at least n Speak calls have completed or timeout
// elapses. It reports whether the count was reached.
func (p *Provider) WaitForCalls(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		done := len(p.SpeakCalls) >= n && p.inFlight == 0
		if p.notify == nil {
			p.notify = make(chan struct{}, 1)
		}
		ch := p.notify
		p.mu.Unlock()
		if done {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-ch:
		case <-time.After(min(remaining, 10*time.Millisecond)):
		}
	}
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SpeakCalls = nil
	p.overlapped = false
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
