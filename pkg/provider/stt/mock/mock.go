// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts listening with the expected
// ListenConfig. Use Session to push controlled engine events and inspect how
// often the caller stopped the attempt.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	handle, _ := p.StartListening(ctx, cfg)
//	sess.Emit(stt.Ready())
//	sess.Emit(stt.ResultEvent(stt.Result{{Text: "calculator"}}))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
)

// StartListeningCall records a single invocation of Provider.StartListening.
type StartListeningCall struct {
	// Ctx is the context passed to StartListening.
	Ctx context.Context
	// Cfg is the ListenConfig passed to StartListening.
	Cfg stt.ListenConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are handed out by StartListening in order. When exhausted, a
	// fresh Session is created for every call.
	Sessions []*Session

	// StartListeningErr, if non-nil, is returned as the error from StartListening.
	StartListeningErr error

	// StartListeningCalls records every call to StartListening.
	StartListeningCalls []StartListeningCall

	issued []*Session
}

// StartListening records the call and returns the next Session.
func (p *Provider) StartListening(ctx context.Context, cfg stt.ListenConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartListeningCalls = append(p.StartListeningCalls, StartListeningCall{Ctx: ctx, Cfg: cfg})
	if p.StartListeningErr != nil {
		return nil, p.StartListeningErr
	}
	var s *Session
	if len(p.Sessions) > 0 {
		s = p.Sessions[0]
		p.Sessions = p.Sessions[1:]
	} else {
		s = NewSession()
	}
	p.issued = append(p.issued, s)
	return s, nil
}

// CallCount returns the number of StartListening calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartListeningCalls)
}

// LastSession returns the most recently issued Session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.issued) == 0 {
		return nil
	}
	return p.issued[len(p.issued)-1]
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartListeningCalls = nil
	p.issued = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Events pushed with
// Emit are delivered on Events in order; Stop and Finish close the channel.
type Session struct {
	mu     sync.Mutex
	ch     chan stt.Event
	closed bool

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// StopCallCount is the number of times Stop was called.
	StopCallCount int
}

// NewSession returns a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{ch: make(chan stt.Event, 16)}
}

// Events returns the event channel.
func (s *Session) Events() <-chan stt.Event {
	return s.ch
}

// Emit queues ev for delivery. It reports false if the session is already
// closed, in which case ev is dropped.
func (s *Session) Emit(ev stt.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- ev
	return true
}

// Finish closes the event channel as a real engine does after a terminal
// event. Safe to call more than once.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Stop records the call, closes the event channel and returns StopErr.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.StopCallCount++
	err := s.StopErr
	s.mu.Unlock()
	s.Finish()
	return err
}

// StopCalls returns StopCallCount. Thread-safe.
func (s *Session) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCallCount
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
