// Package console provides a line-oriented recognition engine that treats each
// line read from an [io.Reader] as one spoken phrase. It is intended for
// terminals and for hosts without a microphone; the rest of the launcher cannot
// tell it apart from an acoustic engine.
//
// Every listening attempt emits [stt.EventReady] followed by exactly one
// terminal event:
//
//   - a non-blank line becomes an N-best list. Alternatives may be separated by
//     "|" ("kakao talk | cacao talk"), most likely first.
//   - a blank line becomes an empty result.
//   - end of input becomes [stt.ErrClient]; later attempts fail with
//     [stt.ErrUnavailable].
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// alternativeSep separates N-best alternatives on one input line.
const alternativeSep = "|"

// Option is a functional option for configuring a console Provider.
type Option func(*Provider)

// WithPrompt writes prompt to w whenever the engine becomes ready.
func WithPrompt(w io.Writer, prompt string) Option {
	return func(p *Provider) {
		p.promptOut = w
		p.prompt = prompt
	}
}

type line struct {
	text string
	err  error
}

// Provider is a console recognition engine. It is safe for concurrent use,
// although the launcher only ever runs one attempt at a time.
type Provider struct {
	in        io.Reader
	promptOut io.Writer
	prompt    string

	readOnce sync.Once
	lines    chan line

	mu        sync.Mutex
	exhausted bool
}

// New returns a Provider reading phrases from r.
func New(r io.Reader, opts ...Option) *Provider {
	p := &Provider{
		in:    r,
		lines: make(chan line),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// StartListening begins one attempt. The first line read after this call is
// the recognised phrase.
func (p *Provider) StartListening(ctx context.Context, cfg stt.ListenConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	exhausted := p.exhausted
	p.mu.Unlock()
	if exhausted {
		return nil, fmt.Errorf("console: input closed: %w", stt.ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.readOnce.Do(func() { go p.readLines() })

	s := &session{
		events: make(chan stt.Event, 2),
		done:   make(chan struct{}),
	}
	go p.listen(ctx, s, cfg.MaxResults)
	return s, nil
}

// readLines feeds p.lines until the reader is exhausted.
func (p *Provider) readLines() {
	sc := bufio.NewScanner(p.in)
	for sc.Scan() {
		p.lines <- line{text: sc.Text()}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	p.lines <- line{err: err}
	close(p.lines)
}

func (p *Provider) listen(ctx context.Context, s *session, maxResults int) {
	defer close(s.events)

	s.events <- stt.Ready()
	if p.promptOut != nil && p.prompt != "" {
		fmt.Fprint(p.promptOut, p.prompt)
	}

	select {
	case <-s.done:
		return
	case <-ctx.Done():
		s.events <- stt.ErrorEvent(stt.ErrClient)
	case l, ok := <-p.lines:
		if !ok || l.err != nil {
			p.mu.Lock()
			p.exhausted = true
			p.mu.Unlock()
			s.events <- stt.ErrorEvent(stt.ErrClient)
			return
		}
		s.events <- stt.ResultEvent(parseLine(l.text, maxResults))
	}
}

// parseLine splits a console line into an N-best list. maxResults <= 0 keeps
// every alternative.
func parseLine(text string, maxResults int) stt.Result {
	var res stt.Result
	for _, alt := range strings.Split(text, alternativeSep) {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		res = append(res, stt.Hypothesis{Text: alt})
		if maxResults > 0 && len(res) == maxResults {
			break
		}
	}
	return res
}

type session struct {
	events   chan stt.Event
	done     chan struct{}
	stopOnce sync.Once
}

func (s *session) Events() <-chan stt.Event { return s.events }

func (s *session) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}
