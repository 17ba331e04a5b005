// Package command provides a tts.Provider that speaks by running a local
// synthesizer executable once per utterance, such as espeak-ng on Linux or
// say on macOS.
//
// The executable is invoked as
//
//	<command> <args...> [<voice-flag> <voice>] <text>
//
// where the voice is looked up from the utterance locale: first the exact tag
// ("ko-KR"), then its base language ("ko"). When no voice is known for a
// non-empty locale, the utterance is spoken with the default voice and Speak
// returns an error wrapping [tts.ErrLocaleUnsupported].
//
// Typical usage:
//
//	p := command.New("espeak-ng",
//	    command.WithVoiceFlag("-v"),
//	    command.WithVoices(map[string]string{"en": "en-us", "ko": "ko"}),
//	)
package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/text/language"

	"github.com/MrWong99/voicelaunch/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a command Provider.
type Option func(*Provider)

// WithArgs sets arguments placed before the voice selection and the text.
func WithArgs(args ...string) Option {
	return func(p *Provider) {
		p.args = append([]string(nil), args...)
	}
}

// WithVoiceFlag sets the flag used to select a voice (e.g. "-v").
func WithVoiceFlag(flag string) Option {
	return func(p *Provider) {
		p.voiceFlag = flag
	}
}

// WithVoices maps BCP-47 locale tags to synthesizer voice names.
func WithVoices(voices map[string]string) Option {
	return func(p *Provider) {
		for k, v := range voices {
			p.voices[strings.ToLower(k)] = v
		}
	}
}

// Provider runs an external synthesizer per utterance.
// It is safe for concurrent use; it holds no mutable state after construction.
type Provider struct {
	name      string
	args      []string
	voiceFlag string
	voices    map[string]string

	run func(ctx context.Context, name string, args ...string) error
}

// New returns a Provider that runs name.
func New(name string, opts ...Option) *Provider {
	p := &Provider{
		name:   name,
		voices: make(map[string]string),
		run:    runCommand,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Speak runs the synthesizer and waits for it to exit.
func (p *Provider) Speak(ctx context.Context, u tts.Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return nil
	}
	voice, supported := p.voiceFor(u.Locale)

	args := append([]string(nil), p.args...)
	if voice != "" && p.voiceFlag != "" {
		args = append(args, p.voiceFlag, voice)
	}
	args = append(args, u.Text)

	if err := p.run(ctx, p.name, args...); err != nil {
		return fmt.Errorf("command: run %s: %w", p.name, err)
	}
	if !supported {
		return fmt.Errorf("command: locale %q: %w", u.Locale, tts.ErrLocaleUnsupported)
	}
	return nil
}

// voiceFor resolves locale to a voice. An empty locale selects the default
// voice and counts as supported.
func (p *Provider) voiceFor(locale string) (voice string, supported bool) {
	if locale == "" {
		return "", true
	}
	if v, ok := p.voices[strings.ToLower(locale)]; ok {
		return v, true
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	if v, ok := p.voices[base.String()]; ok {
		return v, true
	}
	return "", false
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(out) > 0 {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
		}
		return err
	}
	return nil
}
