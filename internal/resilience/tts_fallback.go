package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/voicelaunch/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that speaks through the first healthy
// member of an ordered list of synthesis backends.
//
// A backend reporting [tts.ErrLocaleUnsupported] has spoken the utterance in
// its default locale, so that result counts as success: the error is passed
// back to the caller and no other backend is tried. The same utterance is
// never sent to one backend twice.
type TTSFallback struct {
	group *Group[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a TTSFallback preferring primary.
func NewTTSFallback(primaryName string, primary tts.Provider, cfg BreakerConfig) *TTSFallback {
	cfg.IsFailure = speechFailed
	f := &TTSFallback{group: NewGroup[tts.Provider](cfg)}
	f.group.Add(primaryName, primary)
	return f
}

// AddFallback appends a backend tried after the ones already registered.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.Add(name, p)
}

// Providers returns the backend names in trial order.
func (f *TTSFallback) Providers() []string {
	return f.group.Names()
}

// Healthy reports an error when every backend's circuit is open.
func (f *TTSFallback) Healthy(context.Context) error {
	return f.group.Healthy()
}

// Speak implements [tts.Provider].
func (f *TTSFallback) Speak(ctx context.Context, u tts.Utterance) error {
	return f.group.Do(ctx, func(p tts.Provider) error {
		return p.Speak(ctx, u)
	})
}

// speechFailed reports whether err means nothing was spoken.
func speechFailed(err error) bool {
	return err != nil && !errors.Is(err, tts.ErrLocaleUnsupported)
}
