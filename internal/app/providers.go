package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voicelaunch/internal/config"
	"github.com/MrWong99/voicelaunch/internal/resilience"
	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
	"github.com/MrWong99/voicelaunch/pkg/provider/tts"
)

// Providers holds the engines the application owns. Populated by main.go via
// [BuildProviders].
type Providers struct {
	// STT is the recognition engine. Required.
	STT stt.Provider

	// TTS speaks announcements. Nil logs them instead.
	TTS tts.Provider
}

// BuildProviders instantiates the engines named in cfg using reg. The
// synthesis provider and its fallbacks are combined into one
// [resilience.TTSFallback].
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	entry := cfg.Recognition.Provider
	p, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	ps.STT = p
	slog.Info("provider created", "kind", "stt", "name", entry.Name)

	speech := cfg.Speech
	if speech.Provider.Name == "" {
		slog.Info("no speech provider configured, announcements are logged only")
		return ps, nil
	}

	primary, err := reg.CreateTTS(speech.Provider)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", speech.Provider.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", speech.Provider.Name)

	fb := resilience.NewTTSFallback(speech.Provider.Name, primary, resilience.BreakerConfig{})
	for _, e := range speech.Fallbacks {
		tp, err := reg.CreateTTS(e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("fallback provider not registered, skipping", "kind", "tts", "name", e.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", e.Name, err)
		}
		fb.AddFallback(e.Name, tp)
		slog.Info("provider created", "kind", "tts", "name", e.Name, "role", "fallback")
	}
	ps.TTS = fb
	return ps, nil
}
