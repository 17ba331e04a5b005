// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for voicelaunch.
package config

import (
	"fmt"
	"time"

	"github.com/MrWong99/voicelaunch/internal/feedback"
	"github.com/MrWong99/voicelaunch/internal/ranker"
	"github.com/MrWong99/voicelaunch/internal/similarity"
	"github.com/MrWong99/voicelaunch/pkg/apps"
	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Matching    MatchingConfig    `yaml:"matching"`
	Speech      SpeechConfig      `yaml:"speech"`
	Feedback    FeedbackConfig    `yaml:"feedback"`

	// Apps is the catalogue of launchable applications.
	Apps []AppConfig `yaml:"apps"`
}

// ServerConfig holds logging and control-surface settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr is the TCP address of the HTTP control surface (e.g.
	// "127.0.0.1:8765"). Empty disables it.
	ListenAddr string `yaml:"listen_addr"`
}

// RecognitionConfig selects the recognition engine and the parameters of
// each listening attempt.
type RecognitionConfig struct {
	// Provider selects the registered engine. Default "console".
	Provider ProviderEntry `yaml:"provider"`

	// LanguageModel is "free_form" (default) or "web_search".
	LanguageModel stt.LanguageModel `yaml:"language_model"`

	// MaxResults caps the N-best list. Default 1; 0 lets the engine choose.
	MaxResults int `yaml:"max_results"`

	// ListenTimeout ends a silent attempt with a speech-timeout error.
	// Zero (default) waits indefinitely.
	ListenTimeout time.Duration `yaml:"listen_timeout"`
}

// MatchingConfig tunes candidate ranking.
type MatchingConfig struct {
	// Threshold is the exclusive lower similarity bound in [0, 1]. Default 0.
	Threshold float64 `yaml:"threshold"`

	// Algorithm is "orthographic" (default) or "phonetic".
	Algorithm similarity.Algorithm `yaml:"algorithm"`

	// FoldLanguage is the BCP-47 tag used for case folding. Default "ko".
	FoldLanguage string `yaml:"fold_language"`
}

// MatchConfig returns the ranker view of m.
func (m MatchingConfig) MatchConfig() ranker.MatchConfig {
	return ranker.MatchConfig{Threshold: m.Threshold, Algorithm: m.Algorithm}
}

// SpeechConfig selects the synthesis engines.
type SpeechConfig struct {
	// Provider is the preferred engine. Empty logs announcements instead of
	// speaking them.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when Provider fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// ErrorLocale is the locale error messages are spoken in. Default "en".
	ErrorLocale string `yaml:"error_locale"`
}

// FeedbackConfig customises announcements.
type FeedbackConfig struct {
	Prompts feedback.Prompts `yaml:"prompts"`
}

// AppConfig is one launchable application.
type AppConfig struct {
	// Name is the display name matched against recognised speech.
	Name string `yaml:"name"`

	// ID uniquely identifies the app (e.g. a desktop-entry or package name).
	ID string `yaml:"id"`

	// Command is the executable started on launch.
	Command string `yaml:"command"`

	// Args are passed to Command.
	Args []string `yaml:"args"`
}

// ProviderEntry selects a registered provider implementation.
type ProviderEntry struct {
	// Name selects the factory in the [Registry] (e.g. "console", "command").
	Name string `yaml:"name"`

	// Options holds provider-specific settings.
	Options map[string]any `yaml:"options"`
}

// StringOption returns the string option key, or def when it is absent or
// not a string.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}

// StringsOption returns the list option key. Non-string items are formatted
// with %v.
func (e ProviderEntry) StringsOption(key string) []string {
	raw, ok := e.Options[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// MapOption returns the string map option key.
func (e ProviderEntry) MapOption(key string) map[string]string {
	raw, ok := e.Options[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// CatalogueEntries converts the apps section into catalogue entries.
func (c *Config) CatalogueEntries() []apps.Entry {
	out := make([]apps.Entry, 0, len(c.Apps))
	for _, a := range c.Apps {
		out = append(out, apps.Entry{
			App:     apps.App{DisplayName: a.Name, Identifier: a.ID},
			Command: a.Command,
			Args:    a.Args,
		})
	}
	return out
}

// Default returns a Config with every default applied. The loader decodes
// YAML on top of it, so absent keys keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Recognition: RecognitionConfig{
			Provider:      ProviderEntry{Name: "console"},
			LanguageModel: stt.FreeForm,
			MaxResults:    1,
		},
		Matching: MatchingConfig{
			Algorithm:    similarity.Orthographic,
			FoldLanguage: "ko",
		},
		Speech:   SpeechConfig{ErrorLocale: feedback.DefaultErrorLocale},
		Feedback: FeedbackConfig{Prompts: feedback.DefaultPrompts()},
	}
}
