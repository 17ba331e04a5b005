package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside this list, since third-party factories may be
// registered under any name.
var ValidProviderNames = map[string][]string{
	"stt": {"console", "mock"},
	"tts": {"command", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default] and validates the
// result. Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	rec := cfg.Recognition
	if rec.Provider.Name == "" {
		errs = append(errs, errors.New("recognition.provider.name is required"))
	}
	if !rec.LanguageModel.IsValid() {
		errs = append(errs, fmt.Errorf("recognition.language_model %s is invalid; valid values: free_form, web_search", rec.LanguageModel))
	}
	if rec.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("recognition.max_results %d must not be negative", rec.MaxResults))
	}
	if rec.ListenTimeout < 0 {
		errs = append(errs, fmt.Errorf("recognition.listen_timeout %s must not be negative", rec.ListenTimeout))
	}
	validateProviderName("stt", rec.Provider.Name)

	if err := cfg.Matching.MatchConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("matching: %w", err))
	}
	if cfg.Matching.FoldLanguage != "" {
		if _, err := language.Parse(cfg.Matching.FoldLanguage); err != nil {
			errs = append(errs, fmt.Errorf("matching.fold_language %q is not a valid BCP-47 tag: %w", cfg.Matching.FoldLanguage, err))
		}
	}

	if cfg.Speech.ErrorLocale != "" {
		if _, err := language.Parse(cfg.Speech.ErrorLocale); err != nil {
			errs = append(errs, fmt.Errorf("speech.error_locale %q is not a valid BCP-47 tag: %w", cfg.Speech.ErrorLocale, err))
		}
	}
	validateProviderName("tts", cfg.Speech.Provider.Name)
	for i, fb := range cfg.Speech.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("speech.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}
	if cfg.Speech.Provider.Name == "" && len(cfg.Speech.Fallbacks) > 0 {
		errs = append(errs, errors.New("speech.fallbacks requires speech.provider"))
	}

	ids := make(map[string]int, len(cfg.Apps))
	for i, a := range cfg.Apps {
		prefix := fmt.Sprintf("apps[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := ids[a.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of apps[%d]", prefix, a.ID, prev))
			}
			ids[a.ID] = i
		}
		if a.Command == "" {
			slog.Warn("app has no command and can be matched but not launched", "app", a.Name)
		}
	}
	if len(cfg.Apps) == 0 {
		slog.Warn("no apps configured; every recognition will end without a match")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
