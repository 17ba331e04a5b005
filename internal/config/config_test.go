package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voicelaunch/internal/config"
	"github.com/MrWong99/voicelaunch/internal/feedback"
	"github.com/MrWong99/voicelaunch/internal/similarity"
	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
	sttmock "github.com/MrWong99/voicelaunch/pkg/provider/stt/mock"
	"github.com/MrWong99/voicelaunch/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voicelaunch/pkg/provider/tts/mock"
)

const validYAML = `
server:
  log_level: debug
  listen_addr: "127.0.0.1:8765"
recognition:
  provider:
    name: console
  language_model: web_search
  max_results: 3
  listen_timeout: 8s
matching:
  threshold: 0.4
  algorithm: phonetic
  fold_language: en
speech:
  provider:
    name: command
    options:
      command: espeak-ng
      voices:
        ko: ko
        en: en-us
  fallbacks:
    - name: mock
  error_locale: en
feedback:
  prompts:
    launching: "%s 실행 합니다."
apps:
  - name: Calculator
    id: org.gnome.Calculator
    command: gnome-calculator
  - name: KakaoTalk
    id: com.kakao.talk
    command: kakaotalk
    args: ["--silent"]
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:8765" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Recognition.LanguageModel != stt.WebSearch {
		t.Errorf("language_model: got %s, want web_search", cfg.Recognition.LanguageModel)
	}
	if cfg.Recognition.MaxResults != 3 {
		t.Errorf("max_results: got %d, want 3", cfg.Recognition.MaxResults)
	}
	if cfg.Recognition.ListenTimeout != 8*time.Second {
		t.Errorf("listen_timeout: got %s, want 8s", cfg.Recognition.ListenTimeout)
	}
	if cfg.Matching.Threshold != 0.4 || cfg.Matching.Algorithm != similarity.Phonetic {
		t.Errorf("matching: got %+v", cfg.Matching)
	}
	if got := cfg.Speech.Provider.StringOption("command", ""); got != "espeak-ng" {
		t.Errorf("speech command option: got %q", got)
	}
	if got := cfg.Speech.Provider.MapOption("voices"); got["ko"] != "ko" || got["en"] != "en-us" {
		t.Errorf("speech voices option: got %v", got)
	}
	if len(cfg.Speech.Fallbacks) != 1 || cfg.Speech.Fallbacks[0].Name != "mock" {
		t.Errorf("fallbacks: got %+v", cfg.Speech.Fallbacks)
	}
	if cfg.Feedback.Prompts.Launching != "%s 실행 합니다." {
		t.Errorf("launching prompt: got %q", cfg.Feedback.Prompts.Launching)
	}
	// Unset prompts keep their defaults.
	if cfg.Feedback.Prompts.Listening != feedback.DefaultPrompts().Listening {
		t.Errorf("listening prompt: got %q", cfg.Feedback.Prompts.Listening)
	}

	entries := cfg.CatalogueEntries()
	if len(entries) != 2 {
		t.Fatalf("catalogue entries: got %d, want 2", len(entries))
	}
	kakao := entries[1]
	if kakao.App.DisplayName != "KakaoTalk" || kakao.App.Identifier != "com.kakao.talk" {
		t.Errorf("entry app: got %+v", kakao.App)
	}
	if kakao.Command != "kakaotalk" || len(kakao.Args) != 1 || kakao.Args[0] != "--silent" {
		t.Errorf("entry command: got %q %v", kakao.Command, kakao.Args)
	}
}

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	def := config.Default()
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Recognition.Provider.Name != "console" {
		t.Errorf("recognition provider: got %q, want console", cfg.Recognition.Provider.Name)
	}
	if cfg.Recognition.LanguageModel != stt.FreeForm || cfg.Recognition.MaxResults != 1 {
		t.Errorf("recognition: got %+v", cfg.Recognition)
	}
	if cfg.Matching != def.Matching {
		t.Errorf("matching: got %+v, want %+v", cfg.Matching, def.Matching)
	}
	if cfg.Speech.ErrorLocale != "en" {
		t.Errorf("error_locale: got %q, want en", cfg.Speech.ErrorLocale)
	}
}

func TestLoadFromReader_UnknownKey(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("matching:\n  treshold: 0.5\n"))
	if err == nil {
		t.Fatal("expected error for misspelled key, got nil")
	}
}

func TestLoadFromReader_BadEnum(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("matching:\n  algorithm: metaphone\n"))
	if err == nil {
		t.Fatal("expected error for unknown algorithm, got nil")
	}
	if !strings.Contains(err.Error(), "metaphone") {
		t.Errorf("error should name the bad value, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voicelaunch.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Apps) != 2 {
		t.Errorf("apps: got %d, want 2", len(cfg.Apps))
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{
		"command": "say",
		"args":    []any{"-r", 180},
		"voices":  map[string]any{"ko": "Yuna"},
		"count":   3,
	}}

	if got := e.StringOption("command", "x"); got != "say" {
		t.Errorf("StringOption: got %q", got)
	}
	if got := e.StringOption("count", "def"); got != "def" {
		t.Errorf("StringOption non-string: got %q, want def", got)
	}
	if got := e.StringOption("missing", "def"); got != "def" {
		t.Errorf("StringOption missing: got %q, want def", got)
	}
	if got := e.StringsOption("args"); len(got) != 2 || got[0] != "-r" || got[1] != "180" {
		t.Errorf("StringsOption: got %v", got)
	}
	if got := e.MapOption("voices"); got["ko"] != "Yuna" {
		t.Errorf("MapOption: got %v", got)
	}
	if got := e.MapOption("command"); got != nil {
		t.Errorf("MapOption wrong type: got %v, want nil", got)
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "polly"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	engine := &sttmock.Provider{}
	speaker := &ttsmock.Provider{}

	var gotEntry config.ProviderEntry
	reg.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return engine, nil
	})
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) { return speaker, nil })
	reg.RegisterTTS("command", func(config.ProviderEntry) (tts.Provider, error) { return speaker, nil })

	entry := config.ProviderEntry{Name: "mock", Options: map[string]any{"k": "v"}}
	p, err := reg.CreateSTT(entry)
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != engine {
		t.Error("CreateSTT returned a different provider")
	}
	if gotEntry.StringOption("k", "") != "v" {
		t.Errorf("factory did not receive options: %+v", gotEntry)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}

	if got := reg.TTSNames(); len(got) != 2 || got[0] != "command" || got[1] != "mock" {
		t.Errorf("TTSNames: got %v, want [command mock]", got)
	}
	if got := reg.STTNames(); len(got) != 1 || got[0] != "mock" {
		t.Errorf("STTNames: got %v, want [mock]", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("no audio device")
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) { return nil, boom })

	_, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want factory error", err)
	}
}
