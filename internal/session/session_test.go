package session

import (
	"errors"
	"testing"

	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig, false},
		{"web search, engine default results", Config{LanguageModel: stt.WebSearch}, false},
		{"many results", Config{LanguageModel: stt.FreeForm, MaxResults: 10}, false},
		{"missing language model", Config{MaxResults: 1}, true},
		{"negative results", Config{LanguageModel: stt.FreeForm, MaxResults: -3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("Validate() = %v, want it to wrap ErrConfiguration", err)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{
		StateIdle:      "idle",
		StateListening: "listening",
		StateCompleted: "completed",
		StateErrored:   "errored",
		State(9):       "State(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
