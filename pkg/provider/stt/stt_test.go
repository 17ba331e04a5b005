package stt_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voicelaunch/pkg/provider/stt"
)

func TestErrorCode_Message(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code stt.ErrorCode
		want string
	}{
		{stt.ErrAudio, "Audio recording error"},
		{stt.ErrClient, "Client side error"},
		{stt.ErrInsufficientPermissions, "Insufficient permissions"},
		{stt.ErrNetwork, "Network related error"},
		{stt.ErrNetworkTimeout, "Network operation timeout"},
		{stt.ErrNoMatch, "No recognition result matched"},
		{stt.ErrRecognizerBusy, "RecognitionServiceBusy"},
		{stt.ErrServer, "Server sends error status"},
		{stt.ErrSpeechTimeout, "No speech input"},
		{0, "ASR error"},
		{42, "ASR error"},
	}
	for _, tt := range tests {
		if got := tt.code.Message(); got != tt.want {
			t.Errorf("ErrorCode(%d).Message() = %q, want %q", int(tt.code), got, tt.want)
		}
	}
}

func TestErrorCode_String(t *testing.T) {
	t.Parallel()
	if got := stt.ErrNoMatch.String(); got != "no_match" {
		t.Errorf("String() = %q", got)
	}
	if got := stt.ErrorCode(42).String(); got != "code_42" {
		t.Errorf("String() = %q", got)
	}
}

func TestRecognitionError(t *testing.T) {
	t.Parallel()
	var err error = &stt.RecognitionError{Code: stt.ErrSpeechTimeout}
	if !strings.Contains(err.Error(), "No speech input") {
		t.Errorf("Error() = %q, want the user-facing message", err.Error())
	}
	var re *stt.RecognitionError
	if !errors.As(err, &re) || re.Code != stt.ErrSpeechTimeout {
		t.Errorf("errors.As = %v, %+v", re != nil, re)
	}
}

func TestLanguageModel_Text(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    stt.LanguageModel
		wantErr bool
	}{
		{"free_form", stt.FreeForm, false},
		{" WEB_SEARCH ", stt.WebSearch, false},
		{"websearch", stt.WebSearch, false},
		{"dictation", stt.LanguageModelUnknown, true},
	}
	for _, tt := range tests {
		var m stt.LanguageModel
		err := m.UnmarshalText([]byte(tt.in))
		if (err != nil) != tt.wantErr || m != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, %v; want %v", tt.in, m, err, tt.want)
		}
	}
	if _, err := stt.LanguageModelUnknown.MarshalText(); err == nil {
		t.Error("MarshalText(unknown) should fail")
	}
	if b, _ := stt.WebSearch.MarshalText(); string(b) != "web_search" {
		t.Errorf("MarshalText(WebSearch) = %q", b)
	}
}

func TestResult_Top(t *testing.T) {
	t.Parallel()
	if _, ok := stt.Result(nil).Top(); ok {
		t.Error("Top() on empty result should report false")
	}
	r := stt.Result{{Text: "camera", Confidence: stt.Confidence(0.9)}, {Text: "camel"}}
	h, ok := r.Top()
	if !ok || h.Text != "camera" || *h.Confidence != 0.9 {
		t.Errorf("Top() = %+v, %v", h, ok)
	}
}
