package stt

import "fmt"

// ErrorCode is a recognition error reported by the engine. Values follow the
// numbering used by the Android SpeechRecognizer so that codes coming from a
// platform bridge can be passed through unchanged.
type ErrorCode int

const (
	ErrNetworkTimeout          ErrorCode = 1
	ErrNetwork                 ErrorCode = 2
	ErrAudio                   ErrorCode = 3
	ErrServer                  ErrorCode = 4
	ErrClient                  ErrorCode = 5
	ErrSpeechTimeout           ErrorCode = 6
	ErrNoMatch                 ErrorCode = 7
	ErrRecognizerBusy          ErrorCode = 8
	ErrInsufficientPermissions ErrorCode = 9
)

// genericMessage is reported for any code without a dedicated message.
const genericMessage = "ASR error"

// Message returns the fixed user-facing message for c. Unknown codes map to
// "ASR error".
func (c ErrorCode) Message() string {
	switch c {
	case ErrAudio:
		return "Audio recording error"
	case ErrClient:
		return "Client side error"
	case ErrInsufficientPermissions:
		return "Insufficient permissions"
	case ErrNetwork:
		return "Network related error"
	case ErrNetworkTimeout:
		return "Network operation timeout"
	case ErrNoMatch:
		return "No recognition result matched"
	case ErrRecognizerBusy:
		return "RecognitionServiceBusy"
	case ErrServer:
		return "Server sends error status"
	case ErrSpeechTimeout:
		return "No speech input"
	default:
		return genericMessage
	}
}

// String returns a short identifier for logs.
func (c ErrorCode) String() string {
	switch c {
	case ErrAudio:
		return "audio"
	case ErrClient:
		return "client"
	case ErrInsufficientPermissions:
		return "insufficient_permissions"
	case ErrNetwork:
		return "network"
	case ErrNetworkTimeout:
		return "network_timeout"
	case ErrNoMatch:
		return "no_match"
	case ErrRecognizerBusy:
		return "recognizer_busy"
	case ErrServer:
		return "server"
	case ErrSpeechTimeout:
		return "speech_timeout"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// RecognitionError wraps an [ErrorCode] as a Go error.
type RecognitionError struct {
	Code ErrorCode
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	return fmt.Sprintf("stt: recognition failed (%s): %s", e.Code, e.Code.Message())
}
