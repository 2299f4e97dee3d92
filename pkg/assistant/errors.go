package assistant

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the assistant package.
var (
	// ErrNilCollaborator indicates a required capability was not supplied.
	ErrNilCollaborator = errors.New("assistant: nil collaborator")

	// ErrReleased indicates the orchestrator has been released.
	ErrReleased = errors.New("assistant: released")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("assistant: already started")

	// ErrSensorInit indicates the camera or microphone pipeline could not start.
	ErrSensorInit = errors.New("assistant: sensor initialization failed")

	// ErrStreamClosed indicates a sensing stream ended mid-session.
	ErrStreamClosed = errors.New("assistant: sensing stream closed")

	// ErrSpeechNotStarted marks a synthesis failure that happened before any
	// audio was played. ConversationService implementations wrap it so the
	// unspoken reply is dropped from the history.
	ErrSpeechNotStarted = errors.New("assistant: speech did not start")
)

// FailureKind classifies a failure surfaced to observers.
type FailureKind int

const (
	// SensorInitFailure means the camera or mic is unavailable. Fatal for the session.
	SensorInitFailure FailureKind = iota + 1
	// TranscriptionFailure means speech-to-text failed. The turn is abandoned.
	TranscriptionFailure
	// ConversationFailure means the model call failed. The turn is abandoned.
	ConversationFailure
	// SpeechSynthesisFailure means text-to-speech failed. The recorded reply is
	// kept unless playback never started.
	SpeechSynthesisFailure
)

func (k FailureKind) String() string {
	switch k {
	case SensorInitFailure:
		return "sensor_init"
	case TranscriptionFailure:
		return "transcription"
	case ConversationFailure:
		return "conversation"
	case SpeechSynthesisFailure:
		return "speech_synthesis"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Failure is a user-visible error emitted on the error stream.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("assistant: %s failure: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("assistant: %s failure: %s", f.Kind, f.Message)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFatal reports whether the failure ends the sensing session.
func (f *Failure) IsFatal() bool {
	return f.Kind == SensorInitFailure
}

func newFailure(kind FailureKind, message string, err error) Failure {
	return Failure{Kind: kind, Message: message, Time: time.Now(), Err: err}
}
