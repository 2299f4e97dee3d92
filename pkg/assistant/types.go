package assistant

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a message in the model context.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of the model context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationItem is one completed exchange. Items are never mutated.
type ConversationItem struct {
	ID         uuid.UUID `json:"id"`
	UserInput  string    `json:"user_input"`
	AIResponse string    `json:"ai_response"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewConversationItem stamps a new exchange with an ID and the current time.
func NewConversationItem(userInput, aiResponse string) ConversationItem {
	return ConversationItem{
		ID:         uuid.New(),
		UserInput:  userInput,
		AIResponse: aiResponse,
		Timestamp:  time.Now(),
	}
}

// Box is a face bounding box in frame pixels.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FaceDetectionResult is the outcome of analysing one camera frame.
// The zero value means no face.
type FaceDetectionResult struct {
	FaceCount     int       `json:"face_count"`
	Confidence    float64   `json:"confidence"`
	BoundingBoxes []Box     `json:"bounding_boxes,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Present reports whether the result counts as a face at the given sensitivity.
func (r FaceDetectionResult) Present(sensitivity float64) bool {
	return r.FaceCount > 0 && r.Confidence >= sensitivity
}

// ObservationKind tags an AudioObservation.
type ObservationKind int

const (
	ObservationSilence ObservationKind = iota
	ObservationSpeechStarted
	ObservationSpeechEnded
	ObservationError
)

func (k ObservationKind) String() string {
	switch k {
	case ObservationSilence:
		return "silence"
	case ObservationSpeechStarted:
		return "speech_started"
	case ObservationSpeechEnded:
		return "speech_ended"
	case ObservationError:
		return "error"
	default:
		return "unknown"
	}
}

// AudioObservation is one voice-activity event.
// Audio is set only for SpeechEnded and holds the utterance as a 16-bit
// mono PCM WAV file.
// Reason is set only for Error.
type AudioObservation struct {
	Kind   ObservationKind
	Audio  []byte
	Reason string
}

// Silence returns a silence observation.
func Silence() AudioObservation { return AudioObservation{Kind: ObservationSilence} }

// SpeechStarted returns a speech-start observation.
func SpeechStarted() AudioObservation { return AudioObservation{Kind: ObservationSpeechStarted} }

// SpeechEnded hands over a captured utterance.
func SpeechEnded(audio []byte) AudioObservation {
	return AudioObservation{Kind: ObservationSpeechEnded, Audio: audio}
}

// ObservationFailed reports a source-side problem.
func ObservationFailed(reason string) AudioObservation {
	return AudioObservation{Kind: ObservationError, Reason: reason}
}

// Snapshot is a consistent view of everything the orchestrator publishes.
type Snapshot struct {
	State     State               `json:"state"`
	FreeMode  bool                `json:"free_mode"`
	LastFace  FaceDetectionResult `json:"last_face"`
	History   History             `json:"history"`
	UpdatedAt time.Time           `json:"updated_at"`
}
