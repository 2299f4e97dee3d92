package assistant

import (
	"context"
	"time"
)

// FaceSignalSource turns camera frames into face observations.
type FaceSignalSource interface {
	// StartFaceDetection begins continuous detection. The channel is closed
	// when detection stops. It may be restarted after StopFaceDetection.
	StartFaceDetection(ctx context.Context) (<-chan FaceDetectionResult, error)

	// StopFaceDetection ends continuous detection. Safe to call repeatedly.
	StopFaceDetection()

	// DetectFaces analyses a single encoded frame.
	DetectFaces(ctx context.Context, frame []byte) (FaceDetectionResult, error)

	// SetDetectionSensitivity sets the minimum confidence reported as a face.
	SetDetectionSensitivity(sensitivity float64)
}

// VoiceActivitySource turns microphone audio into voice-activity observations.
// It owns utterance buffering until a SpeechEnded hand-off.
type VoiceActivitySource interface {
	// InitializeVAD acquires the audio engine. False is fatal for the session.
	InitializeVAD(ctx context.Context) bool

	// StartAudioDetection begins continuous detection. The channel is closed
	// when detection stops.
	StartAudioDetection(ctx context.Context) (<-chan AudioObservation, error)

	// StopAudioDetection ends continuous detection. Safe to call repeatedly.
	StopAudioDetection()

	// SetVADThreshold sets the speech probability threshold in [0,1].
	SetVADThreshold(threshold float64)

	// Release frees the microphone.
	Release() error
}

// ConversationService runs the three turn stages. Each call honours ctx
// cancellation. Failures are returned as errors; the orchestrator classifies
// them by stage.
type ConversationService interface {
	SpeechToText(ctx context.Context, audio []byte) (string, error)
	Converse(ctx context.Context, userText string, history []Message) (string, error)
	TextToSpeech(ctx context.Context, text string) error
	StopSpeaking()
	IsSpeaking() bool
}

// TurnOutcome describes how a turn ended.
type TurnOutcome string

const (
	OutcomeCompleted   TurnOutcome = "completed"
	OutcomeInterrupted TurnOutcome = "interrupted"
	OutcomeFailed      TurnOutcome = "failed"
	OutcomeEmpty       TurnOutcome = "empty"
)

// Metrics receives orchestrator instrumentation. Implementations must be
// cheap; they are called from the orchestrator's event loop.
type Metrics interface {
	StateChanged(from, to State)
	TurnFinished(outcome TurnOutcome, elapsed time.Duration)
	StageCompleted(stage string, elapsed time.Duration, err error)
	FailureRaised(kind FailureKind)
	ListenTimedOut()
}

type nopMetrics struct{}

func (nopMetrics) StateChanged(State, State) {}
func (nopMetrics) TurnFinished(TurnOutcome, time.Duration) {}
func (nopMetrics) StageCompleted(string, time.Duration, error) {}
func (nopMetrics) FailureRaised(FailureKind) {}
func (nopMetrics) ListenTimedOut() {}
