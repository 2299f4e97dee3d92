package conversation

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/inference"
	"github.com/teslashibe/go-attend/pkg/stt"
	"github.com/teslashibe/go-attend/pkg/tts"
)

// Sentinel errors for the conversation package.
var (
	// ErrNotReady is returned when a stage has no engine configured.
	ErrNotReady = errors.New("conversation: engine not ready")

	// ErrEmptyAudio is returned for an utterance without samples.
	ErrEmptyAudio = errors.New("conversation: empty audio")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("conversation: service closed")
)

// FailureKind classifies why a stage failed.
type FailureKind string

const (
	KindNetwork        FailureKind = "network"
	KindEmptyAudio     FailureKind = "empty_audio"
	KindAuth           FailureKind = "auth"
	KindQuota          FailureKind = "quota"
	KindEngineNotReady FailureKind = "engine_not_ready"
	KindCancelled      FailureKind = "cancelled"
	KindUnknown        FailureKind = "unknown"
)

// Failure is the error returned by every Service stage.
type Failure struct {
	Kind     FailureKind
	Stage    Stage
	Provider string
	Err      error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Provider != "" {
		return fmt.Sprintf("conversation: %s failed (%s, %s): %v", f.Stage, f.Provider, f.Kind, f.Err)
	}
	return fmt.Sprintf("conversation: %s failed (%s): %v", f.Stage, f.Kind, f.Err)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches assistant.ErrSpeechNotStarted for a speak stage that failed
// before any audio played.
func (f *Failure) Is(target error) bool {
	if target != assistant.ErrSpeechNotStarted || f.Stage != StageSpeak {
		return false
	}
	return f.Kind == KindEngineNotReady || errors.Is(f.Err, tts.ErrNotStarted)
}

// newFailure tags err with the stage and a classified kind.
func newFailure(stage Stage, provider string, err error) *Failure {
	return &Failure{Kind: classify(err), Stage: stage, Provider: provider, Err: err}
}

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrClosed),
		errors.Is(err, stt.ErrProviderUnavailable), errors.Is(err, inference.ErrProviderUnavailable),
		errors.Is(err, tts.ErrProviderUnavailable):
		return KindEngineNotReady
	case errors.Is(err, ErrEmptyAudio), errors.Is(err, stt.ErrEmptyAudio), errors.Is(err, stt.ErrBadAudio):
		return KindEmptyAudio
	case stt.IsAuthError(err), inference.IsAuthError(err), tts.IsAuthError(err):
		return KindAuth
	case stt.IsQuotaError(err), inference.IsQuotaError(err), tts.IsQuotaError(err):
		return KindQuota
	case stt.IsRetryable(err), inference.IsRetryable(err), tts.IsRetryable(err):
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

// KindOf returns the FailureKind of err, or KindUnknown if err is not a Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether err is a cancelled stage.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// IsRetryable reports whether the same input may succeed later.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindQuota:
		return true
	}
	return false
}
