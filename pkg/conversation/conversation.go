// Package conversation runs the three stages of a spoken turn: speech to
// text, a chat reply, and text to speech played through the speaker.
//
// Each stage is a plain blocking call that honours its context, so the
// caller decides what runs concurrently and what gets cancelled. Every
// failure is returned as a *Failure tagged with a FailureKind.
//
//	svc, err := conversation.New(sttChain, llmChain, tts.NewSpeaker(ttsChain, sink, logger),
//	    conversation.WithLogger(logger),
//	)
//	text, err := svc.SpeechToText(ctx, wav)
//	reply, err := svc.Converse(ctx, text, history)
//	err = svc.TextToSpeech(ctx, reply)
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/inference"
	"github.com/teslashibe/go-attend/pkg/stt"
	"github.com/teslashibe/go-attend/pkg/tts"
)

// Service implements assistant.ConversationService over STT, inference and
// TTS providers. A nil engine makes its stage fail with KindEngineNotReady.
type Service struct {
	stt     stt.Provider
	llm     inference.Provider
	speaker *tts.Speaker
	config  *Config
	logger  *slog.Logger

	closed atomic.Bool
	stats  counters
}

// New creates a conversation service.
func New(recognizer stt.Provider, llm inference.Provider, speaker *tts.Speaker, opts ...Option) (*Service, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		stt:     recognizer,
		llm:     llm,
		speaker: speaker,
		config:  cfg,
		logger:  cfg.Logger.With("component", "conversation"),
	}, nil
}

// SpeechToText transcribes a WAV utterance. A transcript with no words is
// returned as "" without an error.
func (s *Service) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	if err := s.ready(StageTranscribe, s.stt == nil); err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", s.fail(StageTranscribe, s.stt.Name(), ErrEmptyAudio)
	}

	ctx, cancel := withTimeout(ctx, s.config.TranscribeTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.stt.Transcribe(ctx, audio)
	elapsed := time.Since(start)
	s.stats.lastTranscribe.Store(int64(elapsed))
	if err != nil {
		return "", s.fail(StageTranscribe, s.stt.Name(), err)
	}
	s.stats.transcriptions.Add(1)

	text := strings.TrimSpace(res.Text)
	if text == "" {
		s.stats.emptyTranscript.Add(1)
		s.logger.Debug("empty transcript", "provider", res.Provider, "latency_ms", elapsed.Milliseconds())
		return "", nil
	}

	s.logger.Info("transcribed",
		"provider", res.Provider,
		"chars", len(text),
		"confidence", res.Confidence,
		"latency_ms", elapsed.Milliseconds(),
	)
	return text, nil
}

// Converse asks the model for a reply to userText given the prior history.
func (s *Service) Converse(ctx context.Context, userText string, history []assistant.Message) (string, error) {
	if err := s.ready(StageConverse, s.llm == nil); err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, s.config.ConverseTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.llm.Chat(ctx, &inference.ChatRequest{
		Messages:    s.buildMessages(userText, history),
		Model:       s.config.Model,
		MaxTokens:   s.config.MaxResponseTokens,
		Temperature: s.config.Temperature,
	})
	elapsed := time.Since(start)
	s.stats.lastConverse.Store(int64(elapsed))
	if err != nil {
		return "", s.fail(StageConverse, s.llm.Name(), err)
	}

	reply := strings.TrimSpace(resp.Message.Content)
	if reply == "" {
		return "", s.fail(StageConverse, resp.Provider, inference.ErrEmptyResponse)
	}
	s.stats.replies.Add(1)

	s.logger.Info("reply generated",
		"provider", resp.Provider,
		"model", resp.Model,
		"history", len(history),
		"tokens", resp.Usage.TotalTokens,
		"latency_ms", elapsed.Milliseconds(),
	)
	return reply, nil
}

// buildMessages prepends the system prompt and drops empty history entries.
func (s *Service) buildMessages(userText string, history []assistant.Message) []inference.Message {
	msgs := make([]inference.Message, 0, len(history)+2)
	if s.config.SystemPrompt != "" {
		msgs = append(msgs, inference.NewSystemMessage(s.config.SystemPrompt))
	}
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case assistant.RoleAssistant:
			msgs = append(msgs, inference.NewAssistantMessage(m.Content))
		default:
			msgs = append(msgs, inference.NewUserMessage(m.Content))
		}
	}
	return append(msgs, inference.NewUserMessage(userText))
}

// TextToSpeech speaks text and returns once playback finished or was
// interrupted by StopSpeaking.
func (s *Service) TextToSpeech(ctx context.Context, text string) error {
	if err := s.ready(StageSpeak, s.speaker == nil); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, s.config.SpeakTimeout)
	defer cancel()

	start := time.Now()
	err := s.speaker.Speak(ctx, text)
	elapsed := time.Since(start)
	s.stats.lastSpeak.Store(int64(elapsed))
	if err != nil {
		return s.fail(StageSpeak, "tts", err)
	}
	s.stats.utterances.Add(1)
	s.logger.Debug("reply spoken", "chars", len(text), "elapsed_ms", elapsed.Milliseconds())
	return nil
}

// StopSpeaking interrupts playback. Safe to call when silent.
func (s *Service) StopSpeaking() {
	if s.speaker == nil {
		return
	}
	if s.speaker.IsSpeaking() {
		s.stats.interruptions.Add(1)
	}
	s.speaker.Stop()
}

// IsSpeaking reports whether a reply is playing.
func (s *Service) IsSpeaking() bool {
	return s.speaker != nil && s.speaker.IsSpeaking()
}

// Health checks the inference and TTS engines.
func (s *Service) Health(ctx context.Context) error {
	var errs []error
	if s.llm != nil {
		if err := s.llm.Health(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.speaker != nil {
		if err := s.speaker.Health(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Metrics returns a snapshot of service statistics.
func (s *Service) Metrics() Metrics {
	return s.stats.snapshot()
}

// Close stops playback and closes all engines. Later stages fail with
// KindEngineNotReady.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []error
	if s.speaker != nil {
		errs = append(errs, s.speaker.Close())
	}
	if s.llm != nil {
		errs = append(errs, s.llm.Close())
	}
	if s.stt != nil {
		errs = append(errs, s.stt.Close())
	}
	return errors.Join(errs...)
}

func (s *Service) ready(stage Stage, missing bool) error {
	if s.closed.Load() {
		return s.fail(stage, "", ErrClosed)
	}
	if missing {
		return s.fail(stage, "", ErrNotReady)
	}
	return nil
}

func (s *Service) fail(stage Stage, provider string, err error) error {
	f := newFailure(stage, provider, err)
	if f.Kind == KindCancelled {
		s.logger.Debug("stage cancelled", "stage", stage)
		return f
	}
	s.stats.errors.Add(1)
	s.logger.Warn("stage failed",
		"stage", stage,
		"provider", provider,
		"kind", f.Kind,
		"error", err,
	)
	return f
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

var _ assistant.ConversationService = (*Service)(nil)
