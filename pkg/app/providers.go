package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-attend/internal/config"
	"github.com/teslashibe/go-attend/internal/httpc"
	"github.com/teslashibe/go-attend/pkg/inference"
	"github.com/teslashibe/go-attend/pkg/stt"
	"github.com/teslashibe/go-attend/pkg/tts"
)

// newRecognizer builds the speech-to-text chain in configured order.
func newRecognizer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stt.Provider, error) {
	opts := []stt.Option{
		stt.WithLanguage(cfg.STT.Language),
		stt.WithTimeout(cfg.STT.Timeout),
		stt.WithHTTPClient(httpc.NewClient(cfg.STT.Timeout)),
		stt.WithLogger(logger),
	}

	var providers []stt.Provider
	for _, name := range cfg.STT.Providers {
		var (
			p   stt.Provider
			err error
		)
		switch name {
		case "whisper":
			p, err = stt.NewWhisper(append(opts, stt.WithAPIKey(cfg.Keys.OpenAI), stt.WithModel(cfg.STT.WhisperModel))...)
		case "deepgram":
			p, err = stt.NewDeepgram(append(opts, stt.WithAPIKey(cfg.Keys.Deepgram), stt.WithModel(cfg.STT.DeepgramModel))...)
		case "google":
			p, err = stt.NewGoogle(ctx, append(opts, stt.WithAPIKey(cfg.Keys.Google))...)
		default:
			err = fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			closeAll(providers)
			return nil, fmt.Errorf("stt %s: %w", name, err)
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	return stt.NewChainWithLogger(logger, providers...)
}

// newModel builds the chat model chain in configured order.
func newModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (inference.Provider, error) {
	opts := []inference.Option{
		inference.WithMaxTokens(cfg.LLM.MaxTokens),
		inference.WithTemperature(cfg.LLM.Temperature),
		inference.WithTimeout(cfg.LLM.Timeout),
		inference.WithLogger(logger),
	}

	var providers []inference.Provider
	for _, name := range cfg.LLM.Providers {
		var (
			p   inference.Provider
			err error
		)
		switch name {
		case "openai":
			p, err = inference.NewClient(append(opts,
				inference.WithBaseURL(cfg.LLM.BaseURL),
				inference.WithAPIKey(cfg.Keys.OpenAI),
				inference.WithModel(cfg.LLM.Model),
				inference.WithHTTPClient(httpc.NewClient(cfg.LLM.Timeout)),
			)...)
		case "gemini":
			p, err = inference.NewGemini(ctx, append(opts,
				inference.WithAPIKey(cfg.Keys.Gemini),
				inference.WithModel(cfg.LLM.GeminiModel),
			)...)
		default:
			err = fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			closeAll(providers)
			return nil, fmt.Errorf("llm %s: %w", name, err)
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	return inference.NewChainWithLogger(logger, providers...)
}

// newVoice builds the text-to-speech chain in configured order.
func newVoice(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tts.Provider, error) {
	opts := []tts.Option{
		tts.WithHTTPClient(httpc.Client),
		tts.WithLogger(logger),
	}

	var providers []tts.Provider
	for _, name := range cfg.TTS.Providers {
		var (
			p   tts.Provider
			err error
		)
		switch name {
		case "openai":
			p, err = tts.NewOpenAI(append(opts,
				tts.WithAPIKey(cfg.Keys.OpenAI),
				tts.WithModel(cfg.TTS.OpenAIModel),
				tts.WithVoice(cfg.TTS.OpenAIVoice),
			)...)
		case "elevenlabs":
			p, err = tts.NewElevenLabsWS(append(opts, elevenLabsOptions(cfg)...)...)
		case "elevenlabs-http":
			p, err = tts.NewElevenLabs(append(opts, elevenLabsOptions(cfg)...)...)
		case "google":
			p, err = tts.NewGoogle(ctx, append(opts,
				tts.WithAPIKey(cfg.Keys.Google),
				tts.WithVoice(cfg.TTS.GoogleVoice),
				tts.WithLanguage(cfg.TTS.Language),
			)...)
		default:
			err = fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			closeAll(providers)
			return nil, fmt.Errorf("tts %s: %w", name, err)
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	return tts.NewChainWithLogger(logger, providers...)
}

func elevenLabsOptions(cfg *config.Config) []tts.Option {
	voice := tts.DefaultElevenLabsVoice
	if cfg.TTS.ElevenLabsVoice != "" {
		voice = tts.ResolveElevenLabsVoice(cfg.TTS.ElevenLabsVoice)
	}
	return []tts.Option{
		tts.WithAPIKey(cfg.Keys.ElevenLabs),
		tts.WithVoice(voice),
		tts.WithModel(cfg.TTS.ElevenLabsModel),
		tts.WithOutputFormat(tts.EncodingPCM16),
	}
}

func closeAll[P interface{ Close() error }](providers []P) {
	for _, p := range providers {
		p.Close()
	}
}
