package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/teslashibe/go-attend/pkg/audioio"
)

const providerGoogle = "google"

// Google implements Provider with Cloud Text-to-Speech. It has no streaming
// mode, so Stream chunks the synthesized buffer.
type Google struct {
	svc    *texttospeech.Service
	config *Config
	logger *slog.Logger
}

// NewGoogle creates a Google provider. Without an API key it uses
// application default credentials.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = "en-US-Neural2-F"
	cfg.ModelID = ""
	cfg.Apply(opts...)

	switch cfg.OutputFormat {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24, EncodingPCM44:
	default:
		return nil, ErrUnsupportedFormat
	}

	var clientOpts []option.ClientOption
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	} else {
		creds, err := google.FindDefaultCredentials(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, errors.Join(ErrNoAPIKey, err))
		}
		clientOpts = append(clientOpts, option.WithCredentials(creds))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}
	return &Google{
		svc:    svc,
		config: cfg,
		logger: cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Name returns "google".
func (g *Google) Name() string { return providerGoogle }

// Synthesize requests LINEAR16 audio and strips the WAV header.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	start := time.Now()
	rate := SampleRateFromEncoding(g.config.OutputFormat)

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.Language,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(rate),
			SpeakingRate:    g.config.VoiceSettings.Speed,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := g.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, g.wrap(err)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	pcm := raw
	if chunk, err := audioio.DecodeWAV(raw); err == nil {
		pcm = audioio.SamplesToBytes(chunk.Samples)
		if chunk.SampleRate > 0 {
			rate = chunk.SampleRate
		}
	}

	g.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(pcm), "voice", g.config.VoiceID)
	return &AudioResult{
		Audio:     pcm,
		Format:    pcmFormat(g.config.OutputFormat, rate),
		Duration:  pcmDuration(len(pcm), rate),
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Stream synthesizes the whole reply and returns it in 100ms chunks.
func (g *Google) Stream(ctx context.Context, text string) (AudioStream, error) {
	res, err := g.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return newBufferStream(res.Audio, res.Format), nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	if _, err := g.svc.Voices.List().LanguageCode(g.config.Language).Context(ctx).Do(); err != nil {
		return g.wrap(err)
	}
	return nil
}

// Close is a no-op.
func (g *Google) Close() error { return nil }

func (g *Google) wrap(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{StatusCode: gerr.Code, Message: gerr.Message, Provider: providerGoogle}
	}
	return WrapError(providerGoogle, err)
}

var _ Provider = (*Google)(nil)
