package stt

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"

	"github.com/teslashibe/go-attend/pkg/audioio"
)

const providerGoogle = "google"

// Google transcribes with Cloud Speech-to-Text synchronous recognition.
type Google struct {
	svc    *speech.Service
	config *Config
	logger *slog.Logger
}

// NewGoogle creates a Google provider. With an API key set it uses key
// auth; otherwise it falls back to application default credentials.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.Model = "latest_short"
	cfg.Language = "en-US"
	cfg.Apply(opts...)
	if cfg.Timeout <= 0 {
		return nil, errors.New("stt: timeout must be positive")
	}

	var clientOpts []option.ClientOption
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	} else {
		creds, err := google.FindDefaultCredentials(ctx, speech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, errors.Join(ErrNoAPIKey, err))
		}
		clientOpts = append(clientOpts, option.WithCredentials(creds))
	}

	svc, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}
	return &Google{
		svc:    svc,
		config: cfg,
		logger: cfg.Logger.With("component", "stt.google"),
	}, nil
}

// Name returns "google".
func (g *Google) Name() string { return providerGoogle }

// Transcribe sends LINEAR16 audio and joins the top alternative of each
// result.
func (g *Google) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	start := time.Now()
	chunk, err := decodeInput(wav)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:                   "LINEAR16",
			SampleRateHertz:            int64(chunk.SampleRate),
			AudioChannelCount:          1,
			LanguageCode:               g.config.Language,
			Model:                      g.config.Model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audioio.SamplesToBytes(chunk.Samples)),
		},
	}

	resp, err := g.svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return nil, g.wrap(err)
	}

	var (
		parts []string
		conf  float64
	)
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			parts = append(parts, t)
			conf += alt.Confidence
		}
	}

	res := &Result{
		Text:      strings.Join(parts, " "),
		Provider:  providerGoogle,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(parts) > 0 {
		res.Confidence = conf / float64(len(parts))
	}
	return res, nil
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
