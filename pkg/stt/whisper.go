package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-attend/internal/httpc"
)

const providerWhisper = "whisper"

// Whisper transcribes through the OpenAI audio API or any server that
// implements /audio/transcriptions.
type Whisper struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewWhisper creates a Whisper provider.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://api.openai.com/v1"
	cfg.Model = "whisper-1"
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	return &Whisper{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    hc,
		logger:  cfg.Logger.With("component", "stt.whisper"),
	}, nil
}

// Name returns "whisper".
func (w *Whisper) Name() string { return providerWhisper }

// Transcribe uploads the WAV as multipart form data.
func (w *Whisper) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	start := time.Now()
	if _, err := decodeInput(wav); err != nil {
		return nil, WrapError(providerWhisper, err)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, WrapError(providerWhisper, err)
	}
	part.Write(wav)

	fields := map[string]string{
		"model":           w.config.Model,
		"language":        baseLanguage(w.config.Language),
		"prompt":          w.config.Prompt,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := form.WriteField(k, v); err != nil {
			return nil, WrapError(providerWhisper, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, WrapError(providerWhisper, err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, WrapError(providerWhisper, err)
	}
	req.Header.Set("Authorization", "Bearer "+w.config.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	body, err := httpc.Do(w.http, req)
	if err != nil {
		return nil, w.wrap(err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("decode response: %w", err))
	}

	text := strings.TrimSpace(result.Text)
	w.logger.Debug("transcribed", "chars", len(text), "latency", time.Since(start))
	return &Result{
		Text:       text,
		Confidence: 1,
		Provider:   providerWhisper,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// Close releases idle connections.
func (w *Whisper) Close() error {
	w.http.CloseIdleConnections()
	return nil
}

func (w *Whisper) wrap(err error) error {
	var status *httpc.StatusError
	if !errors.As(err, &status) {
		return WrapError(providerWhisper, err)
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status.StatusCode, Message: status.Body, Provider: providerWhisper}
	if json.Unmarshal([]byte(status.Body), &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
	}
	return apiErr
}

// baseLanguage trims a region suffix: Whisper wants ISO-639-1.
func baseLanguage(lang string) string {
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		return lang[:i]
	}
	return lang
}

var _ Provider = (*Whisper)(nil)
