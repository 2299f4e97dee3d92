package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-attend/pkg/audioio"
)

const (
	providerDeepgram = "deepgram"

	// deepgramChunkBytes is 250ms of 16kHz mono PCM16.
	deepgramChunkBytes = 8000
)

// Deepgram transcribes by streaming the utterance over the live listen
// websocket and collecting the final results.
type Deepgram struct {
	config *Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewDeepgram creates a Deepgram provider. BaseURL is the websocket
// endpoint, wss://api.deepgram.com/v1/listen by default.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = "wss://api.deepgram.com/v1/listen"
	cfg.Model = "nova-3"
	cfg.Language = "en-US"
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Deepgram{
		config: cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: cfg.Logger.With("component", "stt.deepgram"),
	}, nil
}

// Name returns "deepgram".
func (d *Deepgram) Name() string { return providerDeepgram }

func (d *Deepgram) listenURL(sampleRate int) (string, error) {
	u, err := url.Parse(d.config.BaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("model", d.config.Model)
	q.Set("language", d.config.Language)
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transcribe streams the PCM in chunks, closes the stream and reads results
// until the server closes the socket.
func (d *Deepgram) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	start := time.Now()
	chunk, err := decodeInput(wav)
	if err != nil {
		return nil, WrapError(providerDeepgram, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	target, err := d.listenURL(chunk.SampleRate)
	if err != nil {
		return nil, WrapError(providerDeepgram, err)
	}
	conn, resp, err := d.dialer.DialContext(ctx, target, http.Header{
		"Authorization": {"Token " + d.config.APIKey},
	})
	if err != nil {
		return nil, d.dialError(resp, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- d.send(conn, audioio.SamplesToBytes(chunk.Samples))
	}()

	var (
		parts []string
		conf  float64
		n     int
	)
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, WrapError(providerDeepgram, ctx.Err())
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, io.EOF) {
				return nil, WrapError(providerDeepgram, err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			d.logger.Debug("unparseable message", "error", err)
			continue
		}
		if api.TypeResponse(head.Type) != api.TypeMessageResponse {
			continue
		}

		var res api.MessageResponse
		if err := json.Unmarshal(msg, &res); err != nil {
			d.logger.Debug("unparseable result", "error", err)
			continue
		}
		if !res.IsFinal || len(res.Channel.Alternatives) == 0 {
			continue
		}
		alt := res.Channel.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			parts = append(parts, t)
			conf += alt.Confidence
			n++
		}
	}

	if err := <-writeErr; err != nil && len(parts) == 0 {
		return nil, WrapError(providerDeepgram, err)
	}

	res := &Result{
		Text:      strings.Join(parts, " "),
		Provider:  providerDeepgram,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if n > 0 {
		res.Confidence = conf / float64(n)
	}
	return res, nil
}

func (d *Deepgram) send(conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += deepgramChunkBytes {
		end := min(off+deepgramChunkBytes, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}
	return conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)})
}

func (d *Deepgram) dialError(resp *http.Response, err error) error {
	if resp == nil {
		return WrapError(providerDeepgram, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = err.Error()
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg, Provider: providerDeepgram}
}

// Close is a no-op; each transcription owns its connection.
func (d *Deepgram) Close() error { return nil }

var _ Provider = (*Deepgram)(nil)
