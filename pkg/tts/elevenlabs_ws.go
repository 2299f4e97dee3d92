package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsWSBaseURL  = "wss://api.elevenlabs.io/v1/text-to-speech"
	providerElevenLabsWS = "elevenlabs-ws"
)

// ElevenLabsWS streams through the stream-input websocket. Each reply opens
// its own connection: text is sent in one message followed by end of
// stream, and audio frames are delivered as they arrive.
type ElevenLabsWS struct {
	config  *Config
	logger  *slog.Logger
	dialer  *websocket.Dialer
	baseURL string
}

// NewElevenLabsWS creates a new WebSocket-based ElevenLabs TTS provider.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultElevenLabsVoice
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsWSBaseURL
	}

	return &ElevenLabsWS{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.elevenlabs_ws"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		baseURL: baseURL,
	}, nil
}

// Name returns "elevenlabs-ws".
func (e *ElevenLabsWS) Name() string { return providerElevenLabsWS }

// Synthesize streams and collects the whole reply.
func (e *ElevenLabsWS) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()
	stream, err := e.Stream(ctx, text)
	if err != nil {
		return nil, err
	}
	audio, err := drain(stream)
	if err != nil {
		return nil, WrapError(providerElevenLabsWS, err)
	}
	rate := SampleRateFromEncoding(e.config.OutputFormat)
	return &AudioResult{
		Audio:     audio,
		Format:    pcmFormat(e.config.OutputFormat, rate),
		Duration:  pcmDuration(len(audio), rate),
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Stream opens a connection, sends text and returns the audio stream.
func (e *ElevenLabsWS) Stream(ctx context.Context, text string) (AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabsWS, ErrEmptyText)
	}

	q := url.Values{}
	q.Set("model_id", e.config.ModelID)
	q.Set("output_format", string(e.config.OutputFormat))
	endpoint := fmt.Sprintf("%s/%s/stream-input?%s", e.baseURL, url.PathEscape(e.config.VoiceID), q.Encode())

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	conn, resp, err := e.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, parseElevenLabsError(resp)
		}
		return nil, WrapError(providerElevenLabsWS, fmt.Errorf("websocket dial: %w", err))
	}

	// Begin of stream carries settings; a lone space initializes it.
	msgs := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        e.config.VoiceSettings.Stability,
				"similarity_boost": e.config.VoiceSettings.SimilarityBoost,
			},
			"generation_config": map[string]any{
				"chunk_length_schedule": []int{120, 160, 250, 290},
			},
		},
		{"text": text + " ", "flush": true},
		{"text": ""},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			conn.Close()
			return nil, WrapError(providerElevenLabsWS, fmt.Errorf("send text: %w", err))
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &wsStream{
		conn:   conn,
		cancel: cancel,
		audio:  make(chan []byte, 32),
		format: pcmFormat(e.config.OutputFormat, SampleRateFromEncoding(e.config.OutputFormat)),
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go func() {
		defer stop()
		s.readLoop(ctx, e.logger)
	}()
	return s, nil
}

// Health dials and closes a connection.
func (e *ElevenLabsWS) Health(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/%s/stream-input?model_id=%s", e.baseURL, url.PathEscape(e.config.VoiceID), e.config.ModelID)
	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)
	conn, resp, err := e.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return parseElevenLabsError(resp)
		}
		return WrapError(providerElevenLabsWS, err)
	}
	return conn.Close()
}

// Close is a no-op; each stream owns its connection.
func (e *ElevenLabsWS) Close() error { return nil }

// wsStream delivers decoded audio frames from one stream-input connection.
type wsStream struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	audio  chan []byte
	format AudioFormat

	mu      sync.Mutex
	readErr error
	once    sync.Once
}

type wsFrame struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *wsStream) readLoop(ctx context.Context, logger *slog.Logger) {
	defer close(s.audio)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) && err != io.EOF {
				s.fail(err)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warn("failed to parse response", "error", err)
			continue
		}
		if frame.Error != "" {
			s.fail(fmt.Errorf("%s: %s", frame.Error, frame.Message))
			return
		}
		if frame.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				logger.Warn("failed to decode audio", "error", err)
				continue
			}
			select {
			case s.audio <- pcm:
			case <-ctx.Done():
				return
			}
		}
		if frame.IsFinal {
			return
		}
	}
}

func (s *wsStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = WrapError(providerElevenLabsWS, err)
}

// Read returns the next audio chunk, or nil at the end of the reply.
func (s *wsStream) Read() ([]byte, error) {
	chunk, ok := <-s.audio
	if ok {
		return chunk, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, s.readErr
}

// Close ends the stream and its connection.
func (s *wsStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.conn.Close()
	})
	return nil
}

// Format returns the audio format.
func (s *wsStream) Format() AudioFormat { return s.format }

var _ Provider = (*ElevenLabsWS)(nil)
