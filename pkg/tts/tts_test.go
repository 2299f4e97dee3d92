package tts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-attend/pkg/audioio"
	"github.com/teslashibe/go-attend/pkg/tts"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) != 11*640 {
			t.Errorf("expected %d bytes, got %d", 11*640, len(result.Audio))
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
		if result.Format.SampleRate != 16000 {
			t.Errorf("expected 16000 sample rate, got %d", result.Format.SampleRate)
		}
	})

	t.Run("Stream chunks the audio", func(t *testing.T) {
		stream, err := mock.Stream(ctx, "Test stream")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer stream.Close()

		var total, chunks int
		for {
			chunk, err := stream.Read()
			if err != nil {
				t.Fatalf("read error: %v", err)
			}
			if chunk == nil {
				break
			}
			total += len(chunk)
			chunks++
		}
		if total != 11*640 {
			t.Errorf("expected %d bytes, got %d", 11*640, total)
		}
		// 100ms at 16kHz is 3200 bytes.
		if chunks != 3 {
			t.Errorf("expected 3 chunks, got %d", chunks)
		}
	})

	t.Run("Tracks calls", func(t *testing.T) {
		mock.Reset()
		mock.Synthesize(ctx, "Hello")
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
		if last := mock.LastCall(); last == nil || last.Text != "Hello" {
			t.Errorf("unexpected last call: %+v", last)
		}
	})

	t.Run("Name defaults to mock", func(t *testing.T) {
		if mock.Name() != "mock" {
			t.Errorf("expected mock, got %s", mock.Name())
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("Synthesize: expected test error, got %v", err)
	}
	if _, err := mock.Stream(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("Stream: expected test error, got %v", err)
	}
	if err := mock.Health(ctx); !errors.Is(err, testErr) {
		t.Errorf("Health: expected test error, got %v", err)
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	start := time.Now()
	if _, err := mock.Synthesize(context.Background(), "Hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected at least 50ms latency, got %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := mock.Synthesize(ctx, "Hello"); !tts.IsCancelled(err) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Apply(
		tts.WithVoice("test-voice"),
		tts.WithModel("test-model"),
		tts.WithTimeout(5*time.Second),
		tts.WithOutputFormat(tts.EncodingPCM16),
		tts.WithLanguage("en-GB"),
	)

	if cfg.VoiceID != "test-voice" || cfg.ModelID != "test-model" {
		t.Errorf("unexpected voice/model: %s/%s", cfg.VoiceID, cfg.ModelID)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.OutputFormat != tts.EncodingPCM16 {
		t.Errorf("expected pcm_16000, got %s", cfg.OutputFormat)
	}
	if cfg.Language != "en-GB" {
		t.Errorf("expected en-GB, got %s", cfg.Language)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*tts.Config)
		voice   bool
		wantErr error
	}{
		{name: "missing key", mutate: func(c *tts.Config) {}, wantErr: tts.ErrNoAPIKey},
		{name: "valid", mutate: func(c *tts.Config) { c.APIKey = "k" }},
		{
			name:    "non-pcm format",
			mutate:  func(c *tts.Config) { c.APIKey = "k"; c.OutputFormat = "mp3_44100_128" },
			wantErr: tts.ErrUnsupportedFormat,
		},
		{name: "voice required", mutate: func(c *tts.Config) { c.APIKey = "k" }, voice: true, wantErr: tts.ErrNoVoiceID},
		{name: "voice present", mutate: func(c *tts.Config) { c.APIKey = "k"; c.VoiceID = "v" }, voice: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tts.DefaultConfig()
			tt.mutate(cfg)
			var err error
			if tt.voice {
				err = cfg.ValidateWithVoice()
			} else {
				err = cfg.Validate()
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		auth      bool
		quota     bool
		retryable bool
	}{
		{status: 400},
		{status: 401, auth: true},
		{status: 403, auth: true},
		{status: 429, quota: true, retryable: true},
		{status: 500, retryable: true},
		{status: 503, retryable: true},
	}

	for _, tt := range tests {
		err := tts.WrapError("chain", &tts.APIError{StatusCode: tt.status, Provider: "openai"})
		if got := tts.IsAuthError(err); got != tt.auth {
			t.Errorf("%d: IsAuthError = %v", tt.status, got)
		}
		if got := tts.IsQuotaError(err); got != tt.quota {
			t.Errorf("%d: IsQuotaError = %v", tt.status, got)
		}
		if got := tts.IsRetryable(err); got != tt.retryable {
			t.Errorf("%d: IsRetryable = %v", tt.status, got)
		}
	}

	err := &tts.APIError{StatusCode: 400, Message: "bad request", Code: "invalid_input", Provider: "elevenlabs"}
	if msg := err.Error(); msg != "tts [elevenlabs]: API error 400 (invalid_input): bad request" {
		t.Errorf("unexpected error message: %s", msg)
	}
}

func TestSampleRateFromEncoding(t *testing.T) {
	tests := []struct {
		encoding   tts.Encoding
		sampleRate int
	}{
		{tts.EncodingPCM16, 16000},
		{tts.EncodingPCM22, 22050},
		{tts.EncodingPCM24, 24000},
		{tts.EncodingPCM44, 44100},
		{"unknown", 24000},
	}

	for _, tt := range tests {
		t.Run(string(tt.encoding), func(t *testing.T) {
			if rate := tts.SampleRateFromEncoding(tt.encoding); rate != tt.sampleRate {
				t.Errorf("expected %d, got %d", tt.sampleRate, rate)
			}
		})
	}
}

func TestResolveElevenLabsVoice(t *testing.T) {
	if got := tts.ResolveElevenLabsVoice("Charlotte"); got != tts.ElevenLabsVoices["charlotte"] {
		t.Errorf("preset not resolved: %s", got)
	}
	if got := tts.ResolveElevenLabsVoice("custom-id"); got != "custom-id" {
		t.Errorf("voice id changed: %s", got)
	}
}

func TestOpenAIStream(t *testing.T) {
	pcm := make([]byte, 4800)
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write(pcm)
	}))
	defer server.Close()

	p, err := tts.NewOpenAI(tts.WithAPIKey("test-key"), tts.WithBaseURL(server.URL), tts.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	res, err := p.Synthesize(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(res.Audio) != len(pcm) {
		t.Errorf("expected %d bytes, got %d", len(pcm), len(res.Audio))
	}
	if res.Format.SampleRate != 24000 {
		t.Errorf("expected 24kHz, got %d", res.Format.SampleRate)
	}
	if res.Duration != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", res.Duration)
	}
	if gotBody["response_format"] != "pcm" || gotBody["voice"] != tts.VoiceShimmer {
		t.Errorf("unexpected payload: %v", gotBody)
	}
	if _, ok := gotBody["speed"]; ok {
		t.Error("speed sent at default rate")
	}

	if _, err := p.Stream(context.Background(), "  "); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestOpenAIRetries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		check     func(error) bool
	}{
		{name: "server error retried", status: 503, wantCalls: 3, check: tts.IsRetryable},
		{name: "rate limit retried", status: 429, wantCalls: 3, check: tts.IsQuotaError},
		{name: "auth not retried", status: 401, wantCalls: 1, check: tts.IsAuthError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope","code":"x"}}`))
			}))
			defer server.Close()

			p, _ := tts.NewOpenAI(
				tts.WithAPIKey("k"),
				tts.WithBaseURL(server.URL),
				tts.WithRetry(2, time.Millisecond),
				tts.WithLogger(quietLogger()),
			)
			_, err := p.Synthesize(context.Background(), "Hello")
			if !tt.check(err) {
				t.Errorf("unexpected error classification: %v", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, calls.Load())
			}
		})
	}
}

func TestElevenLabsStream(t *testing.T) {
	voiceID := tts.ElevenLabsVoices["rachel"]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`))
			return
		}
		if r.URL.Path != "/text-to-speech/"+voiceID+"/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "pcm_16000" {
			t.Errorf("unexpected format %s", r.URL.Query().Get("output_format"))
		}
		w.Write(make([]byte, 3200))
	}))
	defer server.Close()

	p, err := tts.NewElevenLabs(
		tts.WithAPIKey("good"),
		tts.WithBaseURL(server.URL),
		tts.WithVoice("rachel"),
		tts.WithOutputFormat(tts.EncodingPCM16),
		tts.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("NewElevenLabs failed: %v", err)
	}
	if p.VoiceID() != voiceID {
		t.Errorf("voice not resolved: %s", p.VoiceID())
	}
	res, err := p.Synthesize(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.Duration != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", res.Duration)
	}

	bad, _ := tts.NewElevenLabs(tts.WithAPIKey("bad"), tts.WithBaseURL(server.URL), tts.WithLogger(quietLogger()))
	_, err = bad.Synthesize(context.Background(), "Hi")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_api_key" || !tts.IsAuthError(err) {
		t.Errorf("expected invalid_api_key APIError, got %v", err)
	}
}

// fakeStreamInput imitates the stream-input websocket.
func fakeStreamInput(t *testing.T, frames ...map[string]any) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Settings, text and end of stream.
		for i := 0; i < 3; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				t.Errorf("read message %d: %v", i, err)
				return
			}
			if i == 1 && !strings.Contains(msg["text"].(string), "Hello") {
				t.Errorf("unexpected text message: %v", msg)
			}
		}
		for _, f := range frames {
			conn.WriteJSON(f)
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestElevenLabsWS(t *testing.T) {
	chunk := base64.StdEncoding.EncodeToString(make([]byte, 480))

	t.Run("collects audio until final", func(t *testing.T) {
		server := fakeStreamInput(t,
			map[string]any{"audio": chunk},
			map[string]any{"audio": chunk},
			map[string]any{"isFinal": true},
		)
		defer server.Close()

		p, err := tts.NewElevenLabsWS(tts.WithAPIKey("good"), tts.WithBaseURL(wsURL(server)), tts.WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("NewElevenLabsWS failed: %v", err)
		}
		res, err := p.Synthesize(context.Background(), "Hello")
		if err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
		if len(res.Audio) != 960 {
			t.Errorf("expected 960 bytes, got %d", len(res.Audio))
		}
	})

	t.Run("server error frame", func(t *testing.T) {
		server := fakeStreamInput(t, map[string]any{"error": "quota_exceeded", "message": "out of credits"})
		defer server.Close()

		p, _ := tts.NewElevenLabsWS(tts.WithAPIKey("good"), tts.WithBaseURL(wsURL(server)), tts.WithLogger(quietLogger()))
		if _, err := p.Synthesize(context.Background(), "Hello"); err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
			t.Errorf("expected quota error, got %v", err)
		}
	})

	t.Run("rejected key", func(t *testing.T) {
		server := fakeStreamInput(t)
		defer server.Close()

		p, _ := tts.NewElevenLabsWS(tts.WithAPIKey("bad"), tts.WithBaseURL(wsURL(server)), tts.WithLogger(quietLogger()))
		if _, err := p.Stream(context.Background(), "Hello"); !tts.IsAuthError(err) {
			t.Errorf("expected auth error, got %v", err)
		}
	})
}

func TestGoogleSynthesize(t *testing.T) {
	samples := make([]int16, 1600)
	wav := audioio.EncodeWAV(samples, 16000, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "good" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
			return
		}
		if !strings.HasSuffix(r.URL.Path, "text:synthesize") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString(wav),
		})
	}))
	defer server.Close()

	ctx := context.Background()
	p, err := tts.NewGoogle(ctx,
		tts.WithAPIKey("good"),
		tts.WithBaseURL(server.URL+"/"),
		tts.WithOutputFormat(tts.EncodingPCM16),
		tts.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("NewGoogle failed: %v", err)
	}
	res, err := p.Synthesize(ctx, "Hello")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(res.Audio) != 3200 {
		t.Errorf("expected header stripped to 3200 bytes, got %d", len(res.Audio))
	}
	if res.Duration != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", res.Duration)
	}

	bad, _ := tts.NewGoogle(ctx, tts.WithAPIKey("bad"), tts.WithBaseURL(server.URL+"/"), tts.WithLogger(quietLogger()))
	if _, err := bad.Synthesize(ctx, "Hello"); !tts.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("requires providers", func(t *testing.T) {
		if _, err := tts.NewChain(); !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("first provider wins", func(t *testing.T) {
		mock1, mock2 := tts.NewMock(), tts.NewMock()
		chain, _ := tts.NewChainWithLogger(quietLogger(), mock1, mock2)

		if _, err := chain.Synthesize(ctx, "Hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mock1.CallCount("Synthesize") != 1 || mock2.CallCount("Synthesize") != 0 {
			t.Error("expected only first provider to be called")
		}
	})

	t.Run("stream falls back", func(t *testing.T) {
		fail := tts.WithError(&tts.APIError{StatusCode: 503, Provider: "a"})
		ok := tts.NewMock()
		chain, _ := tts.NewChainWithLogger(quietLogger(), fail, ok)

		stream, err := chain.Stream(ctx, "Hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stream.Close()
		if ok.CallCount("Stream") != 1 {
			t.Error("expected fallback stream")
		}
	})

	t.Run("all providers fail", func(t *testing.T) {
		chain, _ := tts.NewChainWithLogger(quietLogger(),
			tts.WithError(&tts.APIError{StatusCode: 401, Provider: "a"}),
			tts.WithError(errors.New("fail 2")),
		)
		_, err := chain.Synthesize(ctx, "Hello")
		var chainErr *tts.ChainError
		if !errors.As(err, &chainErr) || len(chainErr.Errors) != 2 {
			t.Fatalf("expected ChainError with 2 errors, got %v", err)
		}
		if !tts.IsAuthError(err) {
			t.Error("expected auth error to be visible through chain")
		}
	})

	t.Run("cancellation stops the chain", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		second := tts.NewMock()
		chain, _ := tts.NewChainWithLogger(quietLogger(), tts.WithLatency(tts.NewMock(), time.Second), second)
		if _, err := chain.Synthesize(cctx, "Hello"); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if second.CallCount("Synthesize") != 0 {
			t.Error("second provider called after cancellation")
		}
	})

	t.Run("health", func(t *testing.T) {
		chain, _ := tts.NewChain(tts.WithError(errors.New("down")), tts.NewMock())
		if err := chain.Health(ctx); err != nil {
			t.Errorf("expected healthy chain, got %v", err)
		}
		chain, _ = tts.NewChain(tts.WithError(errors.New("down")))
		if err := chain.Health(ctx); err == nil {
			t.Error("expected unhealthy chain")
		}
	})
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection failed")
	err := tts.WrapError("elevenlabs", inner)

	if err.Error() != "tts [elevenlabs]: connection failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected inner error to unwrap")
	}
	if tts.WrapError("x", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

// sliceStream returns fixed chunks.
type sliceStream struct {
	chunks [][]byte
	format tts.AudioFormat
	err    error
}

func (s *sliceStream) Read() ([]byte, error) {
	if len(s.chunks) == 0 {
		return nil, s.err
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceStream) Close() error              { return nil }
func (s *sliceStream) Format() tts.AudioFormat { return s.format }

// heldStream delivers one chunk then blocks until its context ends.
type heldStream struct {
	ctx  context.Context
	sent bool
}

func (s *heldStream) Read() ([]byte, error) {
	if !s.sent {
		s.sent = true
		return make([]byte, 320), nil
	}
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s *heldStream) Close() error { return nil }
func (s *heldStream) Format() tts.AudioFormat {
	return tts.AudioFormat{Encoding: tts.EncodingPCM16, SampleRate: 16000, Channels: 1, BitDepth: 16}
}

func newSink(t *testing.T) *audioio.MockSink {
	t.Helper()
	sink := audioio.NewMockSink(audioio.DefaultConfig(), quietLogger())
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestSpeakerPlaysReply(t *testing.T) {
	sink := newSink(t)
	speaker := tts.NewSpeaker(tts.NewMock(), sink, quietLogger())

	var started, ended int
	speaker.OnPlaybackStart = func() { started++ }
	speaker.OnPlaybackEnd = func() { ended++ }

	if err := speaker.Speak(context.Background(), "Hello"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	stats := sink.Stats()
	if stats.SamplesWritten != 5*320 {
		t.Errorf("expected %d samples, got %d", 5*320, stats.SamplesWritten)
	}
	if started != 1 || ended != 1 {
		t.Errorf("callbacks: start %d end %d", started, ended)
	}
	if speaker.IsSpeaking() {
		t.Error("still speaking after reply")
	}
}

func TestSpeakerCarriesOddBytes(t *testing.T) {
	sink := newSink(t)
	mock := &tts.Mock{
		StreamFunc: func(ctx context.Context, text string) (tts.AudioStream, error) {
			return &sliceStream{
				chunks: [][]byte{{1, 0, 2}, {0}, {3}},
				format: tts.AudioFormat{SampleRate: 16000, Channels: 1, BitDepth: 16},
			}, nil
		},
	}
	speaker := tts.NewSpeaker(mock, sink, quietLogger())

	if err := speaker.Speak(context.Background(), "odd"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	// The trailing lone byte is dropped.
	if got := sink.Stats().SamplesWritten; got != 2 {
		t.Errorf("expected 2 samples, got %d", got)
	}
}

func TestSpeakerStop(t *testing.T) {
	sink := newSink(t)
	mock := &tts.Mock{
		StreamFunc: func(ctx context.Context, text string) (tts.AudioStream, error) {
			return &heldStream{ctx: ctx}, nil
		},
	}
	speaker := tts.NewSpeaker(mock, sink, quietLogger())

	done := make(chan error, 1)
	go func() { done <- speaker.Speak(context.Background(), "long reply") }()

	deadline := time.Now().Add(time.Second)
	for sink.Stats().ChunksWritten == 0 {
		if time.Now().After(deadline) {
			t.Fatal("speaker never started")
		}
		time.Sleep(time.Millisecond)
	}

	speaker.Stop()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after Stop")
	}
	if speaker.IsSpeaking() {
		t.Error("still speaking after Stop")
	}
	if sink.Stats().BufferedSamples != 0 {
		t.Error("sink not cleared")
	}
}

func TestSpeakerErrors(t *testing.T) {
	sink := newSink(t)

	speaker := tts.NewSpeaker(tts.NewMock(), sink, quietLogger())
	if err := speaker.Speak(context.Background(), " "); !errors.Is(err, tts.ErrEmptyText) || !errors.Is(err, tts.ErrNotStarted) {
		t.Errorf("expected unstarted ErrEmptyText, got %v", err)
	}

	boom := &tts.APIError{StatusCode: 500, Provider: "mock"}
	speaker = tts.NewSpeaker(tts.WithError(boom), sink, quietLogger())
	err := speaker.Speak(context.Background(), "Hello")
	if !errors.Is(err, boom) || !errors.Is(err, tts.ErrNotStarted) {
		t.Errorf("expected unstarted provider error, got %v", err)
	}
	if !tts.IsRetryable(err) {
		t.Error("wrapping hid the retryable API error")
	}
	if speaker.IsSpeaking() {
		t.Error("speaking after failed synthesis")
	}

	cut := errors.New("connection reset")
	mock := &tts.Mock{
		StreamFunc: func(ctx context.Context, text string) (tts.AudioStream, error) {
			return &sliceStream{
				chunks: [][]byte{make([]byte, 640)},
				format: tts.AudioFormat{SampleRate: 16000, Channels: 1, BitDepth: 16},
				err:    cut,
			}, nil
		},
	}
	speaker = tts.NewSpeaker(mock, sink, quietLogger())
	err = speaker.Speak(context.Background(), "Hello")
	if !errors.Is(err, cut) {
		t.Errorf("expected mid-stream error, got %v", err)
	}
	if errors.Is(err, tts.ErrNotStarted) {
		t.Error("mid-stream failure marked as not started")
	}
}

func TestSpeakerCloseLeavesSinkOpen(t *testing.T) {
	sink := newSink(t)
	mock := tts.NewMock()
	speaker := tts.NewSpeaker(mock, sink, quietLogger())

	if err := speaker.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if mock.CallCount("Close") != 1 {
		t.Errorf("provider closed %d times", mock.CallCount("Close"))
	}
	if err := sink.Start(context.Background()); err != nil {
		t.Errorf("sink closed by speaker: %v", err)
	}
}
