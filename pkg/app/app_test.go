package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-attend/internal/config"
	"github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/audioio"
	"github.com/teslashibe/go-attend/pkg/conversation"
	"github.com/teslashibe/go-attend/pkg/face"
	"github.com/teslashibe/go-attend/pkg/inference"
	"github.com/teslashibe/go-attend/pkg/memory"
	"github.com/teslashibe/go-attend/pkg/stt"
	"github.com/teslashibe/go-attend/pkg/tts"
	"github.com/teslashibe/go-attend/pkg/vad"
)

func TestNewValidates(t *testing.T) {
	cfg := config.Default()
	cfg.Assistant.Sensitivity = 2
	if _, err := New(cfg, log.Discard()); err == nil {
		t.Fatal("expected validation error")
	}

	a, err := New(config.Default(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.Orchestrator() != nil {
		t.Error("orchestrator exists before Init")
	}
}

func keyedConfig() *config.Config {
	cfg := config.Default()
	cfg.Keys = config.Keys{OpenAI: "sk-test", Deepgram: "dg-test", ElevenLabs: "el-test"}
	return cfg
}

func TestProvidersRequireKeys(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	if _, err := newRecognizer(ctx, cfg, log.Discard()); !errors.Is(err, stt.ErrNoAPIKey) {
		t.Errorf("stt err = %v, want ErrNoAPIKey", err)
	}
	cfg.LLM.Providers = []string{"gemini"}
	if _, err := newModel(ctx, cfg, log.Discard()); !errors.Is(err, inference.ErrNoAPIKey) {
		t.Errorf("llm err = %v, want ErrNoAPIKey", err)
	}
	if _, err := newVoice(ctx, cfg, log.Discard()); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("tts err = %v, want ErrNoAPIKey", err)
	}
}

func TestProvidersUnknownName(t *testing.T) {
	cfg := keyedConfig()
	cfg.TTS.Providers = []string{"openai", "espeak"}
	_, err := newVoice(context.Background(), cfg, log.Discard())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestProvidersChainWhenSeveral(t *testing.T) {
	ctx := context.Background()

	cfg := keyedConfig()
	single, err := newRecognizer(ctx, cfg, log.Discard())
	if err != nil {
		t.Fatalf("newRecognizer failed: %v", err)
	}
	defer single.Close()
	if _, ok := single.(*stt.Whisper); !ok {
		t.Errorf("single provider = %T, want *stt.Whisper", single)
	}

	cfg.LLM.Providers = []string{"openai", "openai"}
	model, err := newModel(ctx, cfg, log.Discard())
	if err != nil {
		t.Fatalf("newModel failed: %v", err)
	}
	defer model.Close()
	if _, ok := model.(*inference.Chain); !ok {
		t.Errorf("model = %T, want *inference.Chain", model)
	}

	cfg.TTS.Providers = []string{"elevenlabs-http", "openai"}
	voice, err := newVoice(ctx, cfg, log.Discard())
	if err != nil {
		t.Fatalf("newVoice failed: %v", err)
	}
	defer voice.Close()
	if _, ok := voice.(*tts.Chain); !ok {
		t.Errorf("voice = %T, want *tts.Chain", voice)
	}
}

func TestInitMemoryRestoresHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")

	var items []assistant.ConversationItem
	for i := range 5 {
		items = append(items, assistant.NewConversationItem(fmt.Sprint("q", i), fmt.Sprint("a", i)))
	}
	if err := memory.NewWithFile(path).Save(ctx, items); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	cfg := config.Default()
	cfg.Memory.Backend = "json"
	cfg.Memory.Path = path
	cfg.Memory.MaxItems = 3
	a, err := New(cfg, log.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown()

	if err := a.initMemory(ctx); err != nil {
		t.Fatalf("initMemory failed: %v", err)
	}
	got := a.initialHistory()
	if len(got) != 3 {
		t.Fatalf("initial history len = %d, want 3", len(got))
	}
	if got[0].UserInput != "q2" || got[2].AIResponse != "a4" {
		t.Errorf("initial history = %+v, want newest three", got)
	}
}

func TestInitMemoryDisabled(t *testing.T) {
	a, _ := New(config.Default(), log.Discard())
	if err := a.initMemory(context.Background()); err != nil {
		t.Fatalf("initMemory failed: %v", err)
	}
	if a.memory != nil || a.initialHistory() != nil {
		t.Error("memory enabled for backend none")
	}
}

func newProbeApp(t *testing.T, convo assistant.ConversationService) *App {
	t.Helper()
	logger := log.Discard()
	faces := face.NewSource(face.NewMockDetector(), uploadOnly{}, face.WithLogger(logger))
	voice := vad.NewSource(audioio.NewMockSource(audioio.DefaultConfig(), logger), vad.WithLogger(logger))
	orch, err := assistant.New(faces, voice, convo, assistant.WithLogger(logger))
	if err != nil {
		t.Fatalf("assistant.New failed: %v", err)
	}
	a, err := New(config.Default(), logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	a.orch = orch
	a.faces = faces
	a.voice = voice
	t.Cleanup(a.Shutdown)
	return a
}

func TestProbeReturnsReply(t *testing.T) {
	convo := conversation.NewMock()
	a := newProbeApp(t, convo)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := a.Probe(ctx, "what time is it")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if reply != "hi there" {
		t.Errorf("reply = %q, want %q", reply, "hi there")
	}
	if asked := convo.Asked(); len(asked) != 1 || asked[0] != "what time is it" {
		t.Errorf("asked = %v", asked)
	}
	if a.Orchestrator().History().Len() != 1 {
		t.Errorf("history len = %d, want 1", a.Orchestrator().History().Len())
	}
}

func TestProbeSurfacesFailure(t *testing.T) {
	convo := conversation.NewMock()
	convo.ConverseFunc = func(context.Context, string, []assistant.Message) (string, error) {
		return "", errors.New("model down")
	}
	a := newProbeApp(t, convo)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := a.Probe(ctx, "hello")
	var f *assistant.Failure
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *assistant.Failure", err)
	}
	if f.Kind != assistant.ConversationFailure {
		t.Errorf("kind = %v, want ConversationFailure", f.Kind)
	}
}

func TestOneShotTurnSpeechFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantReply bool
	}{
		{"reply cut off", errors.New("speaker unplugged"), true},
		{"reply never spoken", fmt.Errorf("%w: no voice", assistant.ErrSpeechNotStarted), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			convo := conversation.NewMock()
			convo.TextToSpeechFunc = func(context.Context, string) error { return tt.err }
			a := newProbeApp(t, convo)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			reply, err := a.Probe(ctx, "hello")
			if tt.wantReply {
				if err != nil || reply != "hi there" {
					t.Errorf("Probe = %q, %v; want the recorded reply", reply, err)
				}
				return
			}
			var f *assistant.Failure
			if !errors.As(err, &f) || f.Kind != assistant.SpeechSynthesisFailure {
				t.Fatalf("err = %v, want speech synthesis failure", err)
			}
			if n := a.Orchestrator().History().Len(); n != 0 {
				t.Errorf("history len = %d, want 0", n)
			}
		})
	}
}

func TestUploadOnlyBlocks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := (uploadOnly{}).Frame(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if (uploadOnly{}).Name() != "upload" {
		t.Error("unexpected name")
	}
}

func TestShutdownWithoutInit(t *testing.T) {
	a, _ := New(config.Default(), log.Discard())
	a.Shutdown()
}

func TestCaptureConfig(t *testing.T) {
	tests := []struct {
		name       string
		in         config.CameraConfig
		wantWidth  int
		wantHeight int
		wantZoom   float64
		wantErr    bool
	}{
		{name: "defaults", in: config.Default().Camera, wantWidth: 640, wantHeight: 480, wantZoom: 1},
		{name: "preset", in: config.CameraConfig{Preset: "zoom2x"}, wantWidth: 1280, wantHeight: 720, wantZoom: 2},
		{name: "size overrides preset", in: config.CameraConfig{Preset: "720p", Width: 800, Height: 600}, wantWidth: 800, wantHeight: 600, wantZoom: 1},
		{name: "unknown preset", in: config.CameraConfig{Preset: "cinema"}, wantErr: true},
		{name: "invalid size", in: config.CameraConfig{Width: 10}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CaptureConfig(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if got.Width != tc.wantWidth || got.Height != tc.wantHeight || got.ZoomLevel != tc.wantZoom {
				t.Errorf("CaptureConfig = %+v", got)
			}
		})
	}
}
