//go:build integration

package conversation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/audioio"
	"github.com/teslashibe/go-attend/pkg/inference"
	"github.com/teslashibe/go-attend/pkg/stt"
	"github.com/teslashibe/go-attend/pkg/tts"
)

// These tests require real API keys and make actual API calls.
// Run with: go test -tags=integration -v ./pkg/conversation/...

func TestRoundTripIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	voice, err := tts.NewOpenAI(tts.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("tts: %v", err)
	}
	llm, err := inference.NewClient(inference.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("inference: %v", err)
	}
	whisper, err := stt.NewWhisper(stt.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("stt: %v", err)
	}

	// Synthesize a question, then feed it back through the full turn.
	spoken, err := voice.Synthesize(ctx, "What is the capital of France?")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	wav := audioio.EncodeWAV(audioio.BytesToSamples(spoken.Audio), spoken.Format.SampleRate, 1)

	svc, err := New(whisper, llm, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	text, err := svc.SpeechToText(ctx, wav)
	if err != nil {
		t.Fatalf("SpeechToText: %v", err)
	}
	t.Logf("heard: %q", text)

	reply, err := svc.Converse(ctx, text, []assistant.Message{
		{Role: assistant.RoleUser, Content: "Hi, I have a geography question."},
		{Role: assistant.RoleAssistant, Content: "Sure, go ahead."},
	})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	t.Logf("reply: %q", reply)
}
