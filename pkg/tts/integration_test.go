//go:build integration

package tts_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/go-attend/pkg/tts"
)

// Live provider checks. Run with: go test -tags=integration ./pkg/tts/...

func liveProviders(t *testing.T, ctx context.Context) map[string]tts.Provider {
	t.Helper()
	out := map[string]tts.Provider{}

	if key := os.Getenv("ELEVENLABS_API_KEY"); key != "" {
		voice := os.Getenv("ELEVENLABS_VOICE_ID")
		if voice == "" {
			voice = tts.DefaultElevenLabsVoice
		}
		p, err := tts.NewElevenLabs(
			tts.WithAPIKey(key),
			tts.WithVoice(voice),
			tts.WithModel(tts.ModelTurboV2_5),
			tts.WithOutputFormat(tts.EncodingPCM24),
		)
		if err != nil {
			t.Fatalf("elevenlabs: %v", err)
		}
		out["elevenlabs"] = p
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p, err := tts.NewOpenAI(tts.WithAPIKey(key), tts.WithVoice(tts.VoiceShimmer), tts.WithModel(tts.ModelTTS1))
		if err != nil {
			t.Fatalf("openai: %v", err)
		}
		out["openai"] = p
	}
	if os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		p, err := tts.NewGoogle(ctx, tts.WithAPIKey(os.Getenv("GOOGLE_API_KEY")))
		if err != nil {
			t.Fatalf("google: %v", err)
		}
		out["google"] = p
	}
	if len(out) == 0 {
		t.Skip("no TTS credentials in the environment")
	}
	t.Cleanup(func() {
		for _, p := range out {
			p.Close()
		}
	})
	return out
}

func TestProvidersLive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for name, p := range liveProviders(t, ctx) {
		t.Run(name, func(t *testing.T) {
			res, err := p.Synthesize(ctx, "Hello, I can see you now.")
			if err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if len(res.Audio) < 1000 {
				t.Errorf("only %d bytes of audio", len(res.Audio))
			}
			t.Logf("✅ %s: %d bytes at %dHz in %dms", name, len(res.Audio), res.Format.SampleRate, res.LatencyMs)

			stream, err := p.Stream(ctx, "Testing streaming audio.")
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			defer stream.Close()
			total := 0
			for {
				chunk, err := stream.Read()
				if err != nil {
					t.Fatalf("stream read: %v", err)
				}
				if chunk == nil {
					break
				}
				total += len(chunk)
			}
			if total < 1000 {
				t.Errorf("streamed only %d bytes", total)
			}
		})
	}
}

func TestChainLive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	live := liveProviders(t, ctx)
	var providers []tts.Provider
	for _, name := range []string{"elevenlabs", "openai", "google"} {
		if p, ok := live[name]; ok {
			providers = append(providers, p)
		}
	}
	chain, err := tts.NewChain(providers...)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if err := chain.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	res, err := chain.Synthesize(ctx, "Testing provider chain.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	t.Logf("✅ chain: %d bytes", len(res.Audio))
}
