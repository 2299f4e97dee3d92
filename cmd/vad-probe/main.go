// VAD probe - prints utterance boundaries from the microphone.
//
// Use it to tune vad.threshold and the segmenter timings before running the
// assistant. With -save DIR every utterance is written as a WAV file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/teslashibe/go-attend/internal/config"
	logging "github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/audioio"
	"github.com/teslashibe/go-attend/pkg/vad"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	threshold := flag.Float64("threshold", -1, "Speech threshold override (0-1)")
	saveDir := flag.String("save", "", "Directory to write captured utterances to")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ Config: %v\n", err)
		os.Exit(1)
	}
	if *threshold >= 0 {
		cfg.VAD.Threshold = *threshold
	}
	logger := logging.Init(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	fmt.Println("🎤 VAD probe")
	fmt.Println("============")
	fmt.Printf("Threshold: %.2f  Hangover: %s  Min speech: %s\n\n",
		cfg.VAD.Threshold, cfg.VAD.Hangover, cfg.VAD.MinSpeech)

	audioCfg := audioio.DefaultConfig()
	audioCfg.Backend = audioio.BackendMalgo
	audioCfg.SampleRate = cfg.Audio.SampleRate
	audioCfg.Channels = cfg.Audio.Channels
	audioCfg.BufferDuration = time.Duration(cfg.Audio.BufferMs) * time.Millisecond
	mic, err := audioio.NewSource(audioCfg, logger)
	if err != nil {
		fmt.Printf("❌ Microphone: %v\n", err)
		os.Exit(1)
	}

	energy := vad.DefaultEnergyParams()
	energy.NoiseWindow = cfg.VAD.NoiseFloorFrame
	src := vad.NewSource(mic,
		vad.WithThreshold(cfg.VAD.Threshold),
		vad.WithEnergyParams(energy),
		vad.WithSegmenter(vad.SegmenterConfig{
			StartFrames:  cfg.VAD.StartFrames,
			Hangover:     cfg.VAD.Hangover,
			MinSpeech:    cfg.VAD.MinSpeech,
			MaxUtterance: cfg.VAD.MaxUtterance,
		}),
		vad.WithLogger(logger),
	)
	defer src.Release()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !src.InitializeVAD(ctx) {
		fmt.Println("❌ Voice activity detection unavailable")
		return
	}
	obs, err := src.StartAudioDetection(ctx)
	if err != nil {
		fmt.Printf("❌ Detection: %v\n", err)
		return
	}
	fmt.Println("🔄 Listening (Ctrl+C to stop)")

	var started time.Time
	count := 0
	for o := range obs {
		now := time.Now()
		switch o.Kind {
		case assistant.ObservationSpeechStarted:
			started = now
			fmt.Printf("[%s] 🗣️  speech started\n", now.Format(time.TimeOnly))
		case assistant.ObservationSpeechEnded:
			count++
			fmt.Printf("[%s] ✅ utterance %d: %s, %d bytes\n",
				now.Format(time.TimeOnly), count, now.Sub(started).Round(10*time.Millisecond), len(o.Audio))
			if *saveDir != "" {
				path := filepath.Join(*saveDir, fmt.Sprintf("utterance-%03d.wav", count))
				if err := os.WriteFile(path, o.Audio, 0o644); err != nil {
					fmt.Printf("❌ Save: %v\n", err)
				}
			}
		case assistant.ObservationError:
			fmt.Printf("[%s] ⚠️  %s\n", now.Format(time.TimeOnly), o.Reason)
		}
	}
	fmt.Printf("\n👋 %d utterance(s)\n", count)
}
