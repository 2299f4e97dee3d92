// Package stt transcribes a finished utterance to text.
//
// Input is a mono 16-bit WAV as produced by the VAD segmenter. Providers
// are OpenAI Whisper (multipart upload), Deepgram (streaming websocket) and
// Google Cloud Speech. A Chain tries them in order.
//
//	whisper, _ := stt.NewWhisper(stt.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	res, err := whisper.Transcribe(ctx, wav)
package stt

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-attend/pkg/audioio"
)

// Provider transcribes audio.
type Provider interface {
	// Transcribe converts a WAV utterance to text. An utterance with no
	// recognizable speech returns a Result with empty Text, not an error.
	Transcribe(ctx context.Context, wav []byte) (*Result, error)

	// Name identifies the provider in logs and errors.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Result is one transcription.
type Result struct {
	Text       string
	Confidence float64
	Provider   string
	LatencyMs  int64
}

// decodeInput validates a WAV payload and returns its mono samples.
func decodeInput(wav []byte) (audioio.AudioChunk, error) {
	if len(wav) == 0 {
		return audioio.AudioChunk{}, ErrEmptyAudio
	}
	chunk, err := audioio.DecodeWAV(wav)
	if err != nil {
		return audioio.AudioChunk{}, fmt.Errorf("%w: %w", ErrBadAudio, err)
	}
	if len(chunk.Samples) == 0 {
		return audioio.AudioChunk{}, ErrEmptyAudio
	}
	if chunk.Channels == 2 {
		chunk.Samples = audioio.StereoToMono(chunk.Samples)
		chunk.Channels = 1
	}
	return chunk, nil
}
