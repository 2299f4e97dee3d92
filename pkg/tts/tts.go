// Package tts speaks assistant replies.
//
// Providers turn text into 16-bit mono PCM: OpenAI, ElevenLabs (HTTP and the
// stream-input websocket) and Google Cloud Text-to-Speech. A Speaker plays a
// provider's stream through an audioio.Sink and can be interrupted mid-reply.
//
//	provider, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice("charlotte"),
//	)
//	speaker := tts.NewSpeaker(provider, sink, logger)
//	err := speaker.Speak(ctx, "Hello there.")
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio with streaming output for lowest latency.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Name identifies the provider in logs and errors.
	Name() string

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream represents a streaming audio response.
// Callers should read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk.
	// Returns nil when the stream is complete (not an error).
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio is little-endian PCM16.
	Audio []byte

	Format    AudioFormat
	Duration  time.Duration
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names a PCM output format. Values match ElevenLabs output_format.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// VoiceSettings controls voice characteristics for providers that support it.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	// Lower values = more expressive/variable, higher = more consistent.
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	SpeakerBoost bool

	// Speed scales the speaking rate; 1.0 is normal. Used by OpenAI and Google.
	Speed float64
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
		Speed:           1.0,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// pcmFormat describes mono PCM16 at rate.
func pcmFormat(enc Encoding, rate int) AudioFormat {
	return AudioFormat{Encoding: enc, SampleRate: rate, Channels: 1, BitDepth: 16}
}

// pcmDuration is the playback time of PCM16 mono bytes.
func pcmDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(n/2) / float64(rate) * float64(time.Second))
}

// bufferStream wraps a byte slice as AudioStream.
type bufferStream struct {
	data   []byte
	offset int
	chunk  int
	format AudioFormat
}

func newBufferStream(data []byte, format AudioFormat) *bufferStream {
	// 100ms chunks keep interruption responsive.
	chunk := format.SampleRate / 10 * 2
	if chunk <= 0 {
		chunk = 4800
	}
	return &bufferStream{data: data, chunk: chunk, format: format}
}

// Read returns the next audio chunk.
func (s *bufferStream) Read() ([]byte, error) {
	if s.offset >= len(s.data) {
		return nil, nil
	}
	end := min(s.offset+s.chunk, len(s.data))
	chunk := s.data[s.offset:end]
	s.offset = end
	return chunk, nil
}

// Close releases resources.
func (s *bufferStream) Close() error { return nil }

// Format returns the audio format.
func (s *bufferStream) Format() AudioFormat { return s.format }

// drain reads a stream to the end.
func drain(stream AudioStream) ([]byte, error) {
	defer stream.Close()
	var out []byte
	for {
		chunk, err := stream.Read()
		if err != nil {
			return out, err
		}
		if chunk == nil {
			return out, nil
		}
		out = append(out, chunk...)
	}
}
