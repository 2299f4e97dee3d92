package video

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-attend/pkg/audioio"
)

const (
	opusRate = 48000
	// 120ms at 48kHz, the longest Opus frame.
	maxOpusFrame = 5760
)

// AudioSource exposes the device microphone track as an audioio.Source.
// Audio is decoded from Opus, downmixed to mono and resampled to the
// configured rate. Chunks are only delivered between Start and Stop.
type AudioSource struct {
	cfg    audioio.Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan audioio.AudioChunk

	chunksRead   atomic.Int64
	samplesRead  atomic.Int64
	overruns     atomic.Int64
	decodeErrors atomic.Int64
}

func newAudioSource(rate int, logger *slog.Logger) *AudioSource {
	cfg := audioio.DefaultConfig()
	cfg.SampleRate = rate
	return &AudioSource{
		cfg:      cfg,
		logger:   logger.With("component", "video.audio"),
		streamCh: make(chan audioio.AudioChunk, 64),
	}
}

// opusTrack decodes one remote Opus track.
type opusTrack struct {
	dec      *opus.Decoder
	channels int
	pcm      []int16
}

func newOpusTrack(channels int) (*opusTrack, error) {
	if channels < 1 {
		channels = 1
	}
	dec, err := opus.NewDecoder(opusRate, channels)
	if err != nil {
		return nil, err
	}
	return &opusTrack{dec: dec, channels: channels, pcm: make([]int16, maxOpusFrame*channels)}, nil
}

// decode returns mono samples at 48kHz.
func (t *opusTrack) decode(payload []byte) ([]int16, error) {
	n, err := t.dec.Decode(payload, t.pcm)
	if err != nil {
		return nil, err
	}
	samples := t.pcm[:n*t.channels]
	if t.channels == 2 {
		return audioio.StereoToMono(samples), nil
	}
	return append([]int16(nil), samples...), nil
}

// deliver resamples mono 48kHz audio and queues it.
func (s *AudioSource) deliver(mono []int16, rate int) {
	samples := audioio.Resample(mono, rate, s.cfg.SampleRate)
	chunk := audioio.AudioChunk{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: 1}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	select {
	case s.streamCh <- chunk:
		s.chunksRead.Add(1)
		s.samplesRead.Add(int64(len(samples)))
	default:
		s.overruns.Add(1)
	}
}

func (s *AudioSource) decodeFailed(err error) {
	if s.decodeErrors.Add(1) == 1 {
		s.logger.Warn("opus decode failed", "error", err)
	}
}

// Start begins delivering chunks.
func (s *AudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	s.running = true
	s.streamCh = make(chan audioio.AudioChunk, 64)
	s.logger.Info("remote audio started", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop halts delivery and closes the stream channel.
func (s *AudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.streamCh)
	s.logger.Info("remote audio stopped", "overruns", s.overruns.Load(), "decode_errors", s.decodeErrors.Load())
	return nil
}

// Read reads the next audio chunk.
func (s *AudioSource) Read(ctx context.Context) (audioio.AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return audioio.AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return audioio.AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the chunk channel of the current run.
func (s *AudioSource) Stream() <-chan audioio.AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *AudioSource) Config() audioio.Config { return s.cfg }

// Name returns "remote".
func (s *AudioSource) Name() string { return "remote" }

// Close stops delivery permanently. The WebRTC connection is owned by the
// Client.
func (s *AudioSource) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// Stats returns source statistics.
func (s *AudioSource) Stats() audioio.SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return audioio.SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "remote",
	}
}

var _ audioio.SourceWithStats = (*AudioSource)(nil)
