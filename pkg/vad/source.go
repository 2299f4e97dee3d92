package vad

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/audioio"
)

// Sentinel errors for the vad package.
var (
	ErrNotInitialized = errors.New("vad: not initialized")
	ErrRunning        = errors.New("vad: detection already running")
)

// Config holds Source settings.
type Config struct {
	Threshold   float64
	Segmenter   SegmenterConfig
	Energy      EnergyParams
	MaxFailures int
	Logger      *slog.Logger

	// Analyzer overrides the default voiced-with-energy-fallback chain.
	Analyzer Analyzer
}

// Option is a functional option for configuring a Source.
type Option func(*Config)

// WithThreshold sets the initial speech probability threshold.
func WithThreshold(t float64) Option {
	return func(c *Config) { c.Threshold = t }
}

// WithSegmenter sets utterance boundary tuning.
func WithSegmenter(sc SegmenterConfig) Option {
	return func(c *Config) { c.Segmenter = sc }
}

// WithEnergyParams sets energy analyzer tuning.
func WithEnergyParams(p EnergyParams) Option {
	return func(c *Config) { c.Energy = p }
}

// WithAnalyzer replaces the analyzer chain.
func WithAnalyzer(a Analyzer) Option {
	return func(c *Config) { c.Analyzer = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Threshold:   0.5,
		Segmenter:   DefaultSegmenterConfig(),
		Energy:      DefaultEnergyParams(),
		MaxFailures: DefaultMaxFailures,
		Logger:      slog.Default(),
	}
}

// Source adapts an audioio.Source into an assistant.VoiceActivitySource.
// Finished utterances are handed over as 16-bit PCM WAV.
type Source struct {
	audio    audioio.Source
	analyzer Analyzer
	segCfg   SegmenterConfig
	logger   *slog.Logger

	threshold atomic.Uint64 // math.Float64bits

	mu          sync.Mutex
	initialized bool
	cancel      context.CancelFunc
	done        chan struct{}
}

var _ assistant.VoiceActivitySource = (*Source)(nil)

// NewSource creates a voice-activity source over audio.
func NewSource(audio audioio.Source, opts ...Option) *Source {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "vad.source")

	analyzer := cfg.Analyzer
	if analyzer == nil {
		analyzer = NewFallbackAnalyzer(
			NewVoicedAnalyzer(cfg.Energy),
			NewEnergyAnalyzer(cfg.Energy),
			cfg.MaxFailures,
			logger,
		)
	}

	s := &Source{
		audio:    audio,
		analyzer: analyzer,
		segCfg:   cfg.Segmenter,
		logger:   logger,
	}
	s.SetVADThreshold(cfg.Threshold)
	return s
}

// InitializeVAD opens the microphone. It reports false when capture cannot
// start.
func (s *Source) InitializeVAD(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return true
	}
	if err := s.audio.Start(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("microphone unavailable", "backend", s.audio.Name(), "error", err)
		return false
	}
	s.initialized = true
	s.logger.Info("vad initialized", "backend", s.audio.Name(), "analyzer", s.analyzer.Name())
	return true
}

// StartAudioDetection begins analysing captured audio.
func (s *Source) StartAudioDetection(ctx context.Context) (<-chan assistant.AudioObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	if s.cancel != nil {
		return nil, ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan assistant.AudioObservation, 16)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.analyzer.Reset()
	go s.run(runCtx, out, done)
	return out, nil
}

// StopAudioDetection stops analysis. The microphone stays open.
func (s *Source) StopAudioDetection() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetVADThreshold sets the speech probability threshold, clamped to [0,1].
func (s *Source) SetVADThreshold(t float64) {
	t = math.Min(1, math.Max(0, t))
	s.threshold.Store(math.Float64bits(t))
}

// Threshold returns the current threshold.
func (s *Source) Threshold() float64 {
	return math.Float64frombits(s.threshold.Load())
}

// Release stops detection and closes the microphone.
func (s *Source) Release() error {
	s.StopAudioDetection()
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
	return s.audio.Close()
}

func (s *Source) run(ctx context.Context, out chan<- assistant.AudioObservation, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	seg := NewSegmenter(s.segCfg)
	var lastErr string

	for {
		chunk, err := s.audio.Read(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Info("audio stream ended")
				s.send(ctx, out, assistant.ObservationFailed("audio stream ended"))
			case ctx.Err() == nil:
				s.logger.Error("audio read failed", "error", err)
				s.send(ctx, out, assistant.ObservationFailed(err.Error()))
			}
			return
		}

		samples := chunk.Samples
		if chunk.Channels == 2 {
			samples = audioio.StereoToMono(samples)
		}

		p, err := s.analyzer.Analyze(samples, chunk.SampleRate)
		if err != nil {
			if err.Error() != lastErr {
				lastErr = err.Error()
				s.send(ctx, out, assistant.ObservationFailed(lastErr))
			}
			continue
		}
		lastErr = ""

		mono := audioio.AudioChunk{Samples: samples, SampleRate: chunk.SampleRate, Channels: 1}
		ev := seg.Push(mono, p >= s.Threshold())

		switch ev.Kind {
		case EventStarted:
			s.logger.Debug("speech started", "probability", p)
			s.send(ctx, out, assistant.SpeechStarted())
		case EventEnded:
			s.logger.Debug("speech ended", "speech", ev.Speech, "samples", len(ev.Samples))
			wav := audioio.EncodeWAV(ev.Samples, chunk.SampleRate, 1)
			s.send(ctx, out, assistant.SpeechEnded(wav))
		case EventDiscarded:
			s.logger.Debug("utterance too short, discarded", "speech", ev.Speech)
			s.send(ctx, out, assistant.Silence())
		}
	}
}

func (s *Source) send(ctx context.Context, out chan<- assistant.AudioObservation, obs assistant.AudioObservation) {
	select {
	case out <- obs:
	case <-ctx.Done():
	}
}
