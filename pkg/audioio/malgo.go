package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrNotStarted is returned when writing to a sink that is not running.
var ErrNotStarted = errors.New("audioio: device not started")

func initMalgoContext(logger *slog.Logger) (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo init context: %w", err)
	}
	return ctx, nil
}

func freeMalgoContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	_ = ctx.Uninit()
	ctx.Free()
}

// MalgoSource captures PCM16 from the default input device.
type MalgoSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	running  bool
	closed   bool
	streamCh chan AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewMalgoSource creates a capture source. The device is opened on Start.
func NewMalgoSource(cfg Config, logger *slog.Logger) *MalgoSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.malgo_source"),
		streamCh: make(chan AudioChunk, 32),
	}
}

func (s *MalgoSource) open() error {
	mctx, err := initMalgoContext(s.logger)
	if err != nil {
		return err
	}

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * s.cfg.Channels

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.SampleRate = uint32(s.cfg.SampleRate)
	dc.Capture.Format = format
	dc.Capture.Channels = uint32(s.cfg.Channels)
	dc.Alsa.NoMMap = 1
	dc.PerformanceProfile = malgo.LowLatency
	dc.PeriodSizeInFrames = uint32(s.cfg.BufferSize())
	if s.cfg.Periods > 0 {
		dc.Periods = uint32(s.cfg.Periods)
	}

	device, err := malgo.InitDevice(mctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}
			s.deliver(ChunkFromPCM(input[:n], s.cfg.SampleRate, s.cfg.Channels))
		},
	})
	if err != nil {
		freeMalgoContext(mctx)
		return fmt.Errorf("malgo init capture device: %w", err)
	}

	s.mctx = mctx
	s.device = device
	return nil
}

func (s *MalgoSource) deliver(chunk AudioChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	select {
	case s.streamCh <- chunk:
		s.chunksRead.Add(1)
		s.samplesRead.Add(int64(len(chunk.Samples)))
	default:
		s.overruns.Add(1)
	}
}

// Start opens the device on first use and begins capture.
func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	if s.device == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("malgo start capture: %w", err)
	}

	s.running = true
	s.streamCh = make(chan AudioChunk, 32)

	s.logger.Info("audio capture started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
		"period_frames", s.cfg.BufferSize(),
	)
	return nil
}

// Stop halts capture and closes the stream channel.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.streamCh)

	if s.device != nil && s.device.IsStarted() {
		if err := s.device.Stop(); err != nil {
			return fmt.Errorf("malgo stop capture: %w", err)
		}
	}
	s.logger.Info("audio capture stopped", "overruns", s.overruns.Load())
	return nil
}

// Read reads the next audio chunk.
func (s *MalgoSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel of the current capture.
func (s *MalgoSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *MalgoSource) Config() Config { return s.cfg }

// Name returns "malgo".
func (s *MalgoSource) Name() string { return "malgo" }

// Close stops capture and frees the device.
func (s *MalgoSource) Close() error {
	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	s.closed = true
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	freeMalgoContext(s.mctx)
	s.mctx = nil
	return err
}

// Stats returns source statistics.
func (s *MalgoSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "malgo",
	}
}

var _ SourceWithStats = (*MalgoSource)(nil)

// MalgoSink plays PCM16 on the default output device. Written audio is
// queued and drained by the device callback.
type MalgoSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	running bool
	closed  bool

	bufMu   sync.Mutex
	pending []byte

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64
}

// NewMalgoSink creates a playback sink. The device is opened on Start.
func NewMalgoSink(cfg Config, logger *slog.Logger) *MalgoSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.malgo_sink"),
	}
}

func (s *MalgoSink) open() error {
	mctx, err := initMalgoContext(s.logger)
	if err != nil {
		return err
	}

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * s.cfg.Channels

	dc := malgo.DefaultDeviceConfig(malgo.Playback)
	dc.SampleRate = uint32(s.cfg.SampleRate)
	dc.Playback.Format = format
	dc.Playback.Channels = uint32(s.cfg.Channels)
	dc.Alsa.NoMMap = 1
	dc.PeriodSizeInFrames = uint32(s.cfg.SampleRate / 10)
	dc.Periods = 4

	device, err := malgo.InitDevice(mctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			need := int(frameCount) * bytesPerFrame
			s.fill(output, need)
		},
	})
	if err != nil {
		freeMalgoContext(mctx)
		return fmt.Errorf("malgo init playback device: %w", err)
	}

	s.mctx = mctx
	s.device = device
	return nil
}

func (s *MalgoSink) fill(output []byte, need int) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	if len(s.pending) == 0 {
		return
	}
	n := copy(output[:need], s.pending)
	s.pending = s.pending[n:]
	if n < need {
		s.underruns.Add(1)
	}
}

// Start opens the device on first use and begins playback.
func (s *MalgoSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	if s.device == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("malgo start playback: %w", err)
	}
	s.running = true
	return nil
}

// Stop halts playback and drops queued audio.
func (s *MalgoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	_ = s.Clear()
	if s.device != nil && s.device.IsStarted() {
		if err := s.device.Stop(); err != nil {
			return fmt.Errorf("malgo stop playback: %w", err)
		}
	}
	return nil
}

// Write queues a chunk for playback.
func (s *MalgoSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotStarted
	}

	samples := chunk.Samples
	if chunk.SampleRate != 0 && chunk.SampleRate != s.cfg.SampleRate {
		samples = Resample(samples, chunk.SampleRate, s.cfg.SampleRate)
	}

	s.bufMu.Lock()
	s.pending = append(s.pending, SamplesToBytes(samples)...)
	s.bufMu.Unlock()

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

// Flush blocks until the queue has been handed to the device.
func (s *MalgoSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.buffered() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clear discards queued audio.
func (s *MalgoSink) Clear() error {
	s.bufMu.Lock()
	s.pending = nil
	s.bufMu.Unlock()
	return nil
}

func (s *MalgoSink) buffered() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return len(s.pending)
}

// Config returns the audio configuration.
func (s *MalgoSink) Config() Config { return s.cfg }

// Name returns "malgo".
func (s *MalgoSink) Name() string { return "malgo" }

// Close stops playback and frees the device.
func (s *MalgoSink) Close() error {
	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	s.closed = true
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	freeMalgoContext(s.mctx)
	s.mctx = nil
	return err
}

// Stats returns sink statistics.
func (s *MalgoSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Underruns:       s.underruns.Load(),
		Running:         running,
		Backend:         "malgo",
		BufferedSamples: int64(s.buffered() / 2),
	}
}

var _ SinkWithStats = (*MalgoSink)(nil)
