package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// MockSource replays scripted chunks, then produces silence or a tone, one
// chunk per BufferDuration. It stands in for the microphone in tests and
// with the "mock" backend.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	out     chan AudioChunk
	stop    chan struct{}
	script  []AudioChunk
	stats   SourceStats

	toneHz    float64
	amplitude float64
	phase     float64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave replaces silence with a tone. amplitude is in [0,1].
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) { m.toneHz, m.amplitude = frequency, amplitude }
}

// WithScript queues chunks to emit before synthetic audio.
func WithScript(chunks ...AudioChunk) MockSourceOption {
	return func(m *MockSource) { m.script = append(m.script, chunks...) }
}

// NewMockSource creates a stopped mock microphone.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.mock"),
		out:    make(chan AudioChunk, 10),
		stats:  SourceStats{Backend: "mock"},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins emitting. It stops by itself when ctx is done.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}
	m.running = true
	m.out = make(chan AudioChunk, 10)
	m.stop = make(chan struct{})
	go m.loop(ctx, m.stop)
	m.logger.Debug("mock capture started", "scripted", len(m.script), "tone_hz", m.toneHz)
	return nil
}

func (m *MockSource) loop(ctx context.Context, stop <-chan struct{}) {
	tick := time.NewTicker(m.cfg.BufferDuration)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-tick.C:
			m.emit()
		}
	}
}

// emit sends under the lock so Stop cannot close out mid-send.
func (m *MockSource) emit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	chunk := m.next()
	select {
	case m.out <- chunk:
		m.stats.ChunksRead++
		m.stats.SamplesRead += int64(len(chunk.Samples))
	default:
		m.stats.Overruns++
	}
}

func (m *MockSource) next() AudioChunk {
	if len(m.script) > 0 {
		chunk := m.script[0]
		m.script = m.script[1:]
		return chunk
	}

	frames, channels := m.cfg.BufferSize(), m.cfg.Channels
	samples := make([]int16, frames*channels)
	if m.toneHz > 0 {
		step := 2 * math.Pi * m.toneHz / float64(m.cfg.SampleRate)
		for i := range frames {
			v := int16(m.amplitude * 32767 * math.Sin(m.phase))
			for ch := range channels {
				samples[i*channels+ch] = v
			}
			m.phase = math.Mod(m.phase+step, 2*math.Pi)
		}
	}
	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: channels}
}

// Stop halts emission and closes the stream.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stop)
	close(m.out)
	return nil
}

// Read returns the next chunk, or io.EOF once stopped.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-m.Stream():
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the channel of the current run.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out
}

func (m *MockSource) Config() Config { return m.cfg }

func (m *MockSource) Name() string { return "mock" }

// Close stops the source for good.
func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Running = m.running
	return s
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink buffers written audio instead of playing it. Flush counts the
// buffer as played; Clear drops it.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	buffered []AudioChunk
	played   []AudioChunk
	clears   int
	stats    SinkStats
}

// NewMockSink creates a stopped mock speaker.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.mock"),
		stats:  SinkStats{Backend: "mock"},
	}
}

func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Write buffers chunk. It fails unless the sink is started.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	m.buffered = append(m.buffered, chunk)
	m.stats.ChunksWritten++
	m.stats.SamplesWritten += int64(len(chunk.Samples))
	return nil
}

// Flush moves buffered audio to the played record without waiting.
func (m *MockSink) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, m.buffered...)
	m.buffered = nil
	return nil
}

func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = nil
	m.clears++
	return nil
}

func (m *MockSink) Config() Config { return m.cfg }

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

// Played returns the chunks flushed so far.
func (m *MockSink) Played() []AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AudioChunk(nil), m.played...)
}

// Clears returns how many times Clear was called.
func (m *MockSink) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Running = m.running
	for _, c := range m.buffered {
		s.BufferedSamples += int64(len(c.Samples))
	}
	return s
}

var _ SinkWithStats = (*MockSink)(nil)
