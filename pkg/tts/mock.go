package tts

import (
	"context"
	"sync"
	"time"
)

// bytesPerChar is 20ms of 16kHz PCM16.
const bytesPerChar = 640

// Mock is a scriptable Provider. Nil funcs fall back to silence for
// Synthesize, a chunked Synthesize result for Stream, and nil for Health
// and Close.
type Mock struct {
	NameValue string

	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)
	StreamFunc     func(ctx context.Context, text string) (AudioStream, error)
	HealthFunc     func(ctx context.Context) error
	CloseFunc      func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded invocation.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock returns a mock producing 20ms of 16kHz silence per character.
func NewMock() *Mock {
	return &Mock{SynthesizeFunc: silence}
}

func silence(_ context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError("mock", ErrEmptyText)
	}
	return &AudioResult{
		Audio:     make([]byte, len(text)*bytesPerChar),
		Format:    pcmFormat(EncodingPCM16, 16000),
		CharCount: len(text),
		LatencyMs: 1,
		Duration:  time.Duration(len(text)) * 20 * time.Millisecond,
	}, nil
}

// WithError returns a mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		StreamFunc:     func(context.Context, string) (AudioStream, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// WithLatency delays m's synthesis by delay, honouring cancellation.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	next := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
		if next == nil {
			return nil, WrapError("mock", ErrProviderUnavailable)
		}
		return next(ctx, text)
	}
	return m
}

func (m *Mock) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.note("Synthesize", text)
	if m.SynthesizeFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.SynthesizeFunc(ctx, text)
}

func (m *Mock) Stream(ctx context.Context, text string) (AudioStream, error) {
	m.note("Stream", text)
	switch {
	case m.StreamFunc != nil:
		return m.StreamFunc(ctx, text)
	case m.SynthesizeFunc != nil:
		res, err := m.SynthesizeFunc(ctx, text)
		if err != nil {
			return nil, err
		}
		return newBufferStream(res.Audio, res.Format), nil
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

func (m *Mock) Health(ctx context.Context) error {
	m.note("Health", "")
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.note("Close", "")
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *Mock) note(method, text string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
	m.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount counts recorded calls to method.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns the newest call, or nil.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
