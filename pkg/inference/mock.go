package inference

import (
	"context"
	"sync"
	"time"
)

// Mock is a scriptable Provider that records every call and chat request.
type Mock struct {
	NameValue string

	ChatFunc   func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthFunc func(ctx context.Context) error
	CloseFunc  func() error

	mu       sync.Mutex
	calls    []MockCall
	requests []*ChatRequest
}

// MockCall is one recorded invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock replies with reply to every chat.
func NewMock(reply string) *Mock {
	return &Mock{ChatFunc: func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{
			Message:      NewAssistantMessage(reply),
			FinishReason: "stop",
			Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			Provider:     "mock",
		}, nil
	}}
}

// WithError fails every chat and health check with err.
func WithError(err error) *Mock {
	return &Mock{
		ChatFunc:   func(context.Context, *ChatRequest) (*ChatResponse, error) { return nil, err },
		HealthFunc: func(context.Context) error { return err },
	}
}

func (m *Mock) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Chat", Time: time.Now()})
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc == nil {
		return nil, WrapError(m.Name(), ErrProviderUnavailable)
	}
	return m.ChatFunc(ctx, req)
}

func (m *Mock) Health(ctx context.Context) error {
	m.note("Health")
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.note("Close")
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *Mock) note(method string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
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

// LastRequest returns the newest chat request, or nil.
func (m *Mock) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.requests); n > 0 {
		return m.requests[n-1]
	}
	return nil
}

// Reset forgets calls and requests.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls, m.requests = nil, nil
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
