package conversation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

// Mock implements assistant.ConversationService for testing.
// Unset functions transcribe to "hello", reply "hi there" and speak instantly.
type Mock struct {
	SpeechToTextFunc func(ctx context.Context, audio []byte) (string, error)
	ConverseFunc     func(ctx context.Context, userText string, history []assistant.Message) (string, error)
	TextToSpeechFunc func(ctx context.Context, text string) error

	mu       sync.Mutex
	heard    [][]byte
	asked    []string
	spoken   []string
	stops    int
	speaking atomic.Bool
}

// NewMock creates a new Mock service.
func NewMock() *Mock {
	return &Mock{}
}

// SpeechToText implements assistant.ConversationService.
func (m *Mock) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	m.mu.Lock()
	m.heard = append(m.heard, audio)
	m.mu.Unlock()
	if m.SpeechToTextFunc != nil {
		return m.SpeechToTextFunc(ctx, audio)
	}
	return "hello", nil
}

// Converse implements assistant.ConversationService.
func (m *Mock) Converse(ctx context.Context, userText string, history []assistant.Message) (string, error) {
	m.mu.Lock()
	m.asked = append(m.asked, userText)
	m.mu.Unlock()
	if m.ConverseFunc != nil {
		return m.ConverseFunc(ctx, userText, history)
	}
	return "hi there", nil
}

// TextToSpeech implements assistant.ConversationService. IsSpeaking is true
// while TextToSpeechFunc runs.
func (m *Mock) TextToSpeech(ctx context.Context, text string) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	m.mu.Unlock()

	m.speaking.Store(true)
	defer m.speaking.Store(false)
	if m.TextToSpeechFunc != nil {
		return m.TextToSpeechFunc(ctx, text)
	}
	return ctx.Err()
}

// StopSpeaking implements assistant.ConversationService.
func (m *Mock) StopSpeaking() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
}

// IsSpeaking implements assistant.ConversationService.
func (m *Mock) IsSpeaking() bool {
	return m.speaking.Load()
}

// Asked returns the user texts passed to Converse.
func (m *Mock) Asked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.asked...)
}

// Spoken returns the texts passed to TextToSpeech.
func (m *Mock) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Heard returns how many utterances were transcribed.
func (m *Mock) Heard() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heard)
}

// Stops returns how many times StopSpeaking was called.
func (m *Mock) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

var _ assistant.ConversationService = (*Mock)(nil)
