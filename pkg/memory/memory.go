// Package memory persists the conversation history between runs.
//
// A Memory holds the latest history and writes it as one JSON document to a
// Store: a local file, a Redis key or a Postgres row. A Recorder keeps the
// stored copy in step with the orchestrator's published snapshots.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

// documentVersion is bumped when the stored layout changes.
const documentVersion = 1

// document is the stored form of a history.
type document struct {
	Version int                          `json:"version"`
	SavedAt time.Time                    `json:"saved_at"`
	Items   []assistant.ConversationItem `json:"items"`
}

// Memory is the persisted conversation history.
type Memory struct {
	store Store

	mu    sync.RWMutex
	items []assistant.ConversationItem
	saved time.Time
}

// New creates a memory backed by store. A nil store keeps history in
// memory only.
func New(store Store) *Memory {
	return &Memory{store: store}
}

// NewWithFile creates a memory that persists to a JSON file.
func NewWithFile(path string) *Memory {
	return New(NewJSONStore(path))
}

// Load reads the stored history. A store with nothing saved yet leaves the
// memory empty.
func (m *Memory) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	data, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("memory: decode history: %w", err)
	}
	if doc.Version > documentVersion {
		return fmt.Errorf("memory: history version %d is newer than %d", doc.Version, documentVersion)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = doc.Items
	m.saved = doc.SavedAt
	return nil
}

// Save replaces the history and writes it to the store.
func (m *Memory) Save(ctx context.Context, items []assistant.ConversationItem) error {
	now := time.Now()
	doc := document{Version: documentVersion, SavedAt: now, Items: items}
	if doc.Items == nil {
		doc.Items = []assistant.ConversationItem{}
	}

	m.mu.Lock()
	m.items = append([]assistant.ConversationItem(nil), items...)
	m.saved = now
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return m.store.Save(ctx, data)
}

// Items returns a copy of the history, oldest first.
func (m *Memory) Items() []assistant.ConversationItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]assistant.ConversationItem(nil), m.items...)
}

// History returns the items as an assistant.History.
func (m *Memory) History() assistant.History {
	return assistant.NewHistory(m.Items()...)
}

// SavedAt returns when the history was last saved or loaded.
func (m *Memory) SavedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saved
}

// Clear empties the history and the store.
func (m *Memory) Clear(ctx context.Context) error {
	return m.Save(ctx, nil)
}

// Stats returns item counts for the dashboard.
func (m *Memory) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chars := 0
	for _, it := range m.items {
		chars += len(it.UserInput) + len(it.AIResponse)
	}
	return map[string]int{
		"items": len(m.items),
		"chars": chars,
	}
}

// Close releases resources held by the store.
func (m *Memory) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
