package memory

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

// Recorder saves each new history it sees on a snapshot stream.
type Recorder struct {
	memory *Memory
	logger *slog.Logger

	lastLen int
	lastID  uuid.UUID
}

// NewRecorder creates a recorder that writes to m.
func NewRecorder(m *Memory, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{memory: m, logger: logger.With("component", "memory.recorder")}
	r.mark(m.Items())
	return r
}

// Run saves history changes until snapshots is closed or ctx is done.
// Save failures are logged and retried on the next change.
func (r *Recorder) Run(ctx context.Context, snapshots <-chan assistant.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			r.Observe(ctx, snap.History)
		}
	}
}

// Observe saves h if it differs from the last saved history.
func (r *Recorder) Observe(ctx context.Context, h assistant.History) {
	items := h.Items()
	if !r.changed(items) {
		return
	}
	if err := r.memory.Save(ctx, items); err != nil {
		r.logger.Warn("failed to save history", "items", len(items), "error", err)
		return
	}
	r.mark(items)
	r.logger.Debug("history saved", "items", len(items))
}

// changed compares length and newest item. History is append-only between
// clears, so this is enough.
func (r *Recorder) changed(items []assistant.ConversationItem) bool {
	if len(items) != r.lastLen {
		return true
	}
	if len(items) == 0 {
		return false
	}
	return items[len(items)-1].ID != r.lastID
}

func (r *Recorder) mark(items []assistant.ConversationItem) {
	r.lastLen = len(items)
	r.lastID = uuid.Nil
	if len(items) > 0 {
		r.lastID = items[len(items)-1].ID
	}
}
