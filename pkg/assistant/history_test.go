package assistant

import (
	"encoding/json"
	"testing"
)

func TestHistoryAppendIsCopyOnWrite(t *testing.T) {
	h0 := NewHistory()
	h1 := h0.Append(NewConversationItem("hi", "hello"))
	h2 := h1.Append(NewConversationItem("how are you", "fine"))

	if h0.Len() != 0 || h1.Len() != 1 || h2.Len() != 2 {
		t.Fatalf("lengths = %d, %d, %d", h0.Len(), h1.Len(), h2.Len())
	}

	// Appending to an older value must not disturb a newer one.
	h1b := h1.Append(NewConversationItem("other", "branch"))
	if h2.Items()[1].UserInput != "how are you" {
		t.Error("shared backing array was overwritten")
	}
	if h1b.Items()[1].UserInput != "other" {
		t.Error("branch lost its item")
	}
}

func TestHistoryItemsReturnsCopy(t *testing.T) {
	h := NewHistory(NewConversationItem("a", "b"))
	items := h.Items()
	items[0].UserInput = "changed"

	if got := h.Items()[0].UserInput; got != "a" {
		t.Errorf("history mutated through Items(): %q", got)
	}
}

func TestHistoryLast(t *testing.T) {
	var h History
	if _, ok := h.Last(); ok {
		t.Error("empty history should have no last item")
	}

	h = h.Append(NewConversationItem("a", "b")).Append(NewConversationItem("c", "d"))
	last, ok := h.Last()
	if !ok || last.UserInput != "c" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestHistoryMessages(t *testing.T) {
	h := NewHistory(
		NewConversationItem("u1", "a1"),
		NewConversationItem("u2", "a2"),
		NewConversationItem("u3", "a3"),
	)

	tests := []struct {
		name  string
		limit int
		first string
		count int
	}{
		{"all", 0, "u1", 6},
		{"negative means all", -1, "u1", 6},
		{"last two", 2, "u2", 4},
		{"more than stored", 10, "u1", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := h.Messages(tt.limit)
			if len(msgs) != tt.count {
				t.Fatalf("len = %d, want %d", len(msgs), tt.count)
			}
			if msgs[0].Content != tt.first || msgs[0].Role != RoleUser {
				t.Errorf("first = %+v", msgs[0])
			}
			if msgs[1].Role != RoleAssistant {
				t.Errorf("second role = %s, want assistant", msgs[1].Role)
			}
		})
	}
}

func TestHistoryJSON(t *testing.T) {
	h := NewHistory(NewConversationItem("hi", "hello"))
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded History
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Len() != 1 || decoded.Items()[0].AIResponse != "hello" {
		t.Errorf("decoded = %+v", decoded.Items())
	}
	if decoded.Items()[0].ID != h.Items()[0].ID {
		t.Error("item id not preserved")
	}
}

func TestConversationItemIDsAreUnique(t *testing.T) {
	a := NewConversationItem("x", "y")
	b := NewConversationItem("x", "y")
	if a.ID == b.ID {
		t.Error("expected distinct ids")
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
