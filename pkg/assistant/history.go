package assistant

import "encoding/json"

// History is an ordered, immutable sequence of conversation items.
// Append returns a new History so published snapshots never change underneath readers.
type History struct {
	items []ConversationItem
}

// NewHistory copies items into a History.
func NewHistory(items ...ConversationItem) History {
	if len(items) == 0 {
		return History{}
	}
	cp := make([]ConversationItem, len(items))
	copy(cp, items)
	return History{items: cp}
}

// Append returns a History with item added at the end.
func (h History) Append(item ConversationItem) History {
	next := make([]ConversationItem, len(h.items), len(h.items)+1)
	copy(next, h.items)
	return History{items: append(next, item)}
}

// Len returns the number of items.
func (h History) Len() int { return len(h.items) }

// Items returns a copy of the items in insertion order.
func (h History) Items() []ConversationItem {
	cp := make([]ConversationItem, len(h.items))
	copy(cp, h.items)
	return cp
}

// Last returns the most recent item.
func (h History) Last() (ConversationItem, bool) {
	if len(h.items) == 0 {
		return ConversationItem{}, false
	}
	return h.items[len(h.items)-1], true
}

// Messages projects the most recent maxItems exchanges into alternating
// user/assistant messages. maxItems <= 0 projects everything.
func (h History) Messages(maxItems int) []Message {
	items := h.items
	if maxItems > 0 && len(items) > maxItems {
		items = items[len(items)-maxItems:]
	}
	msgs := make([]Message, 0, len(items)*2)
	for _, it := range items {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: it.UserInput},
			Message{Role: RoleAssistant, Content: it.AIResponse},
		)
	}
	return msgs
}

// MarshalJSON encodes the history as a JSON array.
func (h History) MarshalJSON() ([]byte, error) {
	if h.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.items)
}

// UnmarshalJSON decodes a JSON array of items.
func (h *History) UnmarshalJSON(data []byte) error {
	var items []ConversationItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*h = History{items: items}
	return nil
}
