package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

type fakeController struct {
	snap       assistant.Snapshot
	accept     bool
	triggers   int
	interrupts int
	cleared    int
	freeMode   bool
	resumed    int
}

func (f *fakeController) Snapshot() assistant.Snapshot { return f.snap }
func (f *fakeController) Subscribe() (<-chan assistant.Snapshot, func()) {
	return make(chan assistant.Snapshot), func() {}
}
func (f *fakeController) Errors() (<-chan assistant.Failure, func()) {
	return make(chan assistant.Failure), func() {}
}
func (f *fakeController) TriggerManual(string) bool {
	f.triggers++
	return f.accept
}
func (f *fakeController) InterruptSpeaking()        { f.interrupts++ }
func (f *fakeController) ToggleFreeMode() bool      { f.freeMode = !f.freeMode; return f.freeMode }
func (f *fakeController) ClearConversationHistory() { f.cleared++ }
func (f *fakeController) Resume() bool              { f.resumed++; return true }

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeysForwardIntents(t *testing.T) {
	ctl := &fakeController{accept: true}
	m := New(ctl, nil, nil)

	tests := []struct {
		key    string
		check  func() bool
		notice string
	}{
		{" ", func() bool { return ctl.triggers == 1 }, "listening"},
		{"i", func() bool { return ctl.interrupts == 1 }, "interrupted"},
		{"f", func() bool { return ctl.freeMode }, "free mode on"},
		{"f", func() bool { return !ctl.freeMode }, "free mode off"},
		{"c", func() bool { return ctl.cleared == 1 }, "history cleared"},
		{"r", func() bool { return ctl.resumed == 1 }, "resumed"},
	}
	for _, tt := range tests {
		_, cmd := m.Update(key(tt.key))
		if !tt.check() {
			t.Errorf("key %q did not reach the controller", tt.key)
		}
		if m.notice != tt.notice {
			t.Errorf("key %q notice = %q, want %q", tt.key, m.notice, tt.notice)
		}
		if cmd == nil {
			t.Errorf("key %q returned no notice timer", tt.key)
		}
	}
}

func TestTriggerRejected(t *testing.T) {
	ctl := &fakeController{snap: assistant.Snapshot{State: assistant.StateSpeaking}}
	m := New(ctl, nil, nil)
	m.Update(key(" "))
	if m.notice != "busy: speaking" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestQuit(t *testing.T) {
	for _, msg := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}} {
		m := New(&fakeController{}, nil, nil)
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("%v returned no command", msg)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%v did not quit", msg)
		}
	}
}

func TestSnapshotStream(t *testing.T) {
	snaps := make(chan assistant.Snapshot, 1)
	m := New(&fakeController{}, snaps, nil)

	snaps <- assistant.Snapshot{
		State:    assistant.StateListening,
		FreeMode: true,
		History:  assistant.NewHistory(assistant.NewConversationItem("what is the weather", "sunny")),
	}
	msg := waitSnapshot(snaps)()
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Error("stream not re-armed")
	}
	if m.snap.State != assistant.StateListening {
		t.Errorf("state = %v", m.snap.State)
	}

	view := m.View()
	for _, want := range []string{"LISTENING", "free mode", "You: what is the weather", "AI:  sunny"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	close(snaps)
	m.Update(waitSnapshot(snaps)())
	if !m.released {
		t.Error("closed stream not noticed")
	}
	ctl := m.ctl.(*fakeController)
	m.Update(key("i"))
	if ctl.interrupts != 0 {
		t.Error("keys forwarded after release")
	}
}

func TestFailuresKeepLatest(t *testing.T) {
	m := New(&fakeController{}, nil, nil)
	for i := 0; i < maxFailures+2; i++ {
		m.Update(FailureMsg{Kind: assistant.TranscriptionFailure, Message: "network", Time: time.Now()})
	}
	if len(m.errors) != maxFailures {
		t.Errorf("kept %d failures, want %d", len(m.errors), maxFailures)
	}
	if !strings.Contains(m.View(), "transcription: network") {
		t.Error("failure not rendered")
	}
}

func TestNoticeExpires(t *testing.T) {
	m := New(&fakeController{}, nil, nil)
	m.Update(key("c"))
	at := m.noticeAt

	m.Update(noticeExpiredMsg{at: at.Add(-time.Second)})
	if m.notice == "" {
		t.Error("stale timer cleared a newer notice")
	}
	m.Update(noticeExpiredMsg{at: at})
	if m.notice != "" {
		t.Error("notice not cleared")
	}
}

func TestViewEmpty(t *testing.T) {
	m := New(&fakeController{}, nil, nil)
	m.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	view := m.View()
	if !strings.Contains(view, "No conversation yet.") || !strings.Contains(view, "no face") {
		t.Errorf("view = %s", view)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"much too long", 8, "much to…"},
		{"two\nlines", 20, "two lines"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
