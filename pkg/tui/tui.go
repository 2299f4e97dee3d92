// Package tui renders the assistant in the terminal: current state, the
// last face observation, recent history and failures. Keys forward the
// same intents as the dashboard.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

const (
	maxFailures = 5
	noticeTTL   = 3 * time.Second
)

// Controller is the orchestrator surface the TUI drives.
type Controller interface {
	Snapshot() assistant.Snapshot
	Subscribe() (<-chan assistant.Snapshot, func())
	Errors() (<-chan assistant.Failure, func())
	TriggerManual(text string) bool
	InterruptSpeaking()
	ToggleFreeMode() bool
	ClearConversationHistory()
	Resume() bool
}

// SnapshotMsg carries a published snapshot.
type SnapshotMsg assistant.Snapshot

// FailureMsg carries an emitted failure.
type FailureMsg assistant.Failure

// streamClosedMsg reports that the orchestrator was released.
type streamClosedMsg struct{}

type noticeExpiredMsg struct{ at time.Time }

// Model is the bubbletea model.
type Model struct {
	ctl       Controller
	snapshots <-chan assistant.Snapshot
	failures  <-chan assistant.Failure

	snap     assistant.Snapshot
	errors   []assistant.Failure
	notice   string
	noticeAt time.Time
	released bool

	width  int
	height int
}

// New creates a model reading from the given streams. Use Run for the
// usual wiring.
func New(ctl Controller, snapshots <-chan assistant.Snapshot, failures <-chan assistant.Failure) *Model {
	return &Model{
		ctl:       ctl,
		snapshots: snapshots,
		failures:  failures,
		snap:      ctl.Snapshot(),
		width:     80,
		height:    24,
	}
}

// Run shows the TUI until the user quits or ctx is done.
func Run(ctx context.Context, ctl Controller) error {
	snaps, unsubSnaps := ctl.Subscribe()
	defer unsubSnaps()
	errs, unsubErrs := ctl.Errors()
	defer unsubErrs()

	p := tea.NewProgram(New(ctl, snaps, errs), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Init starts listening on both streams.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitSnapshot(m.snapshots), waitFailure(m.failures))
}

func waitSnapshot(ch <-chan assistant.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return SnapshotMsg(s)
	}
}

func waitFailure(ch <-chan assistant.Failure) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return nil
		}
		return FailureMsg(f)
	}
}

// Update processes bubbletea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.snap = assistant.Snapshot(msg)
		return m, waitSnapshot(m.snapshots)

	case FailureMsg:
		m.errors = append(m.errors, assistant.Failure(msg))
		if len(m.errors) > maxFailures {
			m.errors = m.errors[len(m.errors)-maxFailures:]
		}
		return m, waitFailure(m.failures)

	case streamClosedMsg:
		m.released = true
		return m, nil

	case noticeExpiredMsg:
		if msg.at.Equal(m.noticeAt) {
			m.notice = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	if m.released {
		return m, nil
	}

	switch msg.String() {
	case " ":
		if m.ctl.TriggerManual("") {
			return m, m.setNotice("listening")
		}
		return m, m.setNotice("busy: " + m.snap.State.String())
	case "i":
		m.ctl.InterruptSpeaking()
		return m, m.setNotice("interrupted")
	case "f":
		if m.ctl.ToggleFreeMode() {
			return m, m.setNotice("free mode on")
		}
		return m, m.setNotice("free mode off")
	case "c":
		m.ctl.ClearConversationHistory()
		return m, m.setNotice("history cleared")
	case "r":
		if m.ctl.Resume() {
			return m, m.setNotice("resumed")
		}
		return m, m.setNotice("cannot resume from " + m.snap.State.String())
	}
	return m, nil
}

// setNotice shows a short message that clears itself.
func (m *Model) setNotice(text string) tea.Cmd {
	at := time.Now()
	m.notice = text
	m.noticeAt = at
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg{at: at} })
}
