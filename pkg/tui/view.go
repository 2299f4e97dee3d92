package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

const (
	colorGray   = "#888888"
	colorBlue   = "#4AA8FF"
	colorGreen  = "#4ADE80"
	colorAmber  = "#FBBF24"
	colorPink   = "#F472B6"
	colorRed    = "#F87171"
	colorPurple = "#A78BFA"
)

var stateColors = map[assistant.State]string{
	assistant.StateIdle:       colorGray,
	assistant.StateDetecting:  colorBlue,
	assistant.StateListening:  colorGreen,
	assistant.StateProcessing: colorAmber,
	assistant.StateSpeaking:   colorPink,
	assistant.StateError:      colorRed,
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorPurple))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorBlue))
	aiStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed))
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(colorAmber))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(colorGray)).Padding(0, 1)
)

// View renders the screen.
func (m *Model) View() string {
	width := max(m.width-4, 20)

	sections := []string{
		m.renderHeader(),
		boxStyle.Width(width).Render(m.renderHistory(width - 2)),
	}
	if len(m.errors) > 0 {
		sections = append(sections, m.renderErrors())
	}
	if m.notice != "" {
		sections = append(sections, noticeStyle.Render(m.notice))
	}
	sections = append(sections, dimStyle.Render("space listen • i interrupt • f free mode • c clear • r resume • q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	state := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(lipgloss.Color("#000000")).
		Background(lipgloss.Color(stateColors[m.snap.State])).
		Render(strings.ToUpper(m.snap.State.String()))

	parts := []string{titleStyle.Render("go-attend"), state, renderFace(m.snap.LastFace)}
	if m.snap.FreeMode {
		parts = append(parts, noticeStyle.Render("free mode"))
	}
	if m.released {
		parts = append(parts, errorStyle.Render("released"))
	}
	return strings.Join(parts, "  ")
}

func renderFace(f assistant.FaceDetectionResult) string {
	if f.FaceCount == 0 {
		return dimStyle.Render("no face")
	}
	age := ""
	if !f.Timestamp.IsZero() {
		age = " " + time.Since(f.Timestamp).Round(100*time.Millisecond).String() + " ago"
	}
	return fmt.Sprintf("%d face(s) %.0f%%%s", f.FaceCount, f.Confidence*100, age)
}

// renderHistory shows as many recent exchanges as fit, newest last.
func (m *Model) renderHistory(width int) string {
	items := m.snap.History.Items()
	if len(items) == 0 {
		return dimStyle.Render("No conversation yet.")
	}

	budget := max(m.height-8, 2) / 2
	if len(items) > budget {
		items = items[len(items)-budget:]
	}

	lines := make([]string, 0, 2*len(items))
	for _, it := range items {
		lines = append(lines,
			userStyle.Render(truncate("You: "+it.UserInput, width)),
			aiStyle.Render(truncate("AI:  "+it.AIResponse, width)),
		)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderErrors() string {
	lines := make([]string, 0, len(m.errors))
	for _, f := range m.errors {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("%s %s: %s", f.Time.Format("15:04:05"), f.Kind, f.Message)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
