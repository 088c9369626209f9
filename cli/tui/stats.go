package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/evidlo/rosen/cli/reader"
)

// StatsModel shows the archived metrics of one session.
type StatsModel struct {
	stats *reader.SessionStats
}

// NewStatsModel creates a stats view for a *reader.SessionStats.
func NewStatsModel(data any) (StatsModel, error) {
	s, ok := data.(*reader.SessionStats)
	if !ok || s == nil {
		return StatsModel{}, fmt.Errorf("stats_session: unexpected data %T", data)
	}
	return StatsModel{stats: s}, nil
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	s := m.stats
	title := TitleStyle.Render("Session " + s.SessionID)
	meta := fmt.Sprintf("%s %s\n%s %s\n%s %s\n%s %s",
		LabelStyle.Render("Station:"), ValueStyle.Render(s.Station),
		LabelStyle.Render("Status:"), StateStyle(s.Status).Render(s.Status),
		LabelStyle.Render("Transport:"), ValueStyle.Render(s.Transport),
		LabelStyle.Render("Elapsed:"), ValueStyle.Render((time.Duration(s.ElapsedMs) * time.Millisecond).String()),
	)

	link := lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Sent", s.EnvelopesSent, accentColor),
		statBox("Acks", s.AcksReceived, okColor),
		statBox("Retransmits", s.Retransmits, cautionColor),
		statBox("Timeouts", s.AckTimeouts, faultColor),
	)
	inbound := lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Observed", s.Observed, accentColor),
		statBox("Decode errors", s.DecodeErrors, faultColor),
		statBox("Download", s.DownloadFrames, okColor),
		statBox("Expected", s.DownloadExpected, dimColor),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		title, BoxStyle.Render(meta), link, inbound,
		HelpStyle.Render("Press q to quit"))
}

func statBox(label string, value int64, color lipgloss.Color) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value)),
		StatLabelStyle.Render(label),
	)
	return StatBoxStyle.Render(content)
}
