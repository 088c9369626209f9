package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/evidlo/rosen/cli/reader"
)

// defaultRows is the list height before the first WindowSizeMsg.
const defaultRows = 15

// ScriptModel browses the entries of a saved script.
type ScriptModel struct {
	view   *reader.ScriptView
	cursor int
	top    int
	rows   int
	width  int
}

// NewScriptModel creates a script browser for a *reader.ScriptView.
func NewScriptModel(data any) (ScriptModel, error) {
	v, ok := data.(*reader.ScriptView)
	if !ok || v == nil {
		return ScriptModel{}, fmt.Errorf("inspect_script: unexpected data %T", data)
	}
	return ScriptModel{view: v, rows: defaultRows, width: 100}, nil
}

// Cursor returns the selected entry index.
func (m ScriptModel) Cursor() int { return m.cursor }

// Init implements tea.Model.
func (m ScriptModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m ScriptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		// Header box, detail box and help take about 14 lines.
		m.rows = max(msg.Height-14, 3)
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.cursor--
		case key.Matches(msg, keys.Down):
			m.cursor++
		case key.Matches(msg, keys.Home):
			m.cursor = 0
		case key.Matches(msg, keys.End):
			m.cursor = len(m.view.Items) - 1
		}
	}
	m.cursor = max(0, min(m.cursor, len(m.view.Items)-1))
	if m.cursor < m.top {
		m.top = m.cursor
	}
	if m.cursor >= m.top+m.rows {
		m.top = m.cursor - m.rows + 1
	}
	return m, nil
}

// View implements tea.Model.
func (m ScriptModel) View() string {
	v := m.view
	var b strings.Builder

	name := v.Name
	if name == "" {
		name = "(unnamed)"
	}
	b.WriteString(TitleStyle.Render("Script " + name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Entries:"), ValueStyle.Render(fmt.Sprintf("%d (%d envelopes, %d frames)", v.Entries, v.Envelopes, v.Frames)))
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Duration:"), ValueStyle.Render(fmt.Sprintf("%.3fs", v.Duration)))
	if len(v.Uploads) > 0 {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Uploads:"), ValueStyle.Render(strings.Join(v.Uploads, ", ")))
	}
	header := BoxStyle.Render(b.String())

	var list strings.Builder
	if len(v.Items) == 0 {
		list.WriteString(HelpStyle.Render("(empty script)"))
	}
	end := min(m.top+m.rows, len(v.Items))
	for i := m.top; i < end; i++ {
		item := v.Items[i]
		line := fmt.Sprintf("%4d %9.3f  %-14s", item.Index, item.Offset, item.Command)
		if i == m.cursor {
			list.WriteString(SelectedStyle.Render("> " + line))
		} else {
			list.WriteString("  " + CommandStyle(item.Command).Render(line))
		}
		list.WriteString("\n")
	}

	out := []string{header, list.String()}
	if len(v.Items) > 0 {
		detail := v.Items[m.cursor].Detail
		if m.width > 8 && len(detail) > m.width-8 {
			detail = detail[:m.width-9] + "…"
		}
		out = append(out, DetailStyle.Render(detail))
	}
	out = append(out, HelpStyle.Render(fmt.Sprintf("%s · %s · %s/%s · %s",
		keys.Up.Help().Key, keys.Down.Help().Key, keys.Home.Help().Key, keys.End.Help().Key, "q quit")))
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}
