package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// View names accepted by Run.
const (
	ViewInspectScript = "inspect_script"
	ViewStatsSession  = "stats_session"
)

// SupportedTUIViews returns the views that have a TUI.
func SupportedTUIViews() []string {
	return []string{ViewInspectScript, ViewStatsSession}
}

// IsTUISupported reports whether view has a TUI.
func IsTUISupported(view string) bool {
	return slices.Contains(SupportedTUIViews(), view)
}

// Run opens the TUI for view until the user quits.
func Run(view string, data any) error {
	m, err := newModel(view, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// RenderStatic renders the first screen of a view without a terminal.
func RenderStatic(view string, data any) (string, error) {
	m, err := newModel(view, data)
	if err != nil {
		return "", err
	}
	return m.View(), nil
}

func newModel(view string, data any) (tea.Model, error) {
	switch view {
	case ViewInspectScript:
		return NewScriptModel(data)
	case ViewStatsSession:
		return NewStatsModel(data)
	}
	return nil, fmt.Errorf("TUI mode is not supported for %s", view)
}

type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
	Home key.Binding
	End  key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Home: key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "first")),
	End:  key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "last")),
}
