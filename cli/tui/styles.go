// Package tui provides read-only Bubble Tea views for the rosen CLI.
//
// The TUI is opt-in (--tui) and shows the same view structs the table and
// json renderers print.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor  = lipgloss.Color("#38BDF8") // sky
	okColor      = lipgloss.Color("#22C55E")
	cautionColor = lipgloss.Color("#EAB308")
	faultColor   = lipgloss.Color("#DC2626")
	dimColor     = lipgloss.Color("#64748B")
	textColor    = lipgloss.Color("#E2E8F0")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(16)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)
	HelpStyle  = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	// BoxStyle frames the header block of a view.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(1, 2)

	// SelectedStyle marks the cursor row of the script list.
	SelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)

	// DetailStyle draws the selected entry under a rule.
	DetailStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(dimColor).
			Foreground(textColor)

	// Counter boxes on the stats view.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(dimColor).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(textColor).Align(lipgloss.Center)
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(okColor)
	cautionStyle = lipgloss.NewStyle().Foreground(cautionColor)
	faultStyle   = lipgloss.NewStyle().Foreground(faultColor)
)

var statusStyles = map[string]lipgloss.Style{
	"completed":    okStyle,
	"stopped":      cautionStyle,
	"failed":       faultStyle,
	"disconnected": faultStyle,
}

// Storage writes are highlighted; commands that destroy relay state stand out.
var commandStyles = map[string]lipgloss.Style{
	"append-file":   cautionStyle,
	"execute-file":  cautionStyle,
	"download-file": cautionStyle,
	"abort-script":  faultStyle,
	"clear-storage": faultStyle,
	"remove-file":   faultStyle,
	"reset-relay":   faultStyle,
}

// StateStyle colors a session status.
func StateStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return ValueStyle
}

// CommandStyle colors an entry by envelope command.
func CommandStyle(cmd string) lipgloss.Style {
	if s, ok := commandStyles[cmd]; ok {
		return s
	}
	return ValueStyle
}
