package sessions

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	peer     lipgloss.Style
	active   lipgloss.Style
	detail   lipgloss.Style
	muted    lipgloss.Style
	warning  lipgloss.Style
	ok       lipgloss.Style
	section  lipgloss.Style
	empty    lipgloss.Style
	fieldKey lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		peer:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		active:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		warning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		ok:       lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		section:  lipgloss.NewStyle().MarginTop(1),
		empty:    lipgloss.NewStyle().Faint(true),
		fieldKey: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
}
