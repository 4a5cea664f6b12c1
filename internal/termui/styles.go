package termui

import "github.com/charmbracelet/lipgloss"

// Theme holds the lipgloss styles the session list and attach pane share.
type Theme struct {
	ListBorder    lipgloss.Style
	PaneBorder    lipgloss.Style
	SelectedItem  lipgloss.Style
	NormalItem    lipgloss.Style
	StatusRunning lipgloss.Style
	StatusExited  lipgloss.Style
	StatusKilled  lipgloss.Style
	HelpText      lipgloss.Style
	Title         lipgloss.Style
}

// DefaultTheme returns the TUI's default color scheme.
func DefaultTheme() Theme {
	return Theme{
		ListBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")),

		PaneBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),

		SelectedItem: lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("62")).
			Padding(0, 1),

		NormalItem: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),

		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("76")),
		StatusExited:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		StatusKilled:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),

		HelpText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true),

		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
	}
}
