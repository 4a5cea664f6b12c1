package termui

import tea "github.com/charmbracelet/bubbletea"

// Run starts the interactive session list/attach TUI against the daemon
// listening on socketPath. It blocks until the user quits.
func Run(socketPath string) error {
	m, err := NewModel(socketPath)
	if err != nil {
		return err
	}
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
