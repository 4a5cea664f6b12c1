package termui

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amux-dev/amux/internal/client"
	"github.com/amux-dev/amux/internal/proto"
	"github.com/amux-dev/amux/internal/session"
)

// Model is the session list + attach-pane TUI shown by `amux` with no
// subcommand.
type Model struct {
	socketPath string
	cli        *client.Client
	theme      Theme
	list       list.Model

	width, height int

	attached bool
	activeID string
	stream   *client.AttachStream
	vterm    *VTerm
	err      error
}

type sessionsMsg []session.Snapshot
type attachedMsg struct {
	id     string
	stream *client.AttachStream
	replay []byte
}
type frameMsg client.Frame
type streamClosedMsg struct{ err error }
type errMsg struct{ err error }

// NewModel dials amuxd at socketPath and returns a ready-to-run Model.
func NewModel(socketPath string) (Model, error) {
	c, err := client.Dial(socketPath)
	if err != nil {
		return Model{}, err
	}
	delegate := list.NewDefaultDelegate()
	l := list.New(nil, delegate, 0, 0)
	l.Title = "amux sessions"
	l.SetShowHelp(false)
	return Model{
		socketPath: socketPath,
		cli:        c,
		theme:      DefaultTheme(),
		list:       l,
	}, nil
}

func (m Model) Init() tea.Cmd {
	return refreshSessionsCmd(m.cli)
}

func refreshSessionsCmd(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := c.Call(proto.ReqListSessions, "", nil)
		if err != nil {
			return errMsg{err}
		}
		var snaps []session.Snapshot
		if err := json.Unmarshal(resp.Payload, &snaps); err != nil {
			return errMsg{err}
		}
		return sessionsMsg(snaps)
	}
}

func attachCmd(socketPath, id string, cols, rows uint16) tea.Cmd {
	return func() tea.Msg {
		stream, replay, err := client.Attach(socketPath, id, cols, rows)
		if err != nil {
			return errMsg{err}
		}
		return attachedMsg{id: id, stream: stream, replay: replay}
	}
}

func waitForFrameCmd(stream *client.AttachStream) tea.Cmd {
	return func() tea.Msg {
		f, err := stream.Next()
		if err != nil {
			return streamClosedMsg{err}
		}
		return frameMsg(f)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height-2)
		if m.vterm != nil {
			paneCols, paneRows := m.paneDims()
			m.vterm.Resize(paneCols, paneRows)
			if m.stream != nil {
				_ = m.stream.Resize(uint16(paneCols), uint16(paneRows))
			}
		}
		return m, nil

	case sessionsMsg:
		items := make([]list.Item, 0, len(msg))
		for _, s := range msg {
			items = append(items, sessionItem{snap: s})
		}
		m.list.SetItems(items)
		return m, nil

	case attachedMsg:
		m.attached = true
		m.activeID = msg.id
		m.stream = msg.stream
		cols, rows := m.paneDims()
		m.vterm = NewVTerm(cols, rows)
		_, _ = m.vterm.Write(msg.replay)
		return m, waitForFrameCmd(m.stream)

	case frameMsg:
		switch msg.Type {
		case proto.FrameLive, proto.FrameResync:
			_, _ = m.vterm.Write(msg.Data)
			return m, waitForFrameCmd(m.stream)
		case proto.FrameExit:
			code := int32(0)
			if len(msg.Data) == 4 {
				code = int32(binary.BigEndian.Uint32(msg.Data))
			}
			m.err = fmt.Errorf("session exited with code %d", code)
			m.detach()
			return m, refreshSessionsCmd(m.cli)
		default:
			return m, waitForFrameCmd(m.stream)
		}

	case streamClosedMsg:
		m.err = msg.err
		m.detach()
		return m, refreshSessionsCmd(m.cli)

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.attached {
		if msg.Type == tea.KeyEsc {
			m.detach()
			return m, nil
		}
		if m.stream != nil {
			if b := keyToBytes(msg); b != nil {
				_ = m.stream.Write(b)
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "enter":
		if item, ok := m.list.SelectedItem().(sessionItem); ok {
			cols, rows := m.paneDims()
			return m, attachCmd(m.socketPath, item.snap.ID, uint16(cols), uint16(rows))
		}
		return m, nil
	case "r":
		return m, refreshSessionsCmd(m.cli)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) detach() {
	if m.stream != nil {
		_ = m.stream.Close()
	}
	if m.vterm != nil {
		_ = m.vterm.Close()
	}
	m.attached = false
	m.activeID = ""
	m.stream = nil
	m.vterm = nil
}

func (m Model) paneDims() (cols, rows int) {
	cols = m.width - 4
	rows = m.height - 4
	if cols < 10 {
		cols = 10
	}
	if rows < 5 {
		rows = 5
	}
	return cols, rows
}

func (m Model) View() string {
	if m.attached && m.vterm != nil {
		title := m.theme.Title.Render(fmt.Sprintf("attached: %s (esc to detach)", m.activeID))
		pane := m.theme.PaneBorder.Render(m.vterm.Render())
		return lipgloss.JoinVertical(lipgloss.Left, title, pane)
	}

	help := m.theme.HelpText.Render("enter: attach  r: refresh  q: quit")
	body := m.theme.ListBorder.Render(m.list.View())
	if m.err != nil {
		return lipgloss.JoinVertical(lipgloss.Left, body, m.theme.StatusKilled.Render(m.err.Error()), help)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, help)
}

// Close releases the underlying daemon connection.
func (m Model) Close() error {
	m.detach()
	return m.cli.Close()
}
