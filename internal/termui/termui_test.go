package termui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/session"
)

func TestKeyToBytes(t *testing.T) {
	cases := []struct {
		key  tea.KeyMsg
		want []byte
	}{
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")}, []byte("a")},
		{tea.KeyMsg{Type: tea.KeyEnter}, []byte{'\r'}},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, []byte{0x03}},
		{tea.KeyMsg{Type: tea.KeyUp}, []byte{0x1b, '[', 'A'}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, keyToBytes(tc.key))
	}
}

func TestSessionItemRendersStateAndBranch(t *testing.T) {
	item := sessionItem{snap: session.Snapshot{
		ID: "abcdef12-0000-0000-0000-000000000000", DisplayName: "claude-1",
		Branch: "feature-x", Provider: "claude", State: session.Running,
	}}
	assert.Contains(t, item.Title(), "claude-1")
	assert.Contains(t, item.Title(), "running")
	assert.Contains(t, item.Description(), "feature-x")
	assert.Contains(t, item.FilterValue(), "claude-1")
}

func TestVTermWriteAndRenderRoundTrip(t *testing.T) {
	v := NewVTerm(20, 5)
	defer v.Close()
	n, err := v.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Contains(t, v.Render(), "hello")
}

func TestVTermResizeKeepsCursorNonNegative(t *testing.T) {
	v := NewVTerm(10, 5)
	defer v.Close()
	v.Resize(40, 20)
	x, y := v.CursorPosition()
	assert.GreaterOrEqual(t, x, 0)
	assert.GreaterOrEqual(t, y, 0)
}
