// Package termui is the attach-side terminal rendering collaborator for
// cmd/amux: it feeds a session's PTY bytes into a VT100 emulator and
// drives a bubbletea list/detail view over the result.
package termui

import (
	"sync"

	"github.com/charmbracelet/x/vt"
)

// VTerm renders one session's live output into an addressable grid so it
// can be embedded as a pane inside the session-list TUI, rather than
// handed straight to the real terminal the way a direct-attach does.
type VTerm struct {
	mu  sync.Mutex
	emu *vt.Emulator
}

// NewVTerm creates a VTerm sized to cols x rows.
func NewVTerm(cols, rows int) *VTerm {
	return &VTerm{emu: vt.NewEmulator(cols, rows)}
}

// Write feeds attach-stream bytes (replay, live, or resync frames) into
// the emulator.
func (v *VTerm) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emu.Write(p)
}

// Resize changes the emulator's dimensions to track the pane's on-screen
// size.
func (v *VTerm) Resize(cols, rows int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.emu.Resize(cols, rows)
}

// Render returns the current screen contents as a block of ANSI text
// suitable for embedding in a lipgloss-rendered pane.
func (v *VTerm) Render() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emu.Render()
}

// CursorPosition returns the emulator's current cursor coordinates.
func (v *VTerm) CursorPosition() (x, y int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos := v.emu.CursorPosition()
	return pos.X, pos.Y
}

// Close releases the emulator.
func (v *VTerm) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emu.Close()
}
