package ptysession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnEchoAndReadOutput(t *testing.T) {
	exitCh := make(chan int, 1)
	sup, err := Spawn(Config{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo hello-amux"},
		Rows:    24,
		Cols:    80,
		OnExit:  func(code int) { exitCh <- code },
	})
	require.NoError(t, err)

	select {
	case <-exitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	assert.Contains(t, string(sup.Scrollback.Snapshot()), "hello-amux")
}

func TestResizeUpdatesSize(t *testing.T) {
	sup, err := Spawn(Config{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 2"},
		Rows:    24,
		Cols:    80,
	})
	require.NoError(t, err)
	defer sup.Kill()

	require.NoError(t, sup.Resize(40, 120))
	rows, cols := sup.Size()
	assert.Equal(t, uint16(40), rows)
	assert.Equal(t, uint16(120), cols)
}

func TestResizeUnchangedDimsIsNoOp(t *testing.T) {
	sup, err := Spawn(Config{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 2"},
		Rows:    24,
		Cols:    80,
	})
	require.NoError(t, err)
	defer sup.Kill()

	// Close the underlying PTY out from under the supervisor so a real
	// pty.Setsize call would fail. Resize with the same dims must not
	// reach it.
	sup.mu.Lock()
	sup.ptyFile.Close()
	sup.mu.Unlock()

	assert.NoError(t, sup.Resize(24, 80))

	rows, cols := sup.Size()
	assert.Equal(t, uint16(24), rows)
	assert.Equal(t, uint16(80), cols)
}

func TestKillTerminatesProcess(t *testing.T) {
	exitCh := make(chan int, 1)
	sup, err := Spawn(Config{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
		Rows:    24,
		Cols:    80,
		OnExit:  func(code int) { exitCh <- code },
	})
	require.NoError(t, err)

	require.NoError(t, sup.Kill())

	select {
	case <-exitCh:
	case <-time.After(KillGrace + 2*time.Second):
		t.Fatal("process was not reaped after Kill")
	}
}
