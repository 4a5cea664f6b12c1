// Package ptysession supervises one child process running under a
// pseudo-terminal: spawning it, feeding its output to a scrollback
// buffer and broadcaster, and tearing it down on request or exit.
package ptysession

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/amux-dev/amux/internal/broadcast"
	"github.com/amux-dev/amux/internal/scrollback"
)

// KillGrace is how long Kill waits after SIGTERM before escalating to
// SIGKILL.
const KillGrace = 3 * time.Second

const readChunkSize = 64 * 1024

// ExitFunc is invoked once, from the reader goroutine, when the child
// process has exited. code is -1 if the exit code could not be
// determined, which includes a process terminated by any signal (also
// the SIGTERM/SIGKILL that Kill sends).
type ExitFunc func(code int)

// Config describes a process to spawn under a PTY.
type Config struct {
	Command      string
	Args         []string
	Dir          string
	Env          []string
	Rows, Cols   uint16
	ScrollbackCap int
	OnExit       ExitFunc
	Logger       *slog.Logger
}

// Supervisor owns one PTY-backed child process.
type Supervisor struct {
	mu        sync.Mutex
	ptyFile   *os.File
	cmd       *exec.Cmd
	rows      uint16
	cols      uint16
	logger    *slog.Logger

	Scrollback *scrollback.Buffer
	Broadcast  *broadcast.Broadcaster

	done     chan struct{}
	doneOnce sync.Once
	readerWg sync.WaitGroup
}

// Spawn starts cfg.Command under a new PTY and begins the read loop.
func Spawn(cfg Config) (*Supervisor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: cfg.Rows, Cols: cfg.Cols})
	if err != nil {
		return nil, err
	}

	sb := scrollback.New(cfg.ScrollbackCap)
	s := &Supervisor{
		ptyFile:    ptmx,
		cmd:        cmd,
		rows:       cfg.Rows,
		cols:       cfg.Cols,
		logger:     logger,
		Scrollback: sb,
		done:       make(chan struct{}),
	}
	s.Broadcast = broadcast.New(sb.Snapshot)

	s.readerWg.Add(1)
	go s.readLoop(cfg.OnExit)

	logger.Info("pty spawned", "command", cfg.Command, "dir", cfg.Dir)
	return s, nil
}

func (s *Supervisor) readLoop(onExit ExitFunc) {
	defer s.readerWg.Done()

	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.ptyFile.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.Scrollback.Append(chunk)
			s.Broadcast.Publish(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("pty read error", "error", err)
			}
			code := s.waitExitCode()
			if onExit != nil {
				onExit(code)
			}
			return
		}
	}
}

func (s *Supervisor) waitExitCode() int {
	if s.cmd == nil {
		return -1
	}
	err := s.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Write sends input bytes to the child's stdin (the PTY master).
func (s *Supervisor) Write(p []byte) (int, error) {
	s.mu.Lock()
	f := s.ptyFile
	s.mu.Unlock()
	if f == nil {
		return 0, os.ErrClosed
	}
	return f.Write(p)
}

// Resize changes the PTY window size. A no-op if rows/cols match the
// current size.
func (s *Supervisor) Resize(rows, cols uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows == s.rows && cols == s.cols {
		return nil
	}
	s.rows, s.cols = rows, cols
	if s.ptyFile == nil {
		return os.ErrClosed
	}
	return pty.Setsize(s.ptyFile, &pty.Winsize{Rows: rows, Cols: cols})
}

// Size reports the current PTY dimensions.
func (s *Supervisor) Size() (rows, cols uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.cols
}

// Kill sends SIGTERM to the child's process group, waits up to
// KillGrace for it to exit, then escalates to SIGKILL. Safe to call
// more than once.
func (s *Supervisor) Kill() error {
	s.doneOnce.Do(func() { close(s.done) })

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(s.cmd.Process.Pid)
	if err != nil {
		pgid = s.cmd.Process.Pid
	}

	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	exited := make(chan struct{})
	go func() {
		s.readerWg.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(KillGrace):
		s.logger.Warn("pty child did not exit after SIGTERM, sending SIGKILL", "pgid", pgid)
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-exited
	}

	s.mu.Lock()
	if s.ptyFile != nil {
		s.ptyFile.Close()
	}
	s.mu.Unlock()
	return nil
}
