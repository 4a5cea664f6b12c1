// Package sshbridge exposes amuxd's sessions over SSH, so a bare `ssh
// <session-id>@host -p <port>` attaches a remote terminal the same way a
// local `amux session attach` does. It is a thin bridge: every session it serves
// is itself just a loopback internal/client attach against the daemon's
// Unix socket, adapted from the teacher's tsnet-backed SSH server.
package sshbridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/gliderlabs/ssh"

	"github.com/amux-dev/amux/internal/client"
	"github.com/amux-dev/amux/internal/proto"
)

// Server is an SSH listener that bridges incoming sessions to amuxd's
// attach protocol.
type Server struct {
	listener   net.Listener
	socketPath string
	logger     *slog.Logger
}

// New creates a Server that will accept connections on listener and
// bridge them to the daemon listening on socketPath.
func New(listener net.Listener, socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{listener: listener, socketPath: socketPath, logger: logger}
}

// Serve accepts connections until ctx is cancelled or the listener errs.
func (s *Server) Serve(ctx context.Context) error {
	srv := &ssh.Server{
		Handler: s.handleSession,
		PtyCallback: func(ssh.Context, ssh.Pty) bool {
			return true
		},
	}

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	s.logger.Info("sshbridge listening", "addr", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				s.logger.Error("sshbridge: accept", "error", err)
				return err
			}
		}
		go srv.HandleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// handleSession bridges one SSH session to one attach stream. The SSH
// username names the session ID to attach to; an empty username lists
// the sessions currently available.
func (s *Server) handleSession(sess ssh.Session) {
	id := sess.User()
	if id == "" {
		s.listSessions(sess)
		return
	}

	cols, rows := 80, 24
	pty, winCh, isPty := sess.Pty()
	if isPty {
		cols, rows = pty.Window.Width, pty.Window.Height
	}

	stream, replay, err := client.Attach(s.socketPath, id, uint16(cols), uint16(rows))
	if err != nil {
		fmt.Fprintf(sess, "amux: attach %s: %v\n", id, err)
		_ = sess.Exit(1)
		return
	}
	defer stream.Close()

	if _, err := sess.Write(replay); err != nil {
		return
	}

	go func() {
		for win := range winCh {
			_ = stream.Resize(uint16(win.Width), uint16(win.Height))
		}
	}()

	go func() {
		_, _ = io.Copy(streamWriter{stream}, sess)
	}()

	for {
		frame, err := stream.Next()
		if err != nil {
			s.logger.Debug("sshbridge: stream closed", "session", id, "error", err)
			return
		}
		switch frame.Type {
		case proto.FrameLive, proto.FrameResync:
			if _, err := sess.Write(frame.Data); err != nil {
				return
			}
		case proto.FrameExit:
			_ = sess.Exit(exitCode(frame.Data))
			return
		}
	}
}

func (s *Server) listSessions(sess ssh.Session) {
	c, err := client.Dial(s.socketPath)
	if err != nil {
		fmt.Fprintf(sess, "amux: dial daemon: %v\n", err)
		_ = sess.Exit(1)
		return
	}
	defer c.Close()

	resp, err := c.Call(proto.ReqListSessions, "", nil)
	if err != nil {
		fmt.Fprintf(sess, "amux: list sessions: %v\n", err)
		_ = sess.Exit(1)
		return
	}
	fmt.Fprintln(sess, "attach with: ssh <session-id>@<host> -p <port>")
	fmt.Fprintln(sess, string(resp.Payload))
	_ = sess.Exit(0)
}

func exitCode(data []byte) int {
	if len(data) != 4 {
		return 0
	}
	return int(int32(binary.BigEndian.Uint32(data)))
}

// streamWriter adapts client.AttachStream's framed Write to io.Writer so
// it can be the destination of io.Copy from the raw SSH session.
type streamWriter struct {
	stream *client.AttachStream
}

func (w streamWriter) Write(p []byte) (int, error) {
	if err := w.stream.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
