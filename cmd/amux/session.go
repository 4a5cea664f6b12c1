package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/amux-dev/amux/internal/client"
	"github.com/amux-dev/amux/internal/proto"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"s"},
		Short:   "Create, list, and attach to agent sessions",
	}
	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionLsCmd(),
		newSessionRmCmd(),
		newSessionRenameCmd(),
		newSessionAttachCmd(),
	)
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var provider, name string
	cmd := &cobra.Command{
		Use:   "create <repo-id> <branch> <command> [args...]",
		Short: "Spawn a new agent session, creating the branch worktree on demand",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			cols, rows := 80, 24
			if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				cols, rows = w, h
			}
			payload := map[string]any{
				"RepoID": args[0], "Branch": args[1],
				"Command": args[2], "Args": args[3:],
				"Provider": provider, "DisplayName": name,
				"Rows": rows, "Cols": cols,
			}
			resp, err := c.Call(proto.ReqCreateSession, "", payload)
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "agent provider name, e.g. claude, codex")
	cmd.Flags().StringVar(&name, "name", "", "display name for the session")
	return cmd
}

func newSessionLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List live sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(proto.ReqListSessions, "", nil)
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
}

func newSessionRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Destroy a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(proto.ReqDestroySession, "", map[string]string{"ID": args[0]})
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
}

func newSessionRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a session's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialClient()
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(proto.ReqRenameSession, "", map[string]string{"ID": args[0], "Name": args[1]})
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		},
	}
}

// newSessionAttachCmd attaches directly to a session's PTY in the
// current terminal, raw mode and all, bypassing the TUI's embedded
// pane. This is the fallback path for piping or for terminals the VT100
// emulator doesn't need to mediate.
func newSessionAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id>",
		Short: "Attach directly to a session, taking over the current terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sock, err := resolveSocket()
			if err != nil {
				return err
			}
			return attachDirect(sock, args[0])
		},
	}
}

func attachDirect(socketPath, sessionID string) error {
	fd := int(os.Stdin.Fd())
	cols, rows := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		cols, rows = w, h
	}

	stream, replay, err := client.Attach(socketPath, sessionID, uint16(cols), uint16(rows))
	if err != nil {
		return err
	}
	defer stream.Close()

	os.Stdout.Write(replay)

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("amux: entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	resizeCh := make(chan os.Signal, 1)
	signal.Notify(resizeCh, syscall.SIGWINCH)
	defer signal.Stop(resizeCh)
	go func() {
		for range resizeCh {
			if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				_ = stream.Resize(uint16(w), uint16(h))
			}
		}
	}()

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := stream.Write(buf[:n]); werr != nil {
					readErr <- werr
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case err := <-readErr:
			return err
		default:
		}
		frame, err := stream.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch frame.Type {
		case proto.FrameLive, proto.FrameResync:
			os.Stdout.Write(frame.Data)
		case proto.FrameExit:
			fmt.Fprintf(os.Stderr, "\r\namux: session exited\r\n")
			return nil
		}
	}
}
