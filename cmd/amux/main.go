// amux is the CLI/TUI client: it dials amuxd over its Unix socket (auto
// starting the daemon if it isn't already running) and either runs one
// subcommand or, with none given, drops into the interactive session
// list TUI.
package main

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/amux-dev/amux/internal/client"
	"github.com/amux-dev/amux/internal/daemonconfig"
	"github.com/amux-dev/amux/internal/termui"
)

// Version is set at build time via ldflags.
var Version = "dev"

var socketFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:     "amux",
		Short:   "Attach to and manage amux agent sessions",
		Version: Version,
		RunE:    runTUI,
	}
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "override the daemon's Unix socket path")

	rootCmd.AddCommand(
		newRepoCmd(),
		newWorktreeCmd(),
		newSessionCmd(),
		newBridgeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTUI(*cobra.Command, []string) error {
	sock, err := resolveSocket()
	if err != nil {
		return err
	}
	return termui.Run(sock)
}

// resolveSocket returns the daemon's socket path, starting amuxd in the
// background if nothing is listening on it yet.
func resolveSocket() (string, error) {
	sock := socketFlag
	if sock == "" {
		cfg, err := daemonconfig.Load()
		if err != nil {
			return "", err
		}
		sock = cfg.SocketPath
	}

	if reachable(sock) {
		return sock, nil
	}
	if err := spawnDaemon(sock); err != nil {
		return "", fmt.Errorf("amux: starting amuxd: %w", err)
	}
	for i := 0; i < 100; i++ {
		if reachable(sock) {
			return sock, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return "", fmt.Errorf("amux: amuxd did not come up on %s", sock)
}

func reachable(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func spawnDaemon(socketPath string) error {
	bin, err := amuxdPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return err
	}
	cmd := exec.Command(bin, "--socket", socketPath)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Start()
}

// amuxdPath locates the amuxd binary next to the running amux binary,
// falling back to $PATH.
func amuxdPath() (string, error) {
	self, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(self), "amuxd")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	return exec.LookPath("amuxd")
}

func dialClient() (*client.Client, error) {
	sock, err := resolveSocket()
	if err != nil {
		return nil, err
	}
	return client.Dial(sock)
}
