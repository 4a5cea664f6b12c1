// amuxd is the background daemon for amux: it owns the session
// registry, PTY output broadcasting, the event bus, and the
// repo/worktree controller, all reachable over a Unix socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amux-dev/amux/internal/daemon"
	"github.com/amux-dev/amux/internal/daemonconfig"
	"github.com/amux-dev/amux/internal/sshbridge"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "amuxd",
		Short:   "Background daemon supervising amux sessions",
		Version: Version,
		RunE:    runDaemon,
	}
	rootCmd.Flags().String("socket", "", "override the Unix socket path")
	rootCmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := daemonconfig.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if socket, _ := cmd.Flags().GetString("socket"); socket != "" {
		cfg.SocketPath = socket
	}

	logDir, err := daemonconfig.Dir()
	if err != nil {
		return err
	}
	logPath := filepath.Join(logDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	levelFlag, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelFlag)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	d := daemon.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.SSHBridgeAddr != "" {
		l, err := net.Listen("tcp", cfg.SSHBridgeAddr)
		if err != nil {
			return fmt.Errorf("ssh bridge listen: %w", err)
		}
		bridge := sshbridge.New(l, cfg.SocketPath, logger)
		go func() {
			if err := bridge.Serve(ctx); err != nil && ctx.Err() == nil {
				logger.Error("ssh bridge exited", "error", err)
			}
		}()
	}

	if cfg.BrowserBridgeAddr != "" {
		token, err := daemonconfig.LoadBrowserToken()
		if err != nil {
			logger.Warn("loading browser bridge token", "error", err)
		}
		bridge := daemon.NewBrowserBridge(d, token)
		go func() {
			if err := bridge.ListenAndServe(cfg.BrowserBridgeAddr); err != nil {
				logger.Error("browser bridge exited", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("amuxd shutting down")
		cancel()
		_ = d.Close()
	}()

	if err := d.Run(); err != nil {
		logger.Error("amuxd exited", "error", err)
		return err
	}
	return nil
}
