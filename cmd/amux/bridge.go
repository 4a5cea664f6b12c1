package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/amux-dev/amux/internal/daemonconfig"
	"github.com/amux-dev/amux/internal/qr"
)

// newBridgeCmd groups the commands for the browser-bridge connection:
// generating a fresh auth token and sharing the resulting URL as a
// terminal QR code or via the system clipboard.
func newBridgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Share the browser-bridge connection URL",
	}
	cmd.AddCommand(newBridgeTokenCmd(), newBridgeQRCmd(), newBridgeCopyCmd())
	return cmd
}

func newBridgeTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Generate and store a fresh browser-bridge auth token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := newToken()
			if err != nil {
				return err
			}
			if err := daemonconfig.SaveBrowserToken(token); err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func newBridgeQRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qr",
		Short: "Render the browser-bridge connection URL as a terminal QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := bridgeURL()
			if err != nil {
				return err
			}
			for _, line := range qr.GenerateLines(url, 80, 40) {
				fmt.Println(line)
			}
			fmt.Println(url)
			return nil
		},
	}
}

func newBridgeCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy",
		Short: "Copy the browser-bridge connection URL to the clipboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := bridgeURL()
			if err != nil {
				return err
			}
			if err := clipboard.WriteAll(url); err != nil {
				return fmt.Errorf("amux: copying to clipboard: %w", err)
			}
			fmt.Fprintln(os.Stderr, "copied:", url)
			return nil
		},
	}
}

func bridgeURL() (string, error) {
	cfg, err := daemonconfig.Load()
	if err != nil {
		return "", err
	}
	if cfg.BrowserBridgeAddr == "" {
		return "", fmt.Errorf("amux: no browser_bridge_addr configured in ~/.amux/config.toml")
	}
	token, err := daemonconfig.LoadBrowserToken()
	if err != nil {
		return "", err
	}
	addr := strings.TrimPrefix(cfg.BrowserBridgeAddr, ":")
	return fmt.Sprintf("http://%s/attach?token=%s", addr, token), nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
