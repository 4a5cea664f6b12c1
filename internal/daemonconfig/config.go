// Package daemonconfig loads amuxd's configuration from:
//  1. ~/.amux/config.toml (file)
//  2. Environment variables (override file values)
//
// Environment variables:
//   - AMUX_SOCKET_PATH: Unix socket path the daemon listens on
//   - AMUX_REPOS_DIR: base directory for managed repos/worktrees
//   - AMUX_SCROLLBACK_BYTES: per-session scrollback buffer capacity
//   - AMUX_KILL_GRACE_SECONDS: sets KillGraceSeconds; the PTY supervisor
//     does not read it and always waits ptysession.KillGrace (3s)
//     between SIGTERM and SIGKILL
//   - AMUX_CONFIG_DIR: override config directory (for testing)
package daemonconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/zalando/go-keyring"
)

const keyringService = "amux"
const keyringUser = "daemon-token"

// Config holds amuxd's runtime configuration.
type Config struct {
	SocketPath        string `toml:"socket_path"`
	ReposDir          string `toml:"repos_dir"`
	ReviewsBaseDir    string `toml:"reviews_dir"`
	TodosBaseDir      string `toml:"todos_dir"`
	ScrollbackBytes   int    `toml:"scrollback_bytes"`
	KillGraceSeconds  int    `toml:"kill_grace_seconds"`
	BrowserBridgeAddr string `toml:"browser_bridge_addr,omitempty"`
	SSHBridgeAddr     string `toml:"ssh_bridge_addr,omitempty"`
}

// Default returns configuration with sensible defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		homeDir = "."
	}
	return &Config{
		SocketPath:       filepath.Join(homeDir, ".amux", "amux.sock"),
		ReposDir:         filepath.Join(homeDir, ".amux", "repos"),
		ReviewsBaseDir:   filepath.Join(homeDir, ".amux", "reviews"),
		TodosBaseDir:     filepath.Join(homeDir, ".amux", "todos"),
		ScrollbackBytes:  1 << 20,
		KillGraceSeconds: 3,
	}
}

// ReviewsDir returns the base directory line-comment stores are rooted
// under: <dir>/<repo>/<branch>/review.json.
func (c *Config) ReviewsDir() string { return c.ReviewsBaseDir }

// TodosDir returns the base directory to-do stores are rooted under:
// <dir>/<repo>/todos.json.
func (c *Config) TodosDir() string { return c.TodosBaseDir }

// Dir returns the configuration directory, creating it if necessary.
// Respects AMUX_CONFIG_DIR for tests.
func Dir() (string, error) {
	if testDir := os.Getenv("AMUX_CONFIG_DIR"); testDir != "" {
		if err := os.MkdirAll(testDir, 0o700); err != nil {
			return "", fmt.Errorf("daemonconfig: creating config dir: %w", err)
		}
		return testDir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("daemonconfig: determining home dir: %w", err)
	}
	dir := filepath.Join(homeDir, ".amux")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("daemonconfig: creating config dir: %w", err)
	}
	return dir, nil
}

// Path returns the path to config.toml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config.toml and applies environment variable overrides.
// A missing file is not an error; defaults are used instead.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("daemonconfig: decoding %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMUX_SOCKET_PATH"); v != "" {
		c.SocketPath = v
	}
	if v := os.Getenv("AMUX_REPOS_DIR"); v != "" {
		c.ReposDir = v
	}
	if v := os.Getenv("AMUX_SCROLLBACK_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ScrollbackBytes = n
		}
	}
	if v := os.Getenv("AMUX_KILL_GRACE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.KillGraceSeconds = n
		}
	}
}

// Save writes the config back to config.toml.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("daemonconfig: opening %s: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// SaveBrowserToken stores the browser-bridge auth token in the OS
// keyring rather than in plaintext config. If the keyring is unavailable
// it returns the error; there is no config-file fallback.
func SaveBrowserToken(token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("daemonconfig: saving token to keyring: %w", err)
	}
	return nil
}

// LoadBrowserToken retrieves the browser-bridge auth token, returning
// ("", nil) if none has been set.
func LoadBrowserToken() (string, error) {
	token, err := keyring.Get(keyringService, keyringUser)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("daemonconfig: reading token from keyring: %w", err)
	}
	return token, nil
}
