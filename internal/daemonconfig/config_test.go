package daemonconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AMUX_CONFIG_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1<<20, cfg.ScrollbackBytes)
	assert.Equal(t, 3, cfg.KillGraceSeconds)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AMUX_CONFIG_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	cfg.ScrollbackBytes = 2048
	require.NoError(t, cfg.Save())

	require.FileExists(t, filepath.Join(dir, "config.toml"))

	reloaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2048, reloaded.ScrollbackBytes)
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AMUX_CONFIG_DIR", dir)
	t.Setenv("AMUX_SCROLLBACK_BYTES", "4096")
	defer os.Unsetenv("AMUX_SCROLLBACK_BYTES")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.ScrollbackBytes)
}
