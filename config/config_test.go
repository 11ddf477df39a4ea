package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "pebble", cfg.DB.Engine)
	assert.Equal(t, 100*time.Millisecond, cfg.Buffer.FlushDelay)
	assert.Equal(t, 3, cfg.Sync.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Sync.QueryTimeout)
	assert.Equal(t, 5, cfg.Sync.PageSize)
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  path: /tmp/fluux
  engine: sqlite
buffer:
  flushDelay: 250ms
sync:
  concurrency: 5
  queryTimeout: 10s
logFile: client.log
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/fluux", cfg.DB.Path)
	assert.Equal(t, "sqlite", cfg.DB.Engine)
	assert.Equal(t, "fluux-cache", cfg.DB.NamePrefix)
	assert.Equal(t, 250*time.Millisecond, cfg.Buffer.FlushDelay)
	assert.Equal(t, 5, cfg.Sync.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Sync.QueryTimeout)
	assert.Equal(t, 5, cfg.Sync.PageSize)
	assert.Equal(t, "client.log", cfg.LogFile)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: [unterminated"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Config{Sync: &SyncConfig{Concurrency: 4}}.WithDefaults()
	require.NoError(t, SaveConfig(path, &cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Sync.Concurrency)
}
