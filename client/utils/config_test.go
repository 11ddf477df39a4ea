package utils

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDefaultConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "nested", ClientConfigFile)
	cfg, err := CreateDefaultConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultDataPath(), cfg.DB.Path)
	assert.True(t, FileExists(path))

	_, err = CreateDefaultConfig(path, false)
	assert.Error(t, err)

	_, err = CreateDefaultConfig(path, true)
	assert.NoError(t, err)

	loaded, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DB.Path, loaded.DB.Path)
	assert.Equal(t, cfg.Sync.Concurrency, loaded.Sync.Concurrency)
}

func TestLoadClientConfigFillsDataPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDataPath(), cfg.DB.Path)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got := Confirm(strings.NewReader(tt.input), &out, "Proceed?")
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Proceed? [y/N]: ", out.String())
	}
}
