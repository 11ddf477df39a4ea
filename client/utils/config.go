package utils

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/processone/fluux-messenger-sub003/config"
)

const ClientConfigFile = "config.yml"

// GetConfigDir returns the per-user directory holding the configuration and,
// unless configured otherwise, the cache stores.
func GetConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fluux")
	}
	return filepath.Join(os.Getenv("HOME"), ".fluux")
}

// GetConfigPath returns the path to the client configuration file
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), ClientConfigFile)
}

// DefaultDataPath is where stores live when the configuration names no path.
func DefaultDataPath() string {
	return filepath.Join(GetConfigDir(), "cache")
}

// LoadClientConfig loads the configuration at path and fills in the data path.
func LoadClientConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if cfg.DB.Path == "" {
		cfg.DB.Path = DefaultDataPath()
	}
	return cfg, nil
}

// CreateDefaultConfig writes a default configuration to path. An existing
// file is only replaced when overwrite is set.
func CreateDefaultConfig(path string, overwrite bool) (*config.Config, error) {
	if FileExists(path) && !overwrite {
		return nil, errors.Errorf("config already exists at %s", path)
	}

	cfg := config.Config{
		DB: &config.DBConfig{Path: DefaultDataPath()},
	}
	cfg = cfg.WithDefaults()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create config directory")
	}
	if !CanCreateAndWrite(cfg.DB.Path) {
		return nil, errors.Errorf("data directory %s is not writable", cfg.DB.Path)
	}

	if err := config.SaveConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
