package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	DB      *DBConfig     `yaml:"db"`
	Buffer  *BufferConfig `yaml:"buffer"`
	Sync    *SyncConfig   `yaml:"sync"`
	Logger  *LogConfig    `yaml:"logger"`
	LogFile string        `yaml:"logFile"`
}

// WithDefaults returns a copy of the Config with every section populated and
// any missing fields set to their default values.
func (c Config) WithDefaults() Config {
	cpy := c

	db := DBConfig{}
	if cpy.DB != nil {
		db = *cpy.DB
	}
	db = db.WithDefaults()
	cpy.DB = &db

	buffer := BufferConfig{}
	if cpy.Buffer != nil {
		buffer = *cpy.Buffer
	}
	buffer = buffer.WithDefaults()
	cpy.Buffer = &buffer

	sync := SyncConfig{}
	if cpy.Sync != nil {
		sync = *cpy.Sync
	}
	sync = sync.WithDefaults()
	cpy.Sync = &sync

	return cpy
}

// LoadConfig reads the YAML configuration at path. A missing file yields the
// default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "load config")
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	withDefaults := cfg.WithDefaults()
	return &withDefaults, nil
}

// SaveConfig writes the configuration to path as YAML.
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "save config")
	}

	return errors.Wrap(os.WriteFile(path, data, 0o600), "save config")
}
