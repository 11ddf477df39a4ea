package config

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	EnginePebble = "pebble"
	EngineSQLite = "sqlite"

	defaultNamePrefix      = "fluux-cache"
	defaultRecordCacheSize = 1024
)

type DBConfig struct {
	// Base directory under which one store per account is created
	Path string `yaml:"path"`
	// Storage engine backing the cache, "pebble" or "sqlite"
	Engine string `yaml:"engine"`
	// Prefix of every store name, the account-independent store uses it as is
	NamePrefix string `yaml:"namePrefix"`
	// Number of decoded records kept in memory per collection
	RecordCacheSize int `yaml:"recordCacheSize"`

	// Test-only parameters, do not enable outside of tests
	InMemoryDONOTUSE bool
}

// WithDefaults returns a copy of the DBConfig with any missing fields set to
// their default values.
func (c DBConfig) WithDefaults() DBConfig {
	cpy := c
	if cpy.Engine == "" {
		cpy.Engine = EnginePebble
	}
	if cpy.NamePrefix == "" {
		cpy.NamePrefix = defaultNamePrefix
	}
	if cpy.RecordCacheSize == 0 {
		cpy.RecordCacheSize = defaultRecordCacheSize
	}
	return cpy
}

// StoreName derives the store instance name for an account. The same account
// always maps to the same name, an empty account maps to the bare prefix.
func (c DBConfig) StoreName(account string) string {
	prefix := c.NamePrefix
	if prefix == "" {
		prefix = defaultNamePrefix
	}

	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return prefix
	}

	sum := sha256.Sum256([]byte(account))
	return prefix + "-" + sanitizeName(account) + "-" +
		hex.EncodeToString(sum[:4])
}

// StorePath is the on-disk location of the store for an account.
func (c DBConfig) StorePath(account string) string {
	return filepath.Join(c.Path, c.StoreName(account))
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
