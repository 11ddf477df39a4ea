package config

import "time"

const (
	defaultSyncConcurrency  = 3
	defaultSyncQueryTimeout = 30 * time.Second
	defaultSyncPageSize     = 5
)

type SyncConfig struct {
	// Maximum number of archive queries in flight during a sync pass
	Concurrency int `yaml:"concurrency"`
	// Upper bound on a single archive query, including result streaming
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	// Number of messages requested from the newest archive page
	PageSize int `yaml:"pageSize"`
}

// WithDefaults returns a copy of the SyncConfig with any missing fields set to
// their default values.
func (c SyncConfig) WithDefaults() SyncConfig {
	cpy := c
	if cpy.Concurrency <= 0 {
		cpy.Concurrency = defaultSyncConcurrency
	}
	if cpy.QueryTimeout <= 0 {
		cpy.QueryTimeout = defaultSyncQueryTimeout
	}
	if cpy.PageSize <= 0 {
		cpy.PageSize = defaultSyncPageSize
	}
	return cpy
}
