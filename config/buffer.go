package config

import "time"

const defaultFlushDelay = 100 * time.Millisecond

type BufferConfig struct {
	// Quiet period after the last enqueued room message before a flush
	FlushDelay time.Duration `yaml:"flushDelay"`
}

// WithDefaults returns a copy of the BufferConfig with any missing fields set
// to their default values.
func (c BufferConfig) WithDefaults() BufferConfig {
	cpy := c
	if cpy.FlushDelay <= 0 {
		cpy.FlushDelay = defaultFlushDelay
	}
	return cpy
}
