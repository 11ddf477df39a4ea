package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/processone/fluux-messenger-sub003/config"
)

// CacheManager owns the message cache of the active account. At most one
// account store is open at a time; switching drains and closes the previous
// one before the next is opened, so writes never cross accounts.
type CacheManager struct {
	logger       *zap.Logger
	dbConfig     *config.DBConfig
	bufferConfig *config.BufferConfig

	mu      sync.Mutex
	current *MessageCache
}

func NewCacheManager(cfg *config.Config, logger *zap.Logger) *CacheManager {
	withDefaults := cfg.WithDefaults()
	return &CacheManager{
		logger:       logger,
		dbConfig:     withDefaults.DB,
		bufferConfig: withDefaults.Buffer,
	}
}

// SwitchAccount makes account the active scope and returns its cache.
// Switching to the already active account returns the open cache.
func (m *CacheManager) SwitchAccount(account string) *MessageCache {
	m.mu.Lock()
	defer m.mu.Unlock()

	account = normalizeAccount(account)
	if m.current != nil && m.current.Account() == account {
		return m.current
	}

	if m.current != nil {
		m.closeCurrent()
	}

	m.logger.Info("opening message cache", zap.String("account", account))
	m.current = OpenMessageCache(
		m.logger,
		m.dbConfig,
		m.bufferConfig,
		account,
	)
	return m.current
}

// Current returns the active cache, opening the account-independent store if
// no account has been selected yet.
func (m *CacheManager) Current() *MessageCache {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current != nil {
		return current
	}
	return m.SwitchAccount("")
}

// Logout closes the active cache, clearing it first when requested.
func (m *CacheManager) Logout(clear bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	if clear {
		m.current.ClearAll()
	}
	m.closeCurrent()
}

func (m *CacheManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}

func (m *CacheManager) closeCurrent() {
	previous := m.current
	m.current = nil

	previous.FlushPending()
	if err := previous.Close(); err != nil {
		m.logger.Warn(
			"failed to close message cache",
			zap.String("account", previous.Account()),
			zap.Error(err),
		)
	}
}
