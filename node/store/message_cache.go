package store

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/types/archive"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

var _ archive.HistorySink = (*MessageCache)(nil)

// MessageCache is the message history of one account. Storage failures never
// reach the caller: they are logged and the operation yields its zero result.
// When the engine could not be opened at all, every operation is a logged
// no-op. Only malformed input is reported back, as ErrInvalidRecord.
type MessageCache struct {
	account string
	logger  *zap.Logger

	// Guards db against Close while an operation runs. db is nil when storage
	// is unavailable or the cache has been closed.
	mu       sync.RWMutex
	db       store.KVDB
	messages *RecordCollection[*store.Message]
	rooms    *RecordCollection[*store.RoomMessage]
	buffer   *WriteBuffer
}

// OpenMessageCache opens the store of an account. It never fails: an engine
// that cannot be opened yields a cache in degraded mode.
func OpenMessageCache(
	logger *zap.Logger,
	dbConfig *config.DBConfig,
	bufferConfig *config.BufferConfig,
	account string,
) *MessageCache {
	cfg := dbConfig.WithDefaults()
	account = normalizeAccount(account)
	logger = logger.With(zap.String("store", cfg.StoreName(account)))

	c := &MessageCache{
		account: account,
		logger:  logger,
	}

	db, err := openKVDB(logger, &cfg, account)
	if err == nil {
		if err = MigrateSchema(db, logger); err != nil {
			db.Close()
		}
	}
	if err != nil {
		logger.Warn(
			"storage unavailable, message cache disabled",
			zap.Error(err),
		)
		return c
	}

	c.db = db
	c.messages = NewMessageCollection(db, logger, cfg.RecordCacheSize)
	c.rooms = NewRoomMessageCollection(db, logger, cfg.RecordCacheSize)
	c.buffer = NewWriteBuffer(c.rooms, bufferConfig, logger)
	return c
}

func openKVDB(
	logger *zap.Logger,
	cfg *config.DBConfig,
	account string,
) (store.KVDB, error) {
	switch cfg.Engine {
	case config.EnginePebble:
		return NewPebbleDB(logger, cfg, account)
	case config.EngineSQLite:
		return NewSQLiteDB(logger, cfg, account)
	default:
		return nil, errors.Errorf("unknown storage engine %q", cfg.Engine)
	}
}

func normalizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

func (c *MessageCache) Account() string {
	return c.account
}

// Available reports whether the cache is backed by storage.
func (c *MessageCache) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

// acquire takes the read lock and reports whether storage can be used. The
// lock is held in both cases.
func (c *MessageCache) acquire(op string) bool {
	c.mu.RLock()
	if c.db != nil {
		return true
	}
	degradedOperationsTotal.WithLabelValues(op).Inc()
	c.logger.Warn(
		"storage unavailable, skipping operation",
		zap.String("operation", op),
	)
	return false
}

func (c *MessageCache) failed(op string, err error) {
	c.logger.Warn(
		"message cache operation failed",
		zap.String("operation", op),
		zap.Error(err),
	)
}

func (c *MessageCache) SaveMessage(msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	available := c.acquire("save_message")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	if err := c.messages.Save(msg); err != nil {
		c.failed("save_message", err)
	}
	return nil
}

// SaveMessages writes all messages atomically. A failed batch is logged and
// none of its messages are stored.
func (c *MessageCache) SaveMessages(msgs []*store.Message) error {
	for _, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return err
		}
	}

	available := c.acquire("save_messages")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	if err := c.messages.SaveMany(msgs); err != nil {
		c.logger.Warn(
			"message batch failed",
			zap.Int("count", len(msgs)),
			zap.Error(err),
		)
	}
	return nil
}

// GetMessage returns nil when the message is unknown.
func (c *MessageCache) GetMessage(id string) *store.Message {
	available := c.acquire("get_message")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	msg, err := c.messages.GetByID(id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.failed("get_message", err)
		}
		return nil
	}
	return msg
}

func (c *MessageCache) GetMessageByStanzaID(stanzaID string) *store.Message {
	available := c.acquire("get_message_by_stanza_id")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	msg, err := c.messages.GetByArchiveID(stanzaID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.failed("get_message_by_stanza_id", err)
		}
		return nil
	}
	return msg
}

func (c *MessageCache) QueryMessages(
	conversationID string,
	opts store.QueryOptions,
) []*store.Message {
	available := c.acquire("query_messages")
	defer c.mu.RUnlock()
	if !available {
		return []*store.Message{}
	}

	msgs, err := c.messages.Query(conversationID, opts)
	if err != nil {
		c.failed("query_messages", err)
		return []*store.Message{}
	}
	return msgs
}

func (c *MessageCache) CountMessages(conversationID string) int {
	available := c.acquire("count_messages")
	defer c.mu.RUnlock()
	if !available {
		return 0
	}

	count, err := c.messages.Count(conversationID)
	if err != nil {
		c.failed("count_messages", err)
		return 0
	}
	return count
}

func (c *MessageCache) UpdateMessage(id string, patch *store.Patch) {
	available := c.acquire("update_message")
	defer c.mu.RUnlock()
	if !available {
		return
	}

	if err := c.messages.Update(id, patch); err != nil {
		c.failed("update_message", err)
	}
}

func (c *MessageCache) DeleteMessage(id string) {
	available := c.acquire("delete_message")
	defer c.mu.RUnlock()
	if !available {
		return
	}

	if err := c.messages.Delete(id); err != nil {
		c.failed("delete_message", err)
	}
}

func (c *MessageCache) DeleteConversation(conversationID string) {
	available := c.acquire("delete_conversation")
	defer c.mu.RUnlock()
	if !available {
		return
	}

	if err := c.messages.DeleteScope(conversationID); err != nil {
		c.failed("delete_conversation", err)
	}
}

func (c *MessageCache) OldestMessageTimestamp(conversationID string) (
	time.Time,
	bool,
) {
	available := c.acquire("oldest_message_timestamp")
	defer c.mu.RUnlock()
	if !available {
		return time.Time{}, false
	}

	oldest, ok, err := c.messages.OldestTimestamp(conversationID)
	if err != nil {
		c.failed("oldest_message_timestamp", err)
		return time.Time{}, false
	}
	return oldest, ok
}

// SaveRoomMessage writes a room message immediately.
func (c *MessageCache) SaveRoomMessage(msg *store.RoomMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	available := c.acquire("save_room_message")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	if err := c.rooms.Save(msg); err != nil {
		c.failed("save_room_message", err)
	}
	return nil
}

// BufferRoomMessage stages a room message for the next batched write.
func (c *MessageCache) BufferRoomMessage(msg *store.RoomMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	available := c.acquire("buffer_room_message")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	if err := c.buffer.Enqueue(msg); err != nil {
		c.failed("buffer_room_message", err)
	}
	return nil
}

func (c *MessageCache) SaveRoomMessages(msgs []*store.RoomMessage) error {
	for _, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return err
		}
	}

	available := c.acquire("save_room_messages")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	if err := c.rooms.SaveMany(msgs); err != nil {
		c.logger.Warn(
			"room message batch failed",
			zap.Int("count", len(msgs)),
			zap.Error(err),
		)
	}
	return nil
}

// GetRoomMessage looks a room message up by cache key.
func (c *MessageCache) GetRoomMessage(key string) *store.RoomMessage {
	available := c.acquire("get_room_message")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	msg, err := c.rooms.GetByID(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.failed("get_room_message", err)
		}
		return nil
	}
	return msg
}

func (c *MessageCache) GetRoomMessageByStanzaID(
	stanzaID string,
) *store.RoomMessage {
	available := c.acquire("get_room_message_by_stanza_id")
	defer c.mu.RUnlock()
	if !available {
		return nil
	}

	msg, err := c.rooms.GetByArchiveID(stanzaID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.failed("get_room_message_by_stanza_id", err)
		}
		return nil
	}
	return msg
}

func (c *MessageCache) GetRoomMessagesByClientID(
	clientID string,
) []*store.RoomMessage {
	available := c.acquire("get_room_messages_by_client_id")
	defer c.mu.RUnlock()
	if !available {
		return []*store.RoomMessage{}
	}

	msgs, err := c.rooms.GetByClientID(clientID)
	if err != nil {
		c.failed("get_room_messages_by_client_id", err)
		return []*store.RoomMessage{}
	}
	return msgs
}

func (c *MessageCache) QueryRoomMessages(
	roomID string,
	opts store.QueryOptions,
) []*store.RoomMessage {
	available := c.acquire("query_room_messages")
	defer c.mu.RUnlock()
	if !available {
		return []*store.RoomMessage{}
	}

	msgs, err := c.rooms.Query(roomID, opts)
	if err != nil {
		c.failed("query_room_messages", err)
		return []*store.RoomMessage{}
	}
	return msgs
}

func (c *MessageCache) CountRoomMessages(roomID string) int {
	available := c.acquire("count_room_messages")
	defer c.mu.RUnlock()
	if !available {
		return 0
	}

	count, err := c.rooms.Count(roomID)
	if err != nil {
		c.failed("count_room_messages", err)
		return 0
	}
	return count
}

func (c *MessageCache) UpdateRoomMessage(key string, patch *store.Patch) {
	available := c.acquire("update_room_message")
	defer c.mu.RUnlock()
	if !available {
		return
	}

	if err := c.rooms.Update(key, patch); err != nil {
		c.failed("update_room_message", err)
	}
}

func (c *MessageCache) DeleteRoomMessage(key string) {
	available := c.acquire("delete_room_message")
	defer c.mu.RUnlock()
	if !available {
		return
	}

	if err := c.rooms.Delete(key); err != nil {
		c.failed("delete_room_message", err)
	}
}

func (c *MessageCache) DeleteRoom(roomID string) {
	available := c.acquire("delete_room")
	defer c.mu.RUnlock()
	if !available {
		return
	}

	if err := c.rooms.DeleteScope(roomID); err != nil {
		c.failed("delete_room", err)
	}
}

func (c *MessageCache) OldestRoomMessageTimestamp(roomID string) (
	time.Time,
	bool,
) {
	available := c.acquire("oldest_room_message_timestamp")
	defer c.mu.RUnlock()
	if !available {
		return time.Time{}, false
	}

	oldest, ok, err := c.rooms.OldestTimestamp(roomID)
	if err != nil {
		c.failed("oldest_room_message_timestamp", err)
		return time.Time{}, false
	}
	return oldest, ok
}

// FlushPending writes any buffered room messages now.
func (c *MessageCache) FlushPending() {
	available := c.acquire("flush_pending")
	defer c.mu.RUnlock()
	if !available {
		return
	}

	c.buffer.ForceFlush()
}

// ClearAll drains the write buffer and then empties both collections.
func (c *MessageCache) ClearAll() {
	available := c.acquire("clear_all")
	defer c.mu.RUnlock()
	if !available {
		return
	}

	c.buffer.ForceFlush()

	if err := c.messages.Clear(); err != nil {
		c.failed("clear_all", err)
	}
	if err := c.rooms.Clear(); err != nil {
		c.failed("clear_all", err)
	}
	c.logger.Info("message cache cleared")
}

// StoreConversationHistory persists messages recovered from an archive in a
// single batch.
func (c *MessageCache) StoreConversationHistory(
	conversationID string,
	messages []*store.Message,
) {
	valid := make([]*store.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		if msg.Validate() == nil {
			valid = append(valid, msg)
		}
	}
	if len(valid) == 0 {
		return
	}

	c.SaveMessages(valid)
}

// StoreRoomHistory routes recovered room messages through the write buffer.
func (c *MessageCache) StoreRoomHistory(
	roomID string,
	messages []*store.RoomMessage,
) {
	for _, msg := range messages {
		if msg.RoomID == "" {
			msg.RoomID = roomID
		}
		if msg.Validate() != nil {
			continue
		}
		c.BufferRoomMessage(msg)
	}
}

// Close flushes buffered writes and releases the storage engine. Later
// operations behave as if storage were unavailable.
func (c *MessageCache) Close() error {
	c.mu.RLock()
	buffer := c.buffer
	c.mu.RUnlock()

	if buffer != nil {
		buffer.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}

	err := c.db.Close()
	c.db = nil
	return errors.Wrap(err, "close message cache")
}
