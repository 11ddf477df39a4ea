package store

import (
	"bytes"
	"math"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/processone/fluux-messenger-sub003/types/store"
)

const (
	MessagesCollection     = "messages"
	RoomMessagesCollection = "room-messages"
)

var (
	_ store.MessageStore     = (*RecordCollection[*store.Message])(nil)
	_ store.RoomMessageStore = (*RecordCollection[*store.RoomMessage])(nil)
)

// RecordCollection stores one kind of record together with its archive id,
// timestamp and (scope, timestamp) indexes. Index entries carry the primary
// key as their value.
type RecordCollection[T store.Record] struct {
	db     store.KVDB
	logger *zap.Logger
	name   string
	prefix byte
	codec  codec[T]

	// Room messages are keyed by cache key, so client ids need their own index.
	indexClientID bool

	// Encoded records by primary key. Decoding on every hit keeps callers from
	// sharing mutable records. Entries are only added while holding mu, so a
	// reader racing a write can never reinstate a value the write replaced.
	cache *lru.Cache[string, []byte]

	// Serializes read-modify-write paths so index cleanup sees the record it
	// replaces.
	mu sync.Mutex
}

func NewMessageCollection(
	db store.KVDB,
	logger *zap.Logger,
	cacheSize int,
) *RecordCollection[*store.Message] {
	return newRecordCollection(
		db,
		logger,
		MessagesCollection,
		MESSAGES,
		messageCodec,
		false,
		cacheSize,
	)
}

func NewRoomMessageCollection(
	db store.KVDB,
	logger *zap.Logger,
	cacheSize int,
) *RecordCollection[*store.RoomMessage] {
	return newRecordCollection(
		db,
		logger,
		RoomMessagesCollection,
		ROOM_MESSAGES,
		roomMessageCodec,
		true,
		cacheSize,
	)
}

func newRecordCollection[T store.Record](
	db store.KVDB,
	logger *zap.Logger,
	name string,
	prefix byte,
	c codec[T],
	indexClientID bool,
	cacheSize int,
) *RecordCollection[T] {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		panic(err)
	}

	return &RecordCollection[T]{
		db:            db,
		logger:        logger.With(zap.String("collection", name)),
		name:          name,
		prefix:        prefix,
		codec:         c,
		indexClientID: indexClientID,
		cache:         cache,
	}
}

// Save inserts or replaces a record. Timestamps are truncated to millisecond
// precision in place.
func (c *RecordCollection[T]) Save(record T) (err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "save", start, err) }()

	if err := record.Validate(); err != nil {
		return errors.Wrap(err, "save")
	}
	record.Normalize()

	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.db.NewBatch(false)
	defer batch.Abort()

	key := record.CacheKey()
	value, err := c.stage(batch, key, record, nil)
	if err != nil {
		return errors.Wrap(err, "save")
	}

	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "save")
	}

	c.cache.Add(key, value)
	return nil
}

// SaveMany writes every record in one batch. Either all records are written
// or none are. Like Save, it truncates timestamps in place, so callers must
// not share the records with concurrent readers.
func (c *RecordCollection[T]) SaveMany(records []T) (err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "save_many", start, err) }()

	if len(records) == 0 {
		return nil
	}
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return errors.Wrap(err, "save many")
		}
		record.Normalize()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.db.NewBatch(false)
	defer batch.Abort()

	// The batch is not indexed, so records staged earlier in it are tracked
	// here for index cleanup of repeated keys.
	staged := map[string]T{}
	values := map[string][]byte{}
	for _, record := range records {
		key := record.CacheKey()
		value, err := c.stage(batch, key, record, staged)
		if err != nil {
			return errors.Wrap(err, "save many")
		}
		staged[key] = record
		values[key] = value
	}

	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "save many")
	}

	for key, value := range values {
		c.cache.Add(key, value)
	}
	return nil
}

// stage writes record under key and drops the index entries of whatever it
// replaces.
func (c *RecordCollection[T]) stage(
	batch store.Transaction,
	key string,
	record T,
	staged map[string]T,
) ([]byte, error) {
	previous, ok := staged[key]
	if !ok {
		existing, err := c.get(key, true)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			previous, ok = existing, true
		}
	}

	if ok {
		if err := c.deleteIndexes(batch, key, previous); err != nil {
			return nil, err
		}
	}

	value := c.codec.encode(record)
	if err := batch.Set(recordKey(c.prefix, key), value); err != nil {
		return nil, err
	}
	if err := c.setIndexes(batch, key, record); err != nil {
		return nil, err
	}
	return value, nil
}

func (c *RecordCollection[T]) setIndexes(
	batch store.Transaction,
	key string,
	record T,
) error {
	ref := []byte(key)

	if archiveID := record.ArchiveID(); archiveID != "" {
		if err := batch.Set(
			archiveIndexKey(c.prefix, archiveID, key),
			ref,
		); err != nil {
			return err
		}
	}

	if err := batch.Set(
		timestampIndexKey(c.prefix, record.Time(), key),
		ref,
	); err != nil {
		return err
	}

	if err := batch.Set(
		scopeIndexKey(c.prefix, record.ScopeID(), record.Time(), key),
		ref,
	); err != nil {
		return err
	}

	if c.indexClientID && record.ClientID() != "" {
		if err := batch.Set(
			clientIndexKey(c.prefix, record.ClientID(), key),
			ref,
		); err != nil {
			return err
		}
	}

	return nil
}

func (c *RecordCollection[T]) deleteIndexes(
	batch store.Transaction,
	key string,
	record T,
) error {
	if archiveID := record.ArchiveID(); archiveID != "" {
		if err := batch.Delete(archiveIndexKey(c.prefix, archiveID, key)); err != nil {
			return err
		}
	}

	if err := batch.Delete(
		timestampIndexKey(c.prefix, record.Time(), key),
	); err != nil {
		return err
	}

	if err := batch.Delete(
		scopeIndexKey(c.prefix, record.ScopeID(), record.Time(), key),
	); err != nil {
		return err
	}

	if c.indexClientID && record.ClientID() != "" {
		if err := batch.Delete(
			clientIndexKey(c.prefix, record.ClientID(), key),
		); err != nil {
			return err
		}
	}

	return nil
}

// getRaw loads the encoded record under key. Only callers holding mu may set
// fill.
func (c *RecordCollection[T]) getRaw(key string, fill bool) ([]byte, error) {
	if value, ok := c.cache.Get(key); ok {
		recordCacheHitsTotal.WithLabelValues(c.name).Inc()
		return value, nil
	}

	value, closer, err := c.db.Get(recordKey(c.prefix, key))
	if err != nil {
		return nil, err
	}
	out := slices.Clone(value)
	closer.Close()

	if fill {
		c.cache.Add(key, out)
	}
	return out, nil
}

func (c *RecordCollection[T]) get(key string, fill bool) (T, error) {
	var zero T

	value, err := c.getRaw(key, fill)
	if err != nil {
		return zero, err
	}

	record, err := c.codec.decode(value)
	if err != nil {
		return zero, errors.Wrap(err, "get")
	}
	return record, nil
}

func (c *RecordCollection[T]) GetByID(id string) (record T, err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "get", start, err) }()

	record, err = c.get(id, false)
	if err != nil {
		return record, errors.Wrap(err, "get by id")
	}
	return record, nil
}

func (c *RecordCollection[T]) GetByArchiveID(archiveID string) (
	record T,
	err error,
) {
	start := time.Now()
	defer func() { observeOperation(c.name, "get_by_archive_id", start, err) }()

	if len(archiveID) > store.MaxIndexedLength {
		return record, errors.Wrap(store.ErrNotFound, "get by archive id")
	}
	prefix := archiveIndexPrefix(c.prefix, archiveID)
	keys, err := c.scanKeys(prefix, nextPrefix(prefix), 1, false)
	if err != nil {
		return record, errors.Wrap(err, "get by archive id")
	}

	records, err := c.fetch(keys)
	if err != nil {
		return record, errors.Wrap(err, "get by archive id")
	}
	if len(records) == 0 {
		return record, errors.Wrap(store.ErrNotFound, "get by archive id")
	}
	return records[0], nil
}

// GetByClientID returns every record carrying clientID. Collections keyed by
// client id resolve it as a primary key lookup.
func (c *RecordCollection[T]) GetByClientID(clientID string) (
	records []T,
	err error,
) {
	start := time.Now()
	defer func() { observeOperation(c.name, "get_by_client_id", start, err) }()

	if !c.indexClientID {
		record, err := c.get(clientID, false)
		if errors.Is(err, store.ErrNotFound) {
			return []T{}, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "get by client id")
		}
		return []T{record}, nil
	}

	if len(clientID) > store.MaxIndexedLength {
		return []T{}, nil
	}
	prefix := clientIndexPrefix(c.prefix, clientID)
	keys, err := c.scanKeys(prefix, nextPrefix(prefix), 0, false)
	if err != nil {
		return nil, errors.Wrap(err, "get by client id")
	}

	records, err = c.fetch(keys)
	return records, errors.Wrap(err, "get by client id")
}

// Query returns a window of a scope in ascending timestamp order. Both cursors
// are exclusive and compared at millisecond resolution. With only a Before
// cursor, or with Latest and no cursor, the window is anchored at its newest
// end.
func (c *RecordCollection[T]) Query(
	scope string,
	opts store.QueryOptions,
) (records []T, err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "query", start, err) }()

	if len(scope) > store.MaxIndexedLength {
		return []T{}, nil
	}
	prefix := scopeIndexPrefix(c.prefix, scope)
	lower := prefix
	upper := nextPrefix(prefix)

	if opts.After != nil {
		after := opts.After.UnixMilli()
		if after == math.MaxInt64 {
			return []T{}, nil
		}
		lower = scopeIndexBound(c.prefix, scope, time.UnixMilli(after+1))
	}
	if opts.Before != nil {
		upper = scopeIndexBound(c.prefix, scope, *opts.Before)
	}
	if bytes.Compare(lower, upper) >= 0 {
		return []T{}, nil
	}

	backward := (opts.Before != nil && opts.After == nil) ||
		(opts.Before == nil && opts.After == nil && opts.Latest)

	keys, err := c.scanKeys(lower, upper, opts.Limit, backward)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}

	records, err = c.fetch(keys)
	return records, errors.Wrap(err, "query")
}

// scanKeys collects index entry values (primary keys) in [lower, upper), up to
// limit when positive. Backward scans start at the newest entry; the result is
// always in ascending key order.
func (c *RecordCollection[T]) scanKeys(
	lower []byte,
	upper []byte,
	limit int,
	backward bool,
) ([]string, error) {
	iter, err := c.db.NewIter(lower, upper)
	if err != nil {
		return nil, errors.Wrap(err, "scan keys")
	}
	defer iter.Close()

	keys := []string{}
	full := func() bool { return limit > 0 && len(keys) >= limit }

	if backward {
		for valid := iter.Last(); valid && !full(); valid = iter.Prev() {
			keys = append(keys, string(iter.Value()))
		}
		slices.Reverse(keys)
	} else {
		for valid := iter.First(); valid && !full(); valid = iter.Next() {
			keys = append(keys, string(iter.Value()))
		}
	}

	return keys, nil
}

// fetch resolves primary keys, skipping entries whose record is gone.
func (c *RecordCollection[T]) fetch(keys []string) ([]T, error) {
	records := make([]T, 0, len(keys))
	for _, key := range keys {
		record, err := c.get(key, false)
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Debug("dangling index entry", zap.String("key", key))
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Count walks the (scope, timestamp) index without loading records.
func (c *RecordCollection[T]) Count(scope string) (count int, err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "count", start, err) }()

	if len(scope) > store.MaxIndexedLength {
		return 0, nil
	}
	prefix := scopeIndexPrefix(c.prefix, scope)
	iter, err := c.db.NewIter(prefix, nextPrefix(prefix))
	if err != nil {
		return 0, errors.Wrap(err, "count")
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		count++
	}
	return count, nil
}

// Update applies patch to the record stored under id, keeping the record at
// its current key even when the patch changes the fields its key derives from.
func (c *RecordCollection[T]) Update(id string, patch *store.Patch) (err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "update", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.getRaw(id, true)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "update")
	}

	previous, err := c.codec.decode(raw)
	if err != nil {
		return errors.Wrap(err, "update")
	}
	updated, err := c.codec.decode(raw)
	if err != nil {
		return errors.Wrap(err, "update")
	}
	updated.Apply(patch)

	batch := c.db.NewBatch(false)
	defer batch.Abort()

	if err := c.deleteIndexes(batch, id, previous); err != nil {
		return errors.Wrap(err, "update")
	}
	value := c.codec.encode(updated)
	if err := batch.Set(recordKey(c.prefix, id), value); err != nil {
		return errors.Wrap(err, "update")
	}
	if err := c.setIndexes(batch, id, updated); err != nil {
		return errors.Wrap(err, "update")
	}

	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "update")
	}

	c.cache.Add(id, value)
	return nil
}

func (c *RecordCollection[T]) Delete(id string) (err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "delete", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.get(id, false)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "delete")
	}

	batch := c.db.NewBatch(false)
	defer batch.Abort()

	if err := c.deleteIndexes(batch, id, record); err != nil {
		return errors.Wrap(err, "delete")
	}
	if err := batch.Delete(recordKey(c.prefix, id)); err != nil {
		return errors.Wrap(err, "delete")
	}

	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "delete")
	}

	c.cache.Remove(id)
	return nil
}

// DeleteScope removes every record of a conversation or room in one batch.
func (c *RecordCollection[T]) DeleteScope(scope string) (err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "delete_scope", start, err) }()

	if len(scope) > store.MaxIndexedLength {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := scopeIndexPrefix(c.prefix, scope)
	keys, err := c.scanKeys(prefix, nextPrefix(prefix), 0, false)
	if err != nil {
		return errors.Wrap(err, "delete scope")
	}
	if len(keys) == 0 {
		return nil
	}

	batch := c.db.NewBatch(false)
	defer batch.Abort()

	for _, key := range keys {
		record, err := c.get(key, false)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "delete scope")
		}
		if err := c.deleteIndexes(batch, key, record); err != nil {
			return errors.Wrap(err, "delete scope")
		}
		if err := batch.Delete(recordKey(c.prefix, key)); err != nil {
			return errors.Wrap(err, "delete scope")
		}
	}
	// Catches dangling entries the loop above could not resolve.
	if err := batch.DeleteRange(prefix, nextPrefix(prefix)); err != nil {
		return errors.Wrap(err, "delete scope")
	}

	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "delete scope")
	}

	for _, key := range keys {
		c.cache.Remove(key)
	}
	return nil
}

// Clear drops every record and index entry of the collection.
func (c *RecordCollection[T]) Clear() (err error) {
	start := time.Now()
	defer func() { observeOperation(c.name, "clear", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DeleteRange(
		[]byte{c.prefix},
		[]byte{c.prefix + 1},
	); err != nil {
		return errors.Wrap(err, "clear")
	}

	c.cache.Purge()
	return nil
}

// OldestTimestamp reads only the first entry of the scope's time index.
func (c *RecordCollection[T]) OldestTimestamp(scope string) (
	oldest time.Time,
	ok bool,
	err error,
) {
	start := time.Now()
	defer func() { observeOperation(c.name, "oldest_timestamp", start, err) }()

	if len(scope) > store.MaxIndexedLength {
		return time.Time{}, false, nil
	}
	prefix := scopeIndexPrefix(c.prefix, scope)
	iter, err := c.db.NewIter(prefix, nextPrefix(prefix))
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "oldest timestamp")
	}
	defer iter.Close()

	if !iter.First() {
		return time.Time{}, false, nil
	}

	key := iter.Key()
	if len(key) < len(prefix)+8 {
		return time.Time{}, false, errors.Wrap(
			store.ErrInvalidData,
			"oldest timestamp",
		)
	}
	return decodeTimestamp(key[len(prefix) : len(prefix)+8]), true, nil
}
