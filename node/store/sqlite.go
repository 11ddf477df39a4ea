package store

import (
	"bytes"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB NOT NULL
) WITHOUT ROWID`

// SQLiteDB is an ordered key-value store kept in a single SQLite table. BLOB
// keys compare bytewise, which gives the same ordering as Pebble.
type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(
	logger *zap.Logger,
	cfg *config.DBConfig,
	account string,
) (*SQLiteDB, error) {
	dsn := ":memory:"
	if !cfg.InMemoryDONOTUSE {
		path := cfg.StorePath(account) + ".sqlite"
		if _, err := os.Stat(path); err == nil {
			logger.Info("store found", zap.String("path", path))
		} else {
			logger.Warn("store not found, creating", zap.String("path", path))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, errors.Wrap(err, "new sqlite db")
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "new sqlite db")
	}
	// A single connection keeps an in-memory database alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "new sqlite db")
	}

	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Get(key []byte) ([]byte, io.Closer, error) {
	var value []byte
	err := s.db.QueryRow("SELECT v FROM kv WHERE k = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, store.ErrNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "get")
	}
	return value, io.NopCloser(nil), nil
}

func (s *SQLiteDB) Set(key, value []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO kv (k, v) VALUES (?, ?) "+
			"ON CONFLICT(k) DO UPDATE SET v = excluded.v",
		key,
		value,
	)
	return errors.Wrap(err, "set")
}

func (s *SQLiteDB) Delete(key []byte) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE k = ?", key)
	return errors.Wrap(err, "delete")
}

func (s *SQLiteDB) DeleteRange(start, end []byte) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE k >= ? AND k < ?", start, end)
	return errors.Wrap(err, "delete range")
}

func (s *SQLiteDB) NewBatch(indexed bool) store.Transaction {
	return &SQLiteTransaction{db: s}
}

func (s *SQLiteDB) NewIter(lowerBound []byte, upperBound []byte) (
	store.Iterator,
	error,
) {
	entries, err := s.scan(lowerBound, upperBound)
	if err != nil {
		return nil, errors.Wrap(err, "new iter")
	}
	return &sliceIterator{entries: entries, idx: -1}, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) scan(lowerBound, upperBound []byte) ([]kvEntry, error) {
	query := "SELECT k, v FROM kv"
	args := []any{}
	switch {
	case lowerBound != nil && upperBound != nil:
		query += " WHERE k >= ? AND k < ?"
		args = append(args, lowerBound, upperBound)
	case lowerBound != nil:
		query += " WHERE k >= ?"
		args = append(args, lowerBound)
	case upperBound != nil:
		query += " WHERE k < ?"
		args = append(args, upperBound)
	}
	query += " ORDER BY k"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []kvEntry{}
	for rows.Next() {
		var e kvEntry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ store.KVDB = (*SQLiteDB)(nil)

type sqliteOpKind int

const (
	sqliteOpSet sqliteOpKind = iota
	sqliteOpDelete
	sqliteOpDeleteRange
)

type sqliteOp struct {
	kind  sqliteOpKind
	key   []byte
	value []byte
	end   []byte
}

// SQLiteTransaction buffers writes and applies them in one SQL transaction on
// commit. Reads overlay the buffered writes on the committed state.
type SQLiteTransaction struct {
	db  *SQLiteDB
	ops []sqliteOp
}

func (t *SQLiteTransaction) Get(key []byte) ([]byte, io.Closer, error) {
	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		switch op.kind {
		case sqliteOpSet:
			if bytes.Equal(op.key, key) {
				return op.value, io.NopCloser(nil), nil
			}
		case sqliteOpDelete:
			if bytes.Equal(op.key, key) {
				return nil, nil, store.ErrNotFound
			}
		case sqliteOpDeleteRange:
			if bytes.Compare(key, op.key) >= 0 && bytes.Compare(key, op.end) < 0 {
				return nil, nil, store.ErrNotFound
			}
		}
	}
	return t.db.Get(key)
}

func (t *SQLiteTransaction) Set(key []byte, value []byte) error {
	t.ops = append(t.ops, sqliteOp{
		kind:  sqliteOpSet,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	return nil
}

func (t *SQLiteTransaction) Delete(key []byte) error {
	t.ops = append(t.ops, sqliteOp{
		kind: sqliteOpDelete,
		key:  append([]byte(nil), key...),
	})
	return nil
}

func (t *SQLiteTransaction) DeleteRange(
	lowerBound []byte,
	upperBound []byte,
) error {
	t.ops = append(t.ops, sqliteOp{
		kind: sqliteOpDeleteRange,
		key:  append([]byte(nil), lowerBound...),
		end:  append([]byte(nil), upperBound...),
	})
	return nil
}

func (t *SQLiteTransaction) Commit() error {
	if len(t.ops) == 0 {
		return nil
	}

	tx, err := t.db.db.Begin()
	if err != nil {
		return errors.Wrap(err, "commit")
	}

	for _, op := range t.ops {
		switch op.kind {
		case sqliteOpSet:
			_, err = tx.Exec(
				"INSERT INTO kv (k, v) VALUES (?, ?) "+
					"ON CONFLICT(k) DO UPDATE SET v = excluded.v",
				op.key,
				op.value,
			)
		case sqliteOpDelete:
			_, err = tx.Exec("DELETE FROM kv WHERE k = ?", op.key)
		case sqliteOpDeleteRange:
			_, err = tx.Exec(
				"DELETE FROM kv WHERE k >= ? AND k < ?",
				op.key,
				op.end,
			)
		}
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, "commit")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}

	t.ops = nil
	return nil
}

func (t *SQLiteTransaction) Abort() error {
	t.ops = nil
	return nil
}

func (t *SQLiteTransaction) NewIter(lowerBound []byte, upperBound []byte) (
	store.Iterator,
	error,
) {
	entries, err := t.db.scan(lowerBound, upperBound)
	if err != nil {
		return nil, errors.Wrap(err, "new iter")
	}

	merged := map[string][]byte{}
	for _, e := range entries {
		merged[string(e.key)] = e.value
	}
	inBounds := func(k []byte) bool {
		return (lowerBound == nil || bytes.Compare(k, lowerBound) >= 0) &&
			(upperBound == nil || bytes.Compare(k, upperBound) < 0)
	}
	for _, op := range t.ops {
		switch op.kind {
		case sqliteOpSet:
			if inBounds(op.key) {
				merged[string(op.key)] = op.value
			}
		case sqliteOpDelete:
			delete(merged, string(op.key))
		case sqliteOpDeleteRange:
			for k := range merged {
				kb := []byte(k)
				if bytes.Compare(kb, op.key) >= 0 && bytes.Compare(kb, op.end) < 0 {
					delete(merged, k)
				}
			}
		}
	}

	out := make([]kvEntry, 0, len(merged))
	for k, v := range merged {
		out = append(out, kvEntry{key: []byte(k), value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].key, out[j].key) < 0
	})

	return &sliceIterator{entries: out, idx: -1}, nil
}

var _ store.Transaction = (*SQLiteTransaction)(nil)

type kvEntry struct {
	key   []byte
	value []byte
}

// sliceIterator walks a materialized, sorted range.
type sliceIterator struct {
	entries []kvEntry
	idx     int
}

func (i *sliceIterator) Key() []byte { return i.entries[i.idx].key }

func (i *sliceIterator) Value() []byte { return i.entries[i.idx].value }

func (i *sliceIterator) Valid() bool {
	return i.idx >= 0 && i.idx < len(i.entries)
}

func (i *sliceIterator) First() bool {
	i.idx = 0
	return i.Valid()
}

func (i *sliceIterator) Last() bool {
	i.idx = len(i.entries) - 1
	return i.Valid()
}

func (i *sliceIterator) Next() bool {
	if i.idx < len(i.entries) {
		i.idx++
	}
	return i.Valid()
}

func (i *sliceIterator) Prev() bool {
	if i.idx >= 0 {
		i.idx--
	}
	return i.Valid()
}

func (i *sliceIterator) SeekGE(key []byte) bool {
	i.idx = sort.Search(len(i.entries), func(n int) bool {
		return bytes.Compare(i.entries[n].key, key) >= 0
	})
	return i.Valid()
}

func (i *sliceIterator) SeekLT(key []byte) bool {
	i.idx = sort.Search(len(i.entries), func(n int) bool {
		return bytes.Compare(i.entries[n].key, key) >= 0
	}) - 1
	return i.Valid()
}

func (i *sliceIterator) Close() error {
	i.entries = nil
	return nil
}

var _ store.Iterator = (*sliceIterator)(nil)
