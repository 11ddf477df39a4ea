package store

import (
	"io"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

type PebbleDB struct {
	path string
	db   *pebble.DB
}

// NewPebbleDB opens the Pebble store for an account, creating it if needed.
func NewPebbleDB(
	logger *zap.Logger,
	cfg *config.DBConfig,
	account string,
) (*PebbleDB, error) {
	path := cfg.StorePath(account)
	opts := &pebble.Options{}

	if cfg.InMemoryDONOTUSE {
		opts.FS = vfs.NewMem()
	} else if _, err := os.Stat(path); err == nil {
		logger.Info("store found", zap.String("path", path))
	} else {
		logger.Warn("store not found, creating", zap.String("path", path))
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, errors.Wrap(err, "new pebble db")
		}
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "new pebble db")
	}

	return &PebbleDB{path: path, db: db}, nil
}

func (p *PebbleDB) Get(key []byte) ([]byte, io.Closer, error) {
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil, store.ErrNotFound
	}
	return value, closer, err
}

func (p *PebbleDB) Set(key, value []byte) error {
	return p.db.Set(key, value, &pebble.WriteOptions{Sync: true})
}

func (p *PebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, &pebble.WriteOptions{Sync: true})
}

func (p *PebbleDB) NewBatch(indexed bool) store.Transaction {
	if indexed {
		return &PebbleTransaction{
			b: p.db.NewIndexedBatch(),
		}
	} else {
		return &PebbleTransaction{
			b: p.db.NewBatch(),
		}
	}
}

func (p *PebbleDB) NewIter(lowerBound []byte, upperBound []byte) (
	store.Iterator,
	error,
) {
	return p.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
}

func (p *PebbleDB) Close() error {
	return p.db.Close()
}

func (p *PebbleDB) DeleteRange(start, end []byte) error {
	return p.db.DeleteRange(start, end, &pebble.WriteOptions{Sync: true})
}

var _ store.KVDB = (*PebbleDB)(nil)

type PebbleTransaction struct {
	b *pebble.Batch
}

func (t *PebbleTransaction) Get(key []byte) ([]byte, io.Closer, error) {
	value, closer, err := t.b.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil, store.ErrNotFound
	}
	return value, closer, err
}

func (t *PebbleTransaction) Set(key []byte, value []byte) error {
	return t.b.Set(key, value, &pebble.WriteOptions{Sync: true})
}

func (t *PebbleTransaction) Commit() error {
	return t.b.Commit(&pebble.WriteOptions{Sync: true})
}

func (t *PebbleTransaction) Delete(key []byte) error {
	return t.b.Delete(key, &pebble.WriteOptions{Sync: true})
}

func (t *PebbleTransaction) Abort() error {
	return t.b.Close()
}

func (t *PebbleTransaction) NewIter(lowerBound []byte, upperBound []byte) (
	store.Iterator,
	error,
) {
	return t.b.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
}

func (t *PebbleTransaction) DeleteRange(
	lowerBound []byte,
	upperBound []byte,
) error {
	return t.b.DeleteRange(
		lowerBound,
		upperBound,
		&pebble.WriteOptions{Sync: true},
	)
}

var _ store.Transaction = (*PebbleTransaction)(nil)
