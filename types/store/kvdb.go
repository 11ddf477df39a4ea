package store

import "io"

// KVDB is the ordered key-value engine beneath the message cache. Keys are
// compared bytewise; iterators honor an inclusive lower and exclusive upper
// bound.
type KVDB interface {
	// Get returns the value for key, or ErrNotFound. The closer must be closed
	// once the value is no longer referenced.
	Get(key []byte) ([]byte, io.Closer, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewBatch(indexed bool) Transaction
	NewIter(lowerBound []byte, upperBound []byte) (Iterator, error)
	DeleteRange(start, end []byte) error
	Close() error
}

// Transaction is an atomic write batch. Reads through an indexed batch observe
// its own uncommitted writes.
type Transaction interface {
	Get(key []byte) ([]byte, io.Closer, error)
	Set(key []byte, value []byte) error
	Commit() error
	Delete(key []byte) error
	Abort() error
	NewIter(lowerBound []byte, upperBound []byte) (Iterator, error)
	DeleteRange(lowerBound []byte, upperBound []byte) error
}
