package store

import "time"

// QueryOptions selects a window of a conversation or room. Results are always
// returned in ascending timestamp order.
type QueryOptions struct {
	// Maximum number of records, zero or negative means unlimited
	Limit int
	// Exclusive upper bound
	Before *time.Time
	// Exclusive lower bound
	After *time.Time
	// With no cursor, take the newest records instead of the oldest
	Latest bool
}

// Collection is one indexed record collection. Methods that take an id
// address the collection's primary identity.
type Collection[T Record] interface {
	// Save inserts or replaces a record.
	Save(record T) error

	// SaveMany writes all records in a single atomic batch.
	SaveMany(records []T) error

	// GetByID returns ErrNotFound if no record has the id.
	GetByID(id string) (T, error)

	// GetByArchiveID returns the first record carrying the archive id, or
	// ErrNotFound.
	GetByArchiveID(archiveID string) (T, error)

	Query(scope string, opts QueryOptions) ([]T, error)

	Count(scope string) (int, error)

	// Update applies a patch to an existing record. Absent records are left
	// absent.
	Update(id string, patch *Patch) error

	Delete(id string) error

	DeleteScope(scope string) error

	Clear() error

	// OldestTimestamp reports the earliest timestamp in a scope, false if the
	// scope is empty.
	OldestTimestamp(scope string) (time.Time, bool, error)
}

type MessageStore interface {
	Collection[*Message]
}

type RoomMessageStore interface {
	Collection[*RoomMessage]

	// GetByClientID returns every record carrying the client id.
	GetByClientID(clientID string) ([]*RoomMessage, error)
}
