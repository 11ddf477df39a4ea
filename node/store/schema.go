package store

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/processone/fluux-messenger-sub003/types/store"
)

const (
	// Version 1 keyed room messages by client id alone.
	schemaVersionClientKeyedRooms = 1
	// Version 2 keys room messages by RoomMessageKey.
	schemaVersionCacheKeyedRooms = 2

	CurrentSchemaVersion = schemaVersionCacheKeyedRooms
)

func readSchemaVersion(db store.KVDB) (uint32, bool, error) {
	value, closer, err := db.Get(schemaVersionKey())
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "read schema version")
	}
	defer closer.Close()

	if len(value) != 4 {
		return 0, false, errors.Wrap(store.ErrInvalidData, "read schema version")
	}
	return binary.BigEndian.Uint32(value), true, nil
}

func writeSchemaVersion(db store.KVDB, version uint32) error {
	return errors.Wrap(
		db.Set(schemaVersionKey(), binary.BigEndian.AppendUint32(nil, version)),
		"write schema version",
	)
}

// MigrateSchema brings an opened store to CurrentSchemaVersion. Room messages
// written under a different primary key scheme cannot be re-keyed in place, so
// that collection is dropped and left for the archive to refill.
func MigrateSchema(db store.KVDB, logger *zap.Logger) error {
	version, ok, err := readSchemaVersion(db)
	if err != nil {
		return errors.Wrap(err, "migrate schema")
	}

	if !ok {
		empty, err := collectionEmpty(db, ROOM_MESSAGES)
		if err != nil {
			return errors.Wrap(err, "migrate schema")
		}
		if empty {
			return errors.Wrap(
				writeSchemaVersion(db, CurrentSchemaVersion),
				"migrate schema",
			)
		}
		// Data without a version marker predates versioning.
		version = schemaVersionClientKeyedRooms
	}

	if version == CurrentSchemaVersion {
		return nil
	}
	if version > CurrentSchemaVersion {
		return errors.Wrapf(
			store.ErrInvalidData,
			"migrate schema: store version %d is newer than %d",
			version,
			CurrentSchemaVersion,
		)
	}

	if version < schemaVersionCacheKeyedRooms {
		logger.Warn(
			"room message key changed, dropping room message cache",
			zap.Uint32("from_version", version),
			zap.Uint32("to_version", CurrentSchemaVersion),
		)
		if err := db.DeleteRange(
			[]byte{ROOM_MESSAGES},
			[]byte{ROOM_MESSAGES + 1},
		); err != nil {
			return errors.Wrap(err, "migrate schema")
		}
	}

	return errors.Wrap(
		writeSchemaVersion(db, CurrentSchemaVersion),
		"migrate schema",
	)
}

func collectionEmpty(db store.KVDB, prefix byte) (bool, error) {
	iter, err := db.NewIter([]byte{prefix}, []byte{prefix + 1})
	if err != nil {
		return false, err
	}
	defer iter.Close()

	return !iter.First(), nil
}
