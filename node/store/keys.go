package store

import (
	"encoding/binary"
	"math"
	"time"
)

// Collection prefixes
const (
	MESSAGES      = 0x00
	ROOM_MESSAGES = 0x01
	SCHEMA        = 0xFF
)

// Per-collection key spaces
const (
	RECORD_BY_KEY        = 0x00
	RECORD_BY_ARCHIVE_ID = 0x01
	RECORD_BY_TIMESTAMP  = 0x02
	RECORD_BY_SCOPE_TIME = 0x03
	RECORD_BY_CLIENT_ID  = 0x04
)

const SCHEMA_VERSION = 0x00

// encodeTimestamp maps milliseconds since the epoch onto eight big-endian
// bytes with the sign bit flipped, so byte order matches time order for
// instants before 1970 as well.
func encodeTimestamp(t time.Time) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(t.UnixMilli())^(1<<63))
}

func decodeTimestamp(b []byte) time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(b) ^ (1 << 63)))
}

// appendSegment appends a length-prefixed segment so that no segment is a
// prefix of another within the same key space. Records longer than
// store.MaxIndexedLength are rejected by Validate before reaching here.
func appendSegment(key []byte, segment string) []byte {
	if len(segment) > math.MaxUint16 {
		panic("store: index segment exceeds maximum length")
	}
	key = binary.BigEndian.AppendUint16(key, uint16(len(segment)))
	return append(key, segment...)
}

// recordKey: [collection][RECORD_BY_KEY] + key
func recordKey(collection byte, key string) []byte {
	return append([]byte{collection, RECORD_BY_KEY}, key...)
}

// archiveIndexPrefix: [collection][RECORD_BY_ARCHIVE_ID] + len + archiveID
func archiveIndexPrefix(collection byte, archiveID string) []byte {
	return appendSegment([]byte{collection, RECORD_BY_ARCHIVE_ID}, archiveID)
}

// archiveIndexKey: archiveIndexPrefix + key
func archiveIndexKey(collection byte, archiveID, key string) []byte {
	return append(archiveIndexPrefix(collection, archiveID), key...)
}

// timestampIndexKey: [collection][RECORD_BY_TIMESTAMP] + ts + key
func timestampIndexKey(collection byte, t time.Time, key string) []byte {
	out := append([]byte{collection, RECORD_BY_TIMESTAMP}, encodeTimestamp(t)...)
	return append(out, key...)
}

// scopeIndexPrefix: [collection][RECORD_BY_SCOPE_TIME] + len + scope
func scopeIndexPrefix(collection byte, scope string) []byte {
	return appendSegment([]byte{collection, RECORD_BY_SCOPE_TIME}, scope)
}

// scopeIndexBound: scopeIndexPrefix + ts, the first possible key at t
func scopeIndexBound(collection byte, scope string, t time.Time) []byte {
	return append(scopeIndexPrefix(collection, scope), encodeTimestamp(t)...)
}

// scopeIndexKey: scopeIndexPrefix + ts + key
func scopeIndexKey(
	collection byte,
	scope string,
	t time.Time,
	key string,
) []byte {
	return append(scopeIndexBound(collection, scope, t), key...)
}

// clientIndexPrefix: [collection][RECORD_BY_CLIENT_ID] + len + clientID
func clientIndexPrefix(collection byte, clientID string) []byte {
	return appendSegment([]byte{collection, RECORD_BY_CLIENT_ID}, clientID)
}

func clientIndexKey(collection byte, clientID, key string) []byte {
	return append(clientIndexPrefix(collection, clientID), key...)
}

func schemaVersionKey() []byte {
	return []byte{SCHEMA, SCHEMA_VERSION}
}

// nextPrefix returns the smallest key greater than every key starting with
// prefix, for use as an exclusive upper bound.
func nextPrefix(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	// All 0xFF never occurs: every prefix starts with a collection byte.
	return append(out, 0x00)
}
