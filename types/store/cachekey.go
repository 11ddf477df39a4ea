package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	syntheticIDPrefix   = "stable-"
	syntheticBodyPrefix = 100
	keySeparator        = ":"
)

// RoomMessageKey is the identity of a room message in the local cache. The
// server-assigned archive id is globally unique and wins when present;
// otherwise the key is scoped by room and sender so that two occupants
// reusing a client id never collide.
func RoomMessageKey(m *RoomMessage) string {
	if m.StanzaID != "" {
		return m.StanzaID
	}

	sender := m.From
	if sender == "" {
		sender = m.Nick
	}

	return m.RoomID + keySeparator + sender + keySeparator + m.ID
}

// StableSyntheticID derives a deterministic id for a message that arrived
// without one. Only the first 100 characters of the body take part, so
// messages from the same sender at the same millisecond that differ only past
// that prefix share an id.
func StableSyntheticID(sender string, timestamp time.Time, body string) string {
	if r := []rune(body); len(r) > syntheticBodyPrefix {
		body = string(r[:syntheticBodyPrefix])
	}

	content := sender + "|" + strconv.FormatInt(timestamp.UnixMilli(), 10) +
		"|" + body

	first := xxhash.Sum64String(content)
	second := xxhash.Sum64String(content + content)

	var b strings.Builder
	b.Grow(len(syntheticIDPrefix) + 33)
	b.WriteString(syntheticIDPrefix)
	b.WriteString(strconv.FormatUint(first, 16))
	b.WriteByte('-')
	b.WriteString(strconv.FormatUint(second, 16))
	return b.String()
}
