package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomMessageKey(t *testing.T) {
	t.Run("archive id wins", func(t *testing.T) {
		m := &RoomMessage{
			Content: Content{ID: "c1", From: "room@muc/alice", StanzaID: "S1"},
			RoomID:  "room@muc",
		}
		assert.Equal(t, "S1", RoomMessageKey(m))
		assert.Equal(t, "S1", m.CacheKey())
	})

	t.Run("client id scoped by room and sender", func(t *testing.T) {
		alice := &RoomMessage{
			Content: Content{ID: "c1", From: "room@muc/alice"},
			RoomID:  "room@muc",
		}
		bob := &RoomMessage{
			Content: Content{ID: "c1", From: "room@muc/bob"},
			RoomID:  "room@muc",
		}
		assert.Equal(t, "room@muc:room@muc/alice:c1", RoomMessageKey(alice))
		assert.NotEqual(t, RoomMessageKey(alice), RoomMessageKey(bob))
	})

	t.Run("nickname used when sender missing", func(t *testing.T) {
		m := &RoomMessage{
			Content: Content{ID: "c1"},
			RoomID:  "room@muc",
			Nick:    "carol",
		}
		assert.Equal(t, "room@muc:carol:c1", RoomMessageKey(m))
	})
}

func TestStableSyntheticID(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	id := StableSyntheticID("alice@example.org", ts, "hello")
	require.True(t, strings.HasPrefix(id, "stable-"))
	parts := strings.Split(strings.TrimPrefix(id, "stable-"), "-")
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.NotEmpty(t, parts[1])

	assert.Equal(t, id, StableSyntheticID("alice@example.org", ts, "hello"))

	assert.NotEqual(t, id, StableSyntheticID("bob@example.org", ts, "hello"))
	assert.NotEqual(t, id, StableSyntheticID("alice@example.org", ts.Add(time.Millisecond), "hello"))
	assert.NotEqual(t, id, StableSyntheticID("alice@example.org", ts, "hello!"))

	// Sub-millisecond differences are not part of the identity.
	assert.Equal(t, id, StableSyntheticID("alice@example.org", ts.Add(time.Microsecond), "hello"))

	prefix := strings.Repeat("x", 100)
	assert.Equal(
		t,
		StableSyntheticID("alice@example.org", ts, prefix+"tail one"),
		StableSyntheticID("alice@example.org", ts, prefix+"tail two"),
	)
	assert.NotEqual(
		t,
		StableSyntheticID("alice@example.org", ts, prefix[:99]+"a"),
		StableSyntheticID("alice@example.org", ts, prefix[:99]+"b"),
	)
}

func TestContentApply(t *testing.T) {
	ts := time.UnixMilli(1000)
	c := Content{ID: "m1", Body: "hi", Timestamp: ts}

	body := "hi, corrected"
	edited := true
	original := "hi"
	retracted := time.Unix(5, 123456789)
	c.Apply(&Patch{Body: &body, Edited: &edited, OriginalBody: &original, RetractedAt: &retracted})

	assert.Equal(t, "hi, corrected", c.Body)
	assert.True(t, c.Edited)
	assert.Equal(t, "hi", c.OriginalBody)
	require.NotNil(t, c.RetractedAt)
	assert.Equal(t, int64(5123), c.RetractedAt.UnixMilli())
	assert.True(t, c.Timestamp.Equal(ts))

	c.Apply(nil)
	assert.Equal(t, "hi, corrected", c.Body)
}

func TestValidate(t *testing.T) {
	var nilMessage *Message
	assert.ErrorIs(t, nilMessage.Validate(), ErrInvalidRecord)
	assert.ErrorIs(t, (&Message{Content: Content{ID: "m1"}}).Validate(), ErrInvalidRecord)
	assert.NoError(t, (&Message{Content: Content{ID: "m1"}, ConversationID: "bob@example.org"}).Validate())

	assert.ErrorIs(t, (&RoomMessage{Content: Content{ID: "m1"}}).Validate(), ErrInvalidRecord)
	assert.NoError(t, (&RoomMessage{Content: Content{StanzaID: "S1"}, RoomID: "room@muc"}).Validate())
}

func TestValidateRejectsOverlongIndexedFields(t *testing.T) {
	long := strings.Repeat("a", MaxIndexedLength+1)
	fits := strings.Repeat("a", MaxIndexedLength)

	tests := []struct {
		name   string
		record Record
		valid  bool
	}{
		{"conversation at limit", &Message{Content: Content{ID: "m1"}, ConversationID: fits}, true},
		{"conversation over limit", &Message{Content: Content{ID: "m1"}, ConversationID: long}, false},
		{"message id over limit", &Message{Content: Content{ID: long}, ConversationID: "bob"}, false},
		{"message stanza id over limit", &Message{Content: Content{ID: "m1", StanzaID: long}, ConversationID: "bob"}, false},
		{"room over limit", &RoomMessage{Content: Content{ID: "m1"}, RoomID: long}, false},
		{"room stanza id over limit", &RoomMessage{Content: Content{StanzaID: long}, RoomID: "room@muc"}, false},
		{"room client id over limit", &RoomMessage{Content: Content{ID: long}, RoomID: "room@muc"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRecord)
			}
		})
	}
}

func TestCloneSharesNoMemory(t *testing.T) {
	retracted := time.UnixMilli(2000)
	original := &RoomMessage{
		Content: Content{
			ID:          "m1",
			Body:        "hello",
			Timestamp:   time.UnixMilli(1000),
			RetractedAt: &retracted,
			ReplyTo:     &ReplyRef{ID: "m0"},
		},
		RoomID: "room@muc",
		Nick:   "alice",
	}

	cpy := original.Clone()
	assert.Equal(t, original, cpy)

	cpy.Body = "changed"
	*cpy.RetractedAt = time.UnixMilli(3000)
	cpy.ReplyTo.ID = "other"

	assert.Equal(t, "hello", original.Body)
	assert.True(t, original.RetractedAt.Equal(time.UnixMilli(2000)))
	assert.Equal(t, "m0", original.ReplyTo.ID)

	msg := &Message{Content: Content{ID: "d1"}, ConversationID: "bob"}
	assert.Equal(t, msg, msg.Clone())
	assert.NotSame(t, msg, msg.Clone())
}
