package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

func openTestCache(t *testing.T, flushDelay time.Duration) *MessageCache {
	cache := OpenMessageCache(
		zap.NewNop(),
		&config.DBConfig{Path: ".test/store", InMemoryDONOTUSE: true},
		&config.BufferConfig{FlushDelay: flushDelay},
		"alice@example.org",
	)
	require.True(t, cache.Available())
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestMessageCache_DegradedWhenStorageUnavailable(t *testing.T) {
	// A regular file where the store directory should go.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte{}, 0o600))

	core, logs := observer.New(zap.WarnLevel)
	cache := OpenMessageCache(
		zap.New(core),
		&config.DBConfig{Path: blocker},
		nil,
		"alice@example.org",
	)
	defer cache.Close()

	assert.False(t, cache.Available())
	assert.Equal(t, 1, logs.FilterMessage("storage unavailable, message cache disabled").Len())

	assert.NoError(t, cache.SaveMessage(directMessage("m1", "bob@example.org", 10)))
	assert.NoError(t, cache.BufferRoomMessage(roomMessage("c1", "room@muc", "bob", 10)))
	assert.Nil(t, cache.GetMessage("m1"))
	assert.Empty(t, cache.QueryMessages("bob@example.org", store.QueryOptions{}))
	assert.Zero(t, cache.CountRoomMessages("room@muc"))
	_, ok := cache.OldestMessageTimestamp("bob@example.org")
	assert.False(t, ok)
	cache.ClearAll()

	assert.GreaterOrEqual(
		t,
		logs.FilterMessage("storage unavailable, skipping operation").Len(),
		6,
	)

	// Contract violations are still reported.
	assert.ErrorIs(t, cache.SaveMessage(&store.Message{}), store.ErrInvalidRecord)
}

func TestMessageCache_UnknownEngine(t *testing.T) {
	cache := OpenMessageCache(
		zap.NewNop(),
		&config.DBConfig{Engine: "leveldb", InMemoryDONOTUSE: true},
		nil,
		"",
	)
	defer cache.Close()

	assert.False(t, cache.Available())
}

func TestMessageCache_DirectMessages(t *testing.T) {
	cache := openTestCache(t, time.Hour)

	for _, at := range []int64{10, 20, 30, 40, 50} {
		require.NoError(t, cache.SaveMessage(
			directMessage(fmt.Sprintf("m%d", at/10), "bob@example.org", at),
		))
	}

	latest := cache.QueryMessages(
		"bob@example.org",
		store.QueryOptions{Limit: 2, Latest: true},
	)
	assert.Equal(t, []string{"m4", "m5"}, ids(latest))
	assert.Equal(t, 5, cache.CountMessages("bob@example.org"))

	cache.UpdateMessage("m1", &store.Patch{StanzaID: ptr("S1")})
	require.NotNil(t, cache.GetMessageByStanzaID("S1"))

	oldest, ok := cache.OldestMessageTimestamp("bob@example.org")
	require.True(t, ok)
	assert.Equal(t, int64(10), oldest.UnixMilli())

	cache.DeleteMessage("m1")
	assert.Nil(t, cache.GetMessage("m1"))

	cache.DeleteConversation("bob@example.org")
	assert.Zero(t, cache.CountMessages("bob@example.org"))
}

func TestMessageCache_ClearAllDrainsBufferFirst(t *testing.T) {
	cache := openTestCache(t, time.Hour)

	require.NoError(t, cache.SaveRoomMessage(roomMessage("c1", "room@muc", "alice", 10)))
	require.NoError(t, cache.BufferRoomMessage(roomMessage("c2", "room@muc", "bob", 20)))
	require.NoError(t, cache.SaveMessage(directMessage("m1", "bob@example.org", 10)))
	assert.Equal(t, 1, cache.buffer.Pending())

	cache.ClearAll()

	assert.Zero(t, cache.buffer.Pending())
	assert.Zero(t, cache.CountRoomMessages("room@muc"))
	assert.Zero(t, cache.CountMessages("bob@example.org"))

	cache.FlushPending()
	assert.Zero(t, cache.CountRoomMessages("room@muc"))
}

func TestMessageCache_BufferedRoomMessages(t *testing.T) {
	cache := openTestCache(t, 10*time.Millisecond)

	require.NoError(t, cache.BufferRoomMessage(roomMessage("c1", "room@muc", "alice", 10)))
	require.NoError(t, cache.BufferRoomMessage(roomMessage("c1", "room@muc", "bob", 20)))

	require.Eventually(t, func() bool {
		return cache.CountRoomMessages("room@muc") == 2
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, cache.GetRoomMessagesByClientID("c1"), 2)

	key := roomMessage("c1", "room@muc", "alice", 10).CacheKey()
	cache.UpdateRoomMessage(key, &store.Patch{RetractedAt: ptr(ms(99))})
	got := cache.GetRoomMessage(key)
	require.NotNil(t, got)
	require.NotNil(t, got.RetractedAt)

	cache.DeleteRoomMessage(key)
	assert.Nil(t, cache.GetRoomMessage(key))

	cache.DeleteRoom("room@muc")
	assert.Zero(t, cache.CountRoomMessages("room@muc"))
}

func TestMessageCache_HistorySink(t *testing.T) {
	cache := openTestCache(t, time.Hour)

	cache.StoreConversationHistory("bob@example.org", []*store.Message{
		{Content: store.Content{ID: "m1", Timestamp: ms(10)}},
		{Content: store.Content{ID: "m2", Timestamp: ms(20)}},
		{Content: store.Content{Timestamp: ms(30)}},
	})
	assert.Equal(t, 2, cache.CountMessages("bob@example.org"))

	stanza := roomMessage("", "", "alice", 10)
	stanza.StanzaID = "S1"
	cache.StoreRoomHistory("room@muc", []*store.RoomMessage{stanza})
	cache.FlushPending()

	got := cache.GetRoomMessageByStanzaID("S1")
	require.NotNil(t, got)
	assert.Equal(t, "room@muc", got.RoomID)
	latest := cache.QueryRoomMessages("room@muc", store.QueryOptions{Latest: true, Limit: 1})
	require.Len(t, latest, 1)
	assert.Equal(t, "S1", latest[0].StanzaID)
}

func TestMessageCache_ClosedCacheDegrades(t *testing.T) {
	cache := OpenMessageCache(
		zap.NewNop(),
		&config.DBConfig{Path: ".test/store", InMemoryDONOTUSE: true},
		&config.BufferConfig{FlushDelay: time.Hour},
		"",
	)

	require.NoError(t, cache.BufferRoomMessage(roomMessage("c1", "room@muc", "alice", 10)))
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())

	assert.False(t, cache.Available())
	assert.Zero(t, cache.CountRoomMessages("room@muc"))
}
