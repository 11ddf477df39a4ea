package store

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]*store.RoomMessage
	err     error
}

func (w *recordingWriter) SaveMany(records []*store.RoomMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, records)
	return w.err
}

func (w *recordingWriter) Batches() [][]*store.RoomMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]*store.RoomMessage(nil), w.batches...)
}

func TestWriteBuffer_CoalescesBurst(t *testing.T) {
	writer := &recordingWriter{}
	buffer := NewWriteBuffer(
		writer,
		&config.BufferConfig{FlushDelay: 100 * time.Millisecond},
		zap.NewNop(),
	)

	require.NoError(t, buffer.Enqueue(roomMessage("c1", "room@muc", "alice", 10)))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, buffer.Enqueue(roomMessage("c2", "room@muc", "alice", 20)))
	time.Sleep(60 * time.Millisecond)

	// The second enqueue restarted the timer.
	assert.Empty(t, writer.Batches())
	assert.Equal(t, 2, buffer.Pending())

	require.Eventually(t, func() bool {
		return len(writer.Batches()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Len(t, writer.Batches()[0], 2)
	assert.Zero(t, buffer.Pending())
}

func TestWriteBuffer_ForceFlush(t *testing.T) {
	writer := &recordingWriter{}
	buffer := NewWriteBuffer(
		writer,
		&config.BufferConfig{FlushDelay: time.Hour},
		zap.NewNop(),
	)

	buffer.ForceFlush()
	assert.Empty(t, writer.Batches(), "empty flush must not write")

	require.NoError(t, buffer.Enqueue(roomMessage("c1", "room@muc", "alice", 10)))
	require.NoError(t, buffer.Enqueue(roomMessage("c2", "room@muc", "bob", 20)))
	buffer.ForceFlush()

	batches := writer.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Zero(t, buffer.Pending())
}

func TestWriteBuffer_FailedFlushDropsBatch(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	writer := &recordingWriter{err: errors.New("quota exceeded")}
	buffer := NewWriteBuffer(
		writer,
		&config.BufferConfig{FlushDelay: time.Hour},
		zap.New(core),
	)

	require.NoError(t, buffer.Enqueue(roomMessage("c1", "room@muc", "alice", 10)))
	buffer.ForceFlush()

	assert.Zero(t, buffer.Pending())
	entries := logs.FilterMessage("room message flush failed, dropping batch").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["count"])

	// The dropped record is not retried.
	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()
	buffer.ForceFlush()
	assert.Len(t, writer.Batches(), 1)
}

func TestWriteBuffer_Close(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	writer := &recordingWriter{}
	buffer := NewWriteBuffer(
		writer,
		&config.BufferConfig{FlushDelay: time.Hour},
		zap.New(core),
	)

	require.NoError(t, buffer.Enqueue(roomMessage("c1", "room@muc", "alice", 10)))
	buffer.Close()
	require.Len(t, writer.Batches(), 1)

	err := buffer.Enqueue(roomMessage("c2", "room@muc", "alice", 20))
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.Equal(t, 1, logs.FilterMessage("write buffer closed, rejecting room message").Len())
}

func TestWriteBuffer_RejectsInvalidRecord(t *testing.T) {
	buffer := NewWriteBuffer(&recordingWriter{}, nil, zap.NewNop())

	err := buffer.Enqueue(&store.RoomMessage{Content: store.Content{ID: "c1"}})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)
	assert.Zero(t, buffer.Pending())
}

func TestWriteBuffer_WritesToCollection(t *testing.T) {
	db, err := NewPebbleDB(
		zap.NewNop(),
		&config.DBConfig{Path: ".test/store", InMemoryDONOTUSE: true},
		"",
	)
	require.NoError(t, err)
	defer db.Close()

	rooms := NewRoomMessageCollection(db, zap.NewNop(), 16)
	buffer := NewWriteBuffer(
		rooms,
		&config.BufferConfig{FlushDelay: 10 * time.Millisecond},
		zap.NewNop(),
	)

	for i, nick := range []string{"alice", "bob", "carol"} {
		require.NoError(t, buffer.Enqueue(
			roomMessage("c1", "room@muc", nick, int64(10*(i+1))),
		))
	}

	require.Eventually(t, func() bool {
		count, err := rooms.Count("room@muc")
		return err == nil && count == 3
	}, time.Second, 5*time.Millisecond)
}

func TestWriteBuffer_StagesCopy(t *testing.T) {
	writer := &recordingWriter{}
	buffer := NewWriteBuffer(
		writer,
		&config.BufferConfig{FlushDelay: time.Millisecond},
		zap.NewNop(),
	)

	msg := roomMessage("c1", "room@muc", "alice", 10)
	msg.Timestamp = msg.Timestamp.Add(123456 * time.Nanosecond)
	msg.ReplyTo = &store.ReplyRef{ID: "c0"}
	require.NoError(t, buffer.Enqueue(msg))

	// The caller keeps reading its record while the timer flush runs.
	for i := 0; i < 50; i++ {
		_ = msg.Timestamp.Nanosecond()
		_ = msg.CacheKey()
		time.Sleep(100 * time.Microsecond)
	}

	require.Eventually(t, func() bool {
		return len(writer.Batches()) == 1
	}, time.Second, 5*time.Millisecond)

	msg.StanzaID = "late"
	msg.ReplyTo.ID = "changed"

	flushed := writer.Batches()[0]
	require.Len(t, flushed, 1)
	assert.NotSame(t, msg, flushed[0])
	assert.Empty(t, flushed[0].StanzaID)
	assert.Equal(t, "c0", flushed[0].ReplyTo.ID)
	assert.Equal(t, "room@muc:room@muc/alice:c1", flushed[0].CacheKey())
	assert.Equal(t, 123456, msg.Timestamp.Nanosecond()%int(time.Millisecond))
}

func TestWriteBuffer_CallerRecordUntouchedByFlush(t *testing.T) {
	forEachEngine(t, func(t *testing.T, db store.KVDB) {
		rooms := NewRoomMessageCollection(db, zap.NewNop(), 16)
		buffer := NewWriteBuffer(
			rooms,
			&config.BufferConfig{FlushDelay: time.Hour},
			zap.NewNop(),
		)

		msg := roomMessage("c1", "room@muc", "alice", 10)
		msg.Timestamp = msg.Timestamp.Add(999 * time.Microsecond)
		at := msg.Timestamp
		require.NoError(t, buffer.Enqueue(msg))
		buffer.ForceFlush()

		assert.True(t, msg.Timestamp.Equal(at), "flush must not normalize the caller's record")

		got, err := rooms.GetByID(msg.CacheKey())
		require.NoError(t, err)
		assert.True(t, got.Timestamp.Equal(ms(10)))
	})
}
