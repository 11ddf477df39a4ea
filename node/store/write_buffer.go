package store

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

type roomMessageWriter interface {
	SaveMany(records []*store.RoomMessage) error
}

// WriteBuffer coalesces bursts of room messages into batched writes. A batch
// is written once no record has been enqueued for the flush delay, or at once
// on ForceFlush. A buffer is bound to the collection it was created for and
// never writes anywhere else.
type WriteBuffer struct {
	writer roomMessageWriter
	logger *zap.Logger
	delay  time.Duration

	mu      sync.Mutex
	pending []*store.RoomMessage
	timer   *time.Timer
	closed  bool

	// Held for the duration of a write so ForceFlush returns only after any
	// timer-driven write in progress has landed.
	flushMu sync.Mutex
}

func NewWriteBuffer(
	writer roomMessageWriter,
	cfg *config.BufferConfig,
	logger *zap.Logger,
) *WriteBuffer {
	c := config.BufferConfig{}
	if cfg != nil {
		c = *cfg
	}
	c = c.WithDefaults()

	return &WriteBuffer{
		writer: writer,
		logger: logger,
		delay:  c.FlushDelay,
	}
}

// Enqueue stages a copy of record and restarts the inactivity timer. The
// caller keeps ownership of record and may reuse it once Enqueue returns.
func (b *WriteBuffer) Enqueue(record *store.RoomMessage) error {
	if err := record.Validate(); err != nil {
		return errors.Wrap(err, "enqueue")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.logger.Warn(
			"write buffer closed, rejecting room message",
			zap.String("room", record.RoomID),
		)
		return errors.Wrap(store.ErrClosed, "enqueue")
	}

	b.pending = append(b.pending, record.Clone())
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.flush)
	return nil
}

// ForceFlush writes everything staged so far and returns once it is durable
// or has been dropped.
func (b *WriteBuffer) ForceFlush() {
	b.flush()
}

// Pending reports the number of staged records.
func (b *WriteBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close flushes staged records and rejects any further ones.
func (b *WriteBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.flush()
}

func (b *WriteBuffer) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := b.writer.SaveMany(batch); err != nil {
		b.logger.Error(
			"room message flush failed, dropping batch",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
		bufferDroppedTotal.Add(float64(len(batch)))
		return
	}

	bufferFlushSize.Observe(float64(len(batch)))
	b.logger.Debug("flushed room messages", zap.Int("count", len(batch)))
}
