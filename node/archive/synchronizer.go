package archive

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/processone/fluux-messenger-sub003/config"
	"github.com/processone/fluux-messenger-sub003/types/archive"
	"github.com/processone/fluux-messenger-sub003/types/store"
)

type TargetState int

const (
	StatePending TargetState = iota
	StateQuerying
	StateCorrelating
	StateCompleted
	StateFailed
)

func (s TargetState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateQuerying:
		return "querying"
	case StateCorrelating:
		return "correlating"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("TargetState(%d)", int(s))
	}
}

// Report summarizes one sync pass. States holds every queried target; targets
// left in StatePending were never dispatched because the pass was cancelled.
type Report struct {
	Kind            archive.TargetKind
	States          map[string]TargetState
	PreviewsUpdated int
	Skipped         int
	LoadedFromCache int
}

func (r *Report) Count(state TargetState) int {
	n := 0
	for _, s := range r.States {
		if s == state {
			n++
		}
	}
	return n
}

type target struct {
	kind archive.TargetKind
	id   string
	req  archive.QueryRequest
}

// Synchronizer catches conversations and rooms up with their archives. Each
// pass queries its targets through a fixed pool of workers, so no more than
// the configured number of queries are ever in flight. A failing target is
// logged and never affects the others; nothing is retried.
type Synchronizer struct {
	transport archive.Transport
	targets   archive.TargetSource
	previews  archive.PreviewSink
	history   archive.HistorySink
	logger    *zap.Logger

	concurrency  int
	queryTimeout time.Duration
	pageSize     int
}

type Option func(*Synchronizer)

// WithHistorySink persists every correlated message, not only the preview.
func WithHistorySink(sink archive.HistorySink) Option {
	return func(s *Synchronizer) {
		s.history = sink
	}
}

func NewSynchronizer(
	cfg *config.SyncConfig,
	transport archive.Transport,
	targets archive.TargetSource,
	previews archive.PreviewSink,
	logger *zap.Logger,
	opts ...Option,
) *Synchronizer {
	c := config.SyncConfig{}
	if cfg != nil {
		c = *cfg
	}
	c = c.WithDefaults()

	s := &Synchronizer{
		transport:    transport,
		targets:      targets,
		previews:     previews,
		logger:       logger,
		concurrency:  c.Concurrency,
		queryTimeout: c.QueryTimeout,
		pageSize:     c.PageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncConversations refreshes the preview of every direct conversation.
func (s *Synchronizer) SyncConversations(ctx context.Context) *Report {
	conversations := s.targets.Conversations()

	targets := make([]target, 0, len(conversations))
	for _, conversation := range conversations {
		targets = append(targets, target{
			kind: archive.TargetConversation,
			id:   conversation.ID,
			req: archive.QueryRequest{
				With: conversation.ID,
				Max:  s.pageSize,
			},
		})
	}

	report := &Report{Kind: archive.TargetConversation}
	s.run(ctx, report, targets)
	return report
}

// SyncRooms refreshes joined rooms. Ephemeral rooms are skipped. Rooms whose
// service keeps no archive fall back to the local cache when they have no
// preview yet.
func (s *Synchronizer) SyncRooms(ctx context.Context) *Report {
	report := &Report{Kind: archive.TargetRoom}

	targets := []target{}
	for _, room := range s.targets.JoinedRooms() {
		switch {
		case room.Ephemeral:
			report.Skipped++
			syncTargetsTotal.WithLabelValues(string(report.Kind), "skipped").Inc()
		case !room.SupportsArchive:
			if room.HasPreview {
				report.Skipped++
				syncTargetsTotal.WithLabelValues(string(report.Kind), "skipped").Inc()
				continue
			}
			s.previews.LoadPreviewFromCache(room.ID)
			report.LoadedFromCache++
			syncTargetsTotal.WithLabelValues(string(report.Kind), "cached").Inc()
		default:
			targets = append(targets, target{
				kind: archive.TargetRoom,
				id:   room.ID,
				req: archive.QueryRequest{
					Archive: room.ID,
					Max:     s.pageSize,
				},
			})
		}
	}

	s.run(ctx, report, targets)
	return report
}

func (s *Synchronizer) run(
	ctx context.Context,
	report *Report,
	targets []target,
) {
	kind := string(report.Kind)
	syncPassesTotal.WithLabelValues(kind).Inc()

	s.logger.Info(
		"starting archive sync",
		zap.String("kind", kind),
		zap.Int("targets", len(targets)),
		zap.Int("skipped", report.Skipped),
		zap.Int("loaded_from_cache", report.LoadedFromCache),
		zap.Int("concurrency", s.concurrency),
	)

	report.States = make(map[string]TargetState, len(targets))
	for _, t := range targets {
		report.States[t.id] = StatePending
	}
	if len(targets) == 0 {
		return
	}

	// Each pass routes only the results of its own queries, so passes may
	// overlap without seeing each other's messages.
	correlator := NewCorrelator()
	unsubscribe := s.transport.SubscribeResults(correlator.Handle)
	defer unsubscribe()

	var mu sync.Mutex
	setState := func(id string, state TargetState) {
		mu.Lock()
		report.States[id] = state
		mu.Unlock()
	}
	previewUpdated := func() {
		mu.Lock()
		report.PreviewsUpdated++
		mu.Unlock()
	}

	workers := s.concurrency
	if workers > len(targets) {
		workers = len(targets)
	}

	queue := make(chan target)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for t := range queue {
				state := s.syncTarget(ctx, correlator, t, setState, previewUpdated)
				setState(t.id, state)
				syncTargetsTotal.WithLabelValues(kind, state.String()).Inc()
			}
			return nil
		})
	}

feed:
	for _, t := range targets {
		select {
		case queue <- t:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	g.Wait()

	s.logger.Info(
		"archive sync finished",
		zap.String("kind", kind),
		zap.Int("completed", report.Count(StateCompleted)),
		zap.Int("failed", report.Count(StateFailed)),
		zap.Int("previews_updated", report.PreviewsUpdated),
	)
}

// syncTarget runs one archive query to completion and returns the terminal
// state. Panics raised by collaborators fail only this target.
func (s *Synchronizer) syncTarget(
	ctx context.Context,
	correlator *Correlator,
	t target,
	setState func(string, TargetState),
	previewUpdated func(),
) (state TargetState) {
	logger := s.logger.With(
		zap.String("kind", string(t.kind)),
		zap.String("target", t.id),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("archive sync target panicked", zap.Any("panic", r))
			state = StateFailed
		}
	}()

	queryID := uuid.NewString()
	req := t.req
	req.QueryID = queryID

	correlator.Register(queryID)
	defer correlator.Take(queryID)
	setState(t.id, StateQuerying)

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	err := s.query(qctx, t.kind, &req)
	forwarded := correlator.Take(queryID)
	if err != nil {
		logger.Warn("archive query failed", zap.Error(err))
		return StateFailed
	}

	setState(t.id, StateCorrelating)

	preview := s.collect(logger, t, forwarded)
	if preview == nil {
		logger.Debug("no archived message found")
		return StateCompleted
	}

	s.previews.UpdateLastMessagePreview(preview)
	previewUpdated()
	return StateCompleted
}

func (s *Synchronizer) query(
	ctx context.Context,
	kind archive.TargetKind,
	req *archive.QueryRequest,
) error {
	queriesInFlight.Inc()
	start := time.Now()
	defer func() {
		queriesInFlight.Dec()
		queryDuration.WithLabelValues(string(kind)).Observe(
			time.Since(start).Seconds(),
		)
	}()

	_, err := s.transport.QueryArchive(ctx, req)
	return err
}

// collect converts correlated results into records, hands them to the history
// sink and returns the preview built from the last valid one.
func (s *Synchronizer) collect(
	logger *zap.Logger,
	t target,
	forwarded []*archive.ForwardedMessage,
) *archive.Preview {
	var preview *archive.Preview

	switch t.kind {
	case archive.TargetConversation:
		messages := make([]*store.Message, 0, len(forwarded))
		for _, fwd := range forwarded {
			if !wellFormed(logger, fwd) {
				continue
			}
			msg := toMessage(t.id, fwd)
			messages = append(messages, msg)
			preview = previewOf(t, &msg.Content, fwd.Nick)
		}
		if s.history != nil && len(messages) > 0 {
			s.history.StoreConversationHistory(t.id, messages)
		}
	case archive.TargetRoom:
		messages := make([]*store.RoomMessage, 0, len(forwarded))
		for _, fwd := range forwarded {
			if !wellFormed(logger, fwd) {
				continue
			}
			msg := toRoomMessage(t.id, fwd)
			messages = append(messages, msg)
			preview = previewOf(t, &msg.Content, msg.Nick)
		}
		if s.history != nil && len(messages) > 0 {
			s.history.StoreRoomHistory(t.id, messages)
		}
	}

	return preview
}

func wellFormed(logger *zap.Logger, fwd *archive.ForwardedMessage) bool {
	if fwd.From == "" || fwd.Timestamp.IsZero() {
		logger.Debug(
			"dropping malformed archive result",
			zap.String("result_id", fwd.ResultID),
		)
		return false
	}
	if fwd.Body == "" && fwd.MessageID == "" && fwd.ResultID == "" {
		logger.Debug("dropping archive result without content or id")
		return false
	}
	return true
}

// messageID prefers the sender's id; bridged messages without one get a
// synthetic id that is stable across re-delivery.
func messageID(fwd *archive.ForwardedMessage) string {
	if fwd.MessageID != "" {
		return fwd.MessageID
	}
	return store.StableSyntheticID(fwd.From, fwd.Timestamp, fwd.Body)
}

func toMessage(
	conversationID string,
	fwd *archive.ForwardedMessage,
) *store.Message {
	return &store.Message{
		Content: store.Content{
			ID:        messageID(fwd),
			From:      fwd.From,
			Body:      fwd.Body,
			Timestamp: fwd.Timestamp,
			StanzaID:  fwd.ResultID,
			Outgoing:  fwd.Outgoing,
		},
		ConversationID: conversationID,
	}
}

func toRoomMessage(
	roomID string,
	fwd *archive.ForwardedMessage,
) *store.RoomMessage {
	nick := fwd.Nick
	if nick == "" {
		nick = resourceOf(fwd.From)
	}

	return &store.RoomMessage{
		Content: store.Content{
			ID:        messageID(fwd),
			From:      fwd.From,
			Body:      fwd.Body,
			Timestamp: fwd.Timestamp,
			StanzaID:  fwd.ResultID,
			Outgoing:  fwd.Outgoing,
		},
		RoomID: roomID,
		Nick:   nick,
	}
}

func previewOf(t target, c *store.Content, nick string) *archive.Preview {
	return &archive.Preview{
		TargetID:  t.id,
		Kind:      t.kind,
		MessageID: c.ID,
		StanzaID:  c.StanzaID,
		From:      c.From,
		Nick:      nick,
		Body:      c.Body,
		Timestamp: c.Timestamp,
		Outgoing:  c.Outgoing,
	}
}

func resourceOf(address string) string {
	if i := strings.IndexByte(address, '/'); i >= 0 {
		return address[i+1:]
	}
	return ""
}
