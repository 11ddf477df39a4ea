package archive

import (
	"context"
	"time"

	"github.com/processone/fluux-messenger-sub003/types/store"
)

// QueryRequest asks an archive for its newest page.
type QueryRequest struct {
	// Correlation token echoed on every forwarded result
	QueryID string
	// Archive address, empty for the account's own archive
	Archive string
	// Correspondent filter, empty for room archives
	With string
	Max  int
	// Result set cursor, empty requests the newest page
	Before string
}

// QueryComplete is the terminal response to a QueryRequest.
type QueryComplete struct {
	QueryID  string
	Complete bool
	First    string
	Last     string
}

// ForwardedMessage is one archived message streamed back for a query.
type ForwardedMessage struct {
	QueryID string
	// Archive-assigned id of the result
	ResultID string
	// Client-generated id of the original message, may be empty for bridged
	// messages
	MessageID string
	From      string
	To        string
	// Occupant nickname for room archives
	Nick      string
	Body      string
	Timestamp time.Time
	Outgoing  bool
}

type ResultHandler func(msg *ForwardedMessage)

// Transport issues archive queries. Forwarded results arrive out of band on
// every subscribed handler, possibly interleaved across concurrent queries,
// before QueryArchive returns the terminal response.
type Transport interface {
	QueryArchive(ctx context.Context, req *QueryRequest) (*QueryComplete, error)
	SubscribeResults(handler ResultHandler) (unsubscribe func())
}

type Conversation struct {
	ID string
}

type Room struct {
	ID string
	// Whether the room's service keeps a message archive
	SupportsArchive bool
	// Disposable rooms are never synchronized
	Ephemeral bool
	// Whether a last-message preview is already shown for the room
	HasPreview bool
}

// TargetSource enumerates what a sync pass can cover. It is consulted once per
// pass.
type TargetSource interface {
	Conversations() []Conversation
	JoinedRooms() []Room
}

type TargetKind string

const (
	TargetConversation TargetKind = "conversation"
	TargetRoom         TargetKind = "room"
)

// Preview is the most recent archived message of a target.
type Preview struct {
	TargetID  string
	Kind      TargetKind
	MessageID string
	StanzaID  string
	From      string
	Nick      string
	Body      string
	Timestamp time.Time
	Outgoing  bool
}

// PreviewSink receives preview updates. UpdateLastMessagePreview is called at
// most once per target per pass.
type PreviewSink interface {
	UpdateLastMessagePreview(preview *Preview)
	LoadPreviewFromCache(roomID string)
}

// HistorySink persists messages recovered from an archive.
type HistorySink interface {
	StoreConversationHistory(conversationID string, messages []*store.Message)
	StoreRoomHistory(roomID string, messages []*store.RoomMessage)
}
