package store

import (
	"math"
	"time"
)

// MaxIndexedLength bounds every id and scope that becomes part of an index
// key.
const MaxIndexedLength = math.MaxUint16

// Record is the behavior shared by direct and room messages: an identity
// within its collection, the conversation or room it belongs to, and the
// fields the secondary indexes are built from.
type Record interface {
	CacheKey() string
	ScopeID() string
	ArchiveID() string
	ClientID() string
	Time() time.Time
	Validate() error
	Apply(patch *Patch)
	Normalize()
}

// ReplyRef points at the message being replied to.
type ReplyRef struct {
	ID           string
	To           string
	FallbackBody string
}

// Content holds the attributes common to both record kinds.
type Content struct {
	// Client-generated message id
	ID        string
	From      string
	Body      string
	Timestamp time.Time
	// Server-assigned archive id, empty until known
	StanzaID string
	Outgoing bool

	Edited       bool
	OriginalBody string
	RetractedAt  *time.Time
	ReplyTo      *ReplyRef
}

func (c *Content) Time() time.Time { return c.Timestamp }

func (c *Content) ArchiveID() string { return c.StanzaID }

func (c *Content) ClientID() string { return c.ID }

// Apply copies every set field of the patch onto the content. The timestamp
// is never touched.
func (c *Content) Apply(patch *Patch) {
	if patch == nil {
		return
	}
	if patch.Body != nil {
		c.Body = *patch.Body
	}
	if patch.StanzaID != nil {
		c.StanzaID = *patch.StanzaID
	}
	if patch.Edited != nil {
		c.Edited = *patch.Edited
	}
	if patch.OriginalBody != nil {
		c.OriginalBody = *patch.OriginalBody
	}
	if patch.RetractedAt != nil {
		at := Millis(*patch.RetractedAt)
		c.RetractedAt = &at
	}
	if patch.ReplyTo != nil {
		reply := *patch.ReplyTo
		c.ReplyTo = &reply
	}
}

// indexable reports whether every indexed field fits an index key segment.
func (c *Content) indexable() bool {
	return len(c.ID) <= MaxIndexedLength && len(c.StanzaID) <= MaxIndexedLength
}

func (c *Content) clone() Content {
	cpy := *c
	if c.RetractedAt != nil {
		at := *c.RetractedAt
		cpy.RetractedAt = &at
	}
	if c.ReplyTo != nil {
		reply := *c.ReplyTo
		cpy.ReplyTo = &reply
	}
	return cpy
}

// Normalize truncates every instant to millisecond precision, the resolution
// records are persisted with.
func (c *Content) Normalize() {
	c.Timestamp = Millis(c.Timestamp)
	if c.RetractedAt != nil {
		at := Millis(*c.RetractedAt)
		c.RetractedAt = &at
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Body         *string
	StanzaID     *string
	Edited       *bool
	OriginalBody *string
	RetractedAt  *time.Time
	ReplyTo      *ReplyRef
}

// Message is a direct-conversation message, keyed by its client id.
type Message struct {
	Content
	ConversationID string
}

func (m *Message) CacheKey() string { return m.ID }

func (m *Message) ScopeID() string { return m.ConversationID }

func (m *Message) Validate() error {
	if m == nil || m.ID == "" || m.ConversationID == "" {
		return ErrInvalidRecord
	}
	if len(m.ConversationID) > MaxIndexedLength || !m.indexable() {
		return ErrInvalidRecord
	}
	return nil
}

// Clone returns a copy sharing no memory with m.
func (m *Message) Clone() *Message {
	return &Message{Content: m.Content.clone(), ConversationID: m.ConversationID}
}

// RoomMessage is a multi-user room message, keyed by RoomMessageKey.
type RoomMessage struct {
	Content
	RoomID string
	Nick   string
}

func (m *RoomMessage) CacheKey() string { return RoomMessageKey(m) }

func (m *RoomMessage) ScopeID() string { return m.RoomID }

func (m *RoomMessage) Validate() error {
	if m == nil || m.RoomID == "" || (m.StanzaID == "" && m.ID == "") {
		return ErrInvalidRecord
	}
	if len(m.RoomID) > MaxIndexedLength || !m.indexable() {
		return ErrInvalidRecord
	}
	return nil
}

// Clone returns a copy sharing no memory with m.
func (m *RoomMessage) Clone() *RoomMessage {
	return &RoomMessage{Content: m.Content.clone(), RoomID: m.RoomID, Nick: m.Nick}
}

// Millis truncates t to whole milliseconds.
func Millis(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.UnixMilli(t.UnixMilli())
}

var (
	_ Record = (*Message)(nil)
	_ Record = (*RoomMessage)(nil)
)
