package store

import (
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/processone/fluux-messenger-sub003/types/store"
)

// Field numbers of the persisted record encoding. They are part of the on-disk
// format and must never be reused.
const (
	fieldID           protowire.Number = 1
	fieldFrom         protowire.Number = 2
	fieldBody         protowire.Number = 3
	fieldTimestamp    protowire.Number = 4
	fieldStanzaID     protowire.Number = 5
	fieldOutgoing     protowire.Number = 6
	fieldEdited       protowire.Number = 7
	fieldOriginalBody protowire.Number = 8
	fieldRetractedAt  protowire.Number = 9
	fieldReplyTo      protowire.Number = 10
	fieldScope        protowire.Number = 11
	fieldNick         protowire.Number = 12

	fieldReplyID       protowire.Number = 1
	fieldReplyTarget   protowire.Number = 2
	fieldReplyFallback protowire.Number = 3
)

type codec[T store.Record] struct {
	encode func(T) []byte
	decode func([]byte) (T, error)
}

var messageCodec = codec[*store.Message]{
	encode: func(m *store.Message) []byte {
		b := appendContent(nil, &m.Content)
		return appendString(b, fieldScope, m.ConversationID)
	},
	decode: func(data []byte) (*store.Message, error) {
		m := &store.Message{}
		err := decodeRecord(data, &m.Content, func(
			num protowire.Number,
			value string,
		) {
			if num == fieldScope {
				m.ConversationID = value
			}
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	},
}

var roomMessageCodec = codec[*store.RoomMessage]{
	encode: func(m *store.RoomMessage) []byte {
		b := appendContent(nil, &m.Content)
		b = appendString(b, fieldScope, m.RoomID)
		return appendString(b, fieldNick, m.Nick)
	},
	decode: func(data []byte) (*store.RoomMessage, error) {
		m := &store.RoomMessage{}
		err := decodeRecord(data, &m.Content, func(
			num protowire.Number,
			value string,
		) {
			switch num {
			case fieldScope:
				m.RoomID = value
			case fieldNick:
				m.Nick = value
			}
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	},
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(t.UnixMilli()))
}

func appendContent(b []byte, c *store.Content) []byte {
	b = appendString(b, fieldID, c.ID)
	b = appendString(b, fieldFrom, c.From)
	b = appendString(b, fieldBody, c.Body)
	b = appendTime(b, fieldTimestamp, c.Timestamp)
	b = appendString(b, fieldStanzaID, c.StanzaID)
	b = appendBool(b, fieldOutgoing, c.Outgoing)
	b = appendBool(b, fieldEdited, c.Edited)
	b = appendString(b, fieldOriginalBody, c.OriginalBody)
	if c.RetractedAt != nil {
		b = appendTime(b, fieldRetractedAt, *c.RetractedAt)
	}
	if c.ReplyTo != nil {
		var reply []byte
		reply = appendString(reply, fieldReplyID, c.ReplyTo.ID)
		reply = appendString(reply, fieldReplyTarget, c.ReplyTo.To)
		reply = appendString(reply, fieldReplyFallback, c.ReplyTo.FallbackBody)
		b = protowire.AppendTag(b, fieldReplyTo, protowire.BytesType)
		b = protowire.AppendBytes(b, reply)
	}
	return b
}

// decodeRecord fills the shared content fields and hands every other string
// field to extra.
func decodeRecord(
	data []byte,
	c *store.Content,
	extra func(protowire.Number, string),
) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(store.ErrInvalidData, "decode record")
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.Wrap(store.ErrInvalidData, "decode record")
			}
			data = data[n:]

			switch num {
			case fieldTimestamp:
				c.Timestamp = time.UnixMilli(protowire.DecodeZigZag(v))
			case fieldRetractedAt:
				at := time.UnixMilli(protowire.DecodeZigZag(v))
				c.RetractedAt = &at
			case fieldOutgoing:
				c.Outgoing = v != 0
			case fieldEdited:
				c.Edited = v != 0
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.Wrap(store.ErrInvalidData, "decode record")
			}
			data = data[n:]

			switch num {
			case fieldID:
				c.ID = string(v)
			case fieldFrom:
				c.From = string(v)
			case fieldBody:
				c.Body = string(v)
			case fieldStanzaID:
				c.StanzaID = string(v)
			case fieldOriginalBody:
				c.OriginalBody = string(v)
			case fieldReplyTo:
				reply, err := decodeReply(v)
				if err != nil {
					return err
				}
				c.ReplyTo = reply
			default:
				extra(num, string(v))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.Wrap(store.ErrInvalidData, "decode record")
			}
			data = data[n:]
		}
	}

	return nil
}

func decodeReply(data []byte) (*store.ReplyRef, error) {
	reply := &store.ReplyRef{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(store.ErrInvalidData, "decode reply")
		}
		data = data[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.Wrap(store.ErrInvalidData, "decode reply")
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, errors.Wrap(store.ErrInvalidData, "decode reply")
		}
		data = data[n:]

		switch num {
		case fieldReplyID:
			reply.ID = string(v)
		case fieldReplyTarget:
			reply.To = string(v)
		case fieldReplyFallback:
			reply.FallbackBody = string(v)
		}
	}
	return reply, nil
}
