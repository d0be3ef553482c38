package feed

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/duochat/internal/convo"
)

// Kind is a push feed event type.
type Kind string

const (
	KindNewMessage   Kind = "new-message"
	KindReadMessage  Kind = "read-message"
	KindPresenceUp   Kind = "presence-up"
	KindPresenceDown Kind = "presence-down"
)

// BusPrefix is the bus namespace inbound envelopes are published under.
const BusPrefix = "feed."

// BusKind returns the bus event kind for an inbound envelope of type k.
func BusKind(k Kind) string {
	return BusPrefix + string(k)
}

// Envelope is the wire format of every frame on the push channel.
// From is stamped by the relay; To addresses a single user.
type Envelope struct {
	ID      string          `json:"id"`
	Type    Kind            `json:"type"`
	From    int64           `json:"from,omitempty"`
	To      int64           `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage is the payload of a new-message event.
type NewMessage = convo.Delivery

// ReadReceipt is the payload of a read-message event: the remote participant
// has read MessageIDs in ConversationID. ReadThroughIndex is the legacy form
// and is only honoured when MessageIDs is empty.
type ReadReceipt struct {
	ConversationID   int64   `json:"conversationId"`
	MessageIDs       []int64 `json:"messageIds,omitempty"`
	ReadThroughIndex *int    `json:"readThroughIndex,omitempty"`
}

// Presence is the payload of presence-up and presence-down events.
type Presence struct {
	UserID int64 `json:"userId"`
}

// Encode wraps payload into an envelope addressed to user to.
func Encode(kind Kind, to int64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Envelope{
		ID:      uuid.New().String(),
		Type:    kind,
		To:      to,
		Payload: raw,
	}, nil
}

// Decode unmarshals the envelope payload into the typed event for its kind.
// It returns *NewMessage, *ReadReceipt or *Presence.
func Decode(env Envelope) (any, error) {
	var v any
	switch env.Type {
	case KindNewMessage:
		v = &NewMessage{}
	case KindReadMessage:
		v = &ReadReceipt{}
	case KindPresenceUp, KindPresenceDown:
		v = &Presence{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return v, nil
}
