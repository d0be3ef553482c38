package sync

import "errors"

var (
	// ErrUnknownRecipient is returned by SendMessage when no conversation,
	// persisted or provisional, exists for the recipient.
	ErrUnknownRecipient = errors.New("unknown recipient")
	// ErrUnknownConversation is returned by Open for an unknown display name.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrSnapshotAbandoned is returned by Activate when the session was torn
	// down or the context cancelled while the snapshot was in flight.
	ErrSnapshotAbandoned = errors.New("snapshot abandoned")
	// ErrEmptyMessage is returned by SendMessage for blank text.
	ErrEmptyMessage = errors.New("empty message")
	// ErrInvalidMessage is returned for deliveries without persisted ids.
	ErrInvalidMessage = errors.New("message has no persisted id")
)
