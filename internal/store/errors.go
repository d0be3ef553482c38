package store

import "errors"

var (
	// ErrUnknownUser is returned when a referenced user does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrNotParticipant is returned when a user acts on a conversation they
	// are not part of.
	ErrNotParticipant = errors.New("not a participant of the conversation")
	// ErrInvalidUsername is returned for empty or whitespace-only usernames.
	ErrInvalidUsername = errors.New("invalid username")
)
