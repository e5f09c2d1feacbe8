package storage

import "errors"

var (
	// ErrChatNotFound is returned when a chat does not exist for its owner
	ErrChatNotFound = errors.New("chat not found")

	// ErrChatExists is returned when a chat id is already taken by the same owner
	ErrChatExists = errors.New("chat already exists")

	// ErrShareIDTaken is returned when a new share id collides with another chat's
	ErrShareIDTaken = errors.New("share id already in use")

	// ErrShareNotFound is returned when no chat is shared under a share id
	ErrShareNotFound = errors.New("shared chat not found")

	// ErrRoundTripNotFound is returned when a round-trip record is not found
	ErrRoundTripNotFound = errors.New("round trip record not found")
)
