package chat

import "errors"

var (
	// ErrEmptyPrompt is returned when a send carries no prompt text
	ErrEmptyPrompt = errors.New("message content is required")

	// ErrNoChats is returned when a migration is asked to move nothing
	ErrNoChats = errors.New("no chats to migrate")
)
