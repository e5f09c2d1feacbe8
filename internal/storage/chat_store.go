package storage

import (
	"context"

	"cyris/internal/models"
)

// UserChats is one owner's view of the account chat store. Every method is
// scoped to that owner; ids of other owners are invisible.
type UserChats interface {
	// List returns the owner's chats, most recently updated first
	List(ctx context.Context) ([]*models.Chat, error)

	Get(ctx context.Context, id string) (*models.Chat, error)

	// Create stores a new chat and fails with ErrChatExists on a taken id
	Create(ctx context.Context, chat *models.Chat) (*models.Chat, error)

	// Update replaces the messages of a chat and bumps its updatedAt
	Update(ctx context.Context, id string, messages models.Messages) (*models.Chat, error)

	Delete(ctx context.Context, id string) error

	// Import inserts a chat with its original timestamps. It reports false,
	// and changes nothing, when the id is already taken.
	Import(ctx context.Context, chat *models.Chat) (bool, error)

	// Share marks a chat public. An existing share id is kept; otherwise
	// shareID is assigned.
	Share(ctx context.Context, id, shareID string) (*models.Chat, error)

	// Unshare makes a chat private again and forgets its share id
	Unshare(ctx context.Context, id string) (*models.Chat, error)
}

// ChatStore is the account chat repository
type ChatStore interface {
	ForUser(userID string) UserChats

	// GetShared returns the chat currently shared under shareID
	GetShared(ctx context.Context, shareID string) (*models.Chat, error)
}
