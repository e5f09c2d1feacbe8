// Package chat keeps each conversation's message sequence canonical across
// the account and guest stores: it runs the send-message round trip,
// deduplicates repeated turns and migrates guest history into an account.
package chat

import (
	"context"

	"cyris/internal/models"
)

// Store is the storage collaborator of the round trip. Implementations
// report storage.ErrChatNotFound and storage.ErrChatExists; any other error
// is treated as transient.
type Store interface {
	List(ctx context.Context) ([]*models.Chat, error)
	Get(ctx context.Context, id string) (*models.Chat, error)
	Create(ctx context.Context, chat *models.Chat) (*models.Chat, error)
	Update(ctx context.Context, id string, messages models.Messages) (*models.Chat, error)
	Delete(ctx context.Context, id string) error
}

// Importer inserts a chat with its original id and timestamps, reporting
// false when the id already exists.
type Importer interface {
	Import(ctx context.Context, chat *models.Chat) (bool, error)
}

// GuestSource is the guest history offered for migration
type GuestSource interface {
	List(ctx context.Context) ([]*models.Chat, error)
	Clear(ctx context.Context) error
}
