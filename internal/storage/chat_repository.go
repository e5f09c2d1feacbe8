package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"cyris/internal/models"
)

const chatColumns = `id, user_id, title, messages, is_shared, share_id, shared_at, created_at, updated_at`

// uniqueViolation is the Postgres error code for unique constraint failures
const uniqueViolation = "23505"

// ChatRepository stores account chats in Postgres
type ChatRepository struct {
	db    *DB
	cache *LRUCache[*models.Chat]
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{
		db:    db,
		cache: db.sharedChatCache,
	}
}

// ForUser scopes the repository to one signed-in user
func (r *ChatRepository) ForUser(userID string) UserChats {
	return &userChatRepository{repo: r, userID: userID}
}

// GetShared retrieves a shared chat by share id (with caching)
func (r *ChatRepository) GetShared(ctx context.Context, shareID string) (*models.Chat, error) {
	if cached, found := r.cache.Get(shareID); found {
		return cached.Clone(), nil
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var chat models.Chat
	query := `SELECT ` + chatColumns + ` FROM chats WHERE share_id = $1 AND is_shared = TRUE`
	err := r.db.conn.GetContext(ctx, &chat, query, shareID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shared chat: %w", err)
	}

	r.cache.Set(shareID, chat.Clone())
	return &chat, nil
}

// forget drops a chat's public view from the cache after it changes
func (r *ChatRepository) forget(shareID *string) {
	if shareID != nil {
		r.cache.Delete(*shareID)
	}
}

type userChatRepository struct {
	repo   *ChatRepository
	userID string
}

func (u *userChatRepository) List(ctx context.Context) ([]*models.Chat, error) {
	ctx, cancel := u.repo.db.withTimeout(ctx)
	defer cancel()

	var chats []*models.Chat
	query := `SELECT ` + chatColumns + ` FROM chats WHERE user_id = $1 ORDER BY updated_at DESC`
	if err := u.repo.db.conn.SelectContext(ctx, &chats, query, u.userID); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	if chats == nil {
		chats = []*models.Chat{}
	}
	return chats, nil
}

func (u *userChatRepository) Get(ctx context.Context, id string) (*models.Chat, error) {
	ctx, cancel := u.repo.db.withTimeout(ctx)
	defer cancel()

	var chat models.Chat
	query := `SELECT ` + chatColumns + ` FROM chats WHERE user_id = $1 AND id = $2`
	err := u.repo.db.conn.GetContext(ctx, &chat, query, u.userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

func (u *userChatRepository) Create(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	if err := chat.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := u.repo.db.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	var created models.Chat
	query := `
		INSERT INTO chats (user_id, id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + chatColumns
	err := u.repo.db.conn.GetContext(ctx, &created, query, u.userID, chat.ID, chat.Title, chat.Messages, now)
	if isUniqueViolation(err) {
		return nil, ErrChatExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return &created, nil
}

func (u *userChatRepository) Update(ctx context.Context, id string, messages models.Messages) (*models.Chat, error) {
	if err := messages.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := u.repo.db.withTimeout(ctx)
	defer cancel()

	var updated models.Chat
	query := `
		UPDATE chats SET messages = $3, updated_at = NOW()
		WHERE user_id = $1 AND id = $2
		RETURNING ` + chatColumns
	err := u.repo.db.conn.GetContext(ctx, &updated, query, u.userID, id, messages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}

	u.repo.forget(updated.ShareID)
	return &updated, nil
}

func (u *userChatRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := u.repo.db.withTimeout(ctx)
	defer cancel()

	var shareID *string
	query := `DELETE FROM chats WHERE user_id = $1 AND id = $2 RETURNING share_id`
	err := u.repo.db.conn.GetContext(ctx, &shareID, query, u.userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}

	u.repo.forget(shareID)
	return nil
}

func (u *userChatRepository) Import(ctx context.Context, chat *models.Chat) (bool, error) {
	if err := chat.Validate(); err != nil {
		return false, err
	}

	ctx, cancel := u.repo.db.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	createdAt := chat.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := chat.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	query := `
		INSERT INTO chats (user_id, id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, id) DO NOTHING`
	result, err := u.repo.db.conn.ExecContext(ctx, query, u.userID, chat.ID, chat.Title, chat.Messages, createdAt, updatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to import chat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (u *userChatRepository) Share(ctx context.Context, id, shareID string) (*models.Chat, error) {
	ctx, cancel := u.repo.db.withTimeout(ctx)
	defer cancel()

	var shared models.Chat
	query := `
		UPDATE chats SET
			is_shared = TRUE,
			share_id = COALESCE(share_id, $3),
			shared_at = COALESCE(shared_at, NOW())
		WHERE user_id = $1 AND id = $2
		RETURNING ` + chatColumns
	err := u.repo.db.conn.GetContext(ctx, &shared, query, u.userID, id, shareID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if isUniqueViolation(err) {
		return nil, ErrShareIDTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to share chat: %w", err)
	}
	return &shared, nil
}

func (u *userChatRepository) Unshare(ctx context.Context, id string) (*models.Chat, error) {
	ctx, cancel := u.repo.db.withTimeout(ctx)
	defer cancel()

	tx, err := u.repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous *string
	err = tx.GetContext(ctx, &previous, `SELECT share_id FROM chats WHERE user_id = $1 AND id = $2 FOR UPDATE`, u.userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock chat: %w", err)
	}

	var unshared models.Chat
	query := `
		UPDATE chats SET is_shared = FALSE, share_id = NULL, shared_at = NULL
		WHERE user_id = $1 AND id = $2
		RETURNING ` + chatColumns
	if err := tx.GetContext(ctx, &unshared, query, u.userID, id); err != nil {
		return nil, fmt.Errorf("failed to unshare chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.repo.forget(previous)
	return &unshared, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
