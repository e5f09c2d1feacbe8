package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"cyris/internal/models"
)

// MemoryChatRepository keeps account chats in process memory. It backs the
// server when no database is configured and mirrors ChatRepository semantics.
type MemoryChatRepository struct {
	mu     sync.RWMutex
	chats  map[string]map[string]*models.Chat // user id -> chat id -> chat
	shares map[string]chatKey                 // share id -> owner and chat
	now    func() time.Time
}

type chatKey struct {
	userID string
	chatID string
}

// NewMemoryChatRepository creates an empty in-memory chat repository
func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		chats:  make(map[string]map[string]*models.Chat),
		shares: make(map[string]chatKey),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ForUser scopes the repository to one signed-in user
func (r *MemoryChatRepository) ForUser(userID string) UserChats {
	return &memoryUserChats{repo: r, userID: userID}
}

// GetShared returns the chat currently shared under shareID
func (r *MemoryChatRepository) GetShared(ctx context.Context, shareID string) (*models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.shares[shareID]
	if !ok {
		return nil, ErrShareNotFound
	}
	chat, ok := r.chats[key.userID][key.chatID]
	if !ok || !chat.IsShared {
		return nil, ErrShareNotFound
	}
	return chat.Clone(), nil
}

type memoryUserChats struct {
	repo   *MemoryChatRepository
	userID string
}

// owned must be called with the lock held
func (u *memoryUserChats) owned() map[string]*models.Chat {
	chats, ok := u.repo.chats[u.userID]
	if !ok {
		chats = make(map[string]*models.Chat)
		u.repo.chats[u.userID] = chats
	}
	return chats
}

func (u *memoryUserChats) List(ctx context.Context) ([]*models.Chat, error) {
	u.repo.mu.RLock()
	defer u.repo.mu.RUnlock()

	out := make([]*models.Chat, 0, len(u.repo.chats[u.userID]))
	for _, chat := range u.repo.chats[u.userID] {
		out = append(out, chat.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (u *memoryUserChats) Get(ctx context.Context, id string) (*models.Chat, error) {
	u.repo.mu.RLock()
	defer u.repo.mu.RUnlock()

	chat, ok := u.repo.chats[u.userID][id]
	if !ok {
		return nil, ErrChatNotFound
	}
	return chat.Clone(), nil
}

func (u *memoryUserChats) Create(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	if err := chat.Validate(); err != nil {
		return nil, err
	}

	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()

	chats := u.owned()
	if _, exists := chats[chat.ID]; exists {
		return nil, ErrChatExists
	}

	now := u.repo.now()
	stored := &models.Chat{
		ID:        chat.ID,
		UserID:    u.userID,
		Title:     chat.Title,
		Messages:  chat.Messages.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	chats[chat.ID] = stored
	return stored.Clone(), nil
}

func (u *memoryUserChats) Update(ctx context.Context, id string, messages models.Messages) (*models.Chat, error) {
	if err := messages.Validate(); err != nil {
		return nil, err
	}

	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()

	chat, ok := u.repo.chats[u.userID][id]
	if !ok {
		return nil, ErrChatNotFound
	}
	chat.Messages = messages.Clone()
	chat.UpdatedAt = u.repo.now()
	return chat.Clone(), nil
}

func (u *memoryUserChats) Delete(ctx context.Context, id string) error {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()

	chat, ok := u.repo.chats[u.userID][id]
	if !ok {
		return ErrChatNotFound
	}
	if chat.ShareID != nil {
		delete(u.repo.shares, *chat.ShareID)
	}
	delete(u.repo.chats[u.userID], id)
	return nil
}

func (u *memoryUserChats) Import(ctx context.Context, chat *models.Chat) (bool, error) {
	if err := chat.Validate(); err != nil {
		return false, err
	}

	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()

	chats := u.owned()
	if _, exists := chats[chat.ID]; exists {
		return false, nil
	}

	now := u.repo.now()
	createdAt := chat.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := chat.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	chats[chat.ID] = &models.Chat{
		ID:        chat.ID,
		UserID:    u.userID,
		Title:     chat.Title,
		Messages:  chat.Messages.Clone(),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	return true, nil
}

func (u *memoryUserChats) Share(ctx context.Context, id, shareID string) (*models.Chat, error) {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()

	chat, ok := u.repo.chats[u.userID][id]
	if !ok {
		return nil, ErrChatNotFound
	}

	if chat.ShareID == nil {
		if _, taken := u.repo.shares[shareID]; taken {
			return nil, ErrShareIDTaken
		}
		chat.ShareID = &shareID
		u.repo.shares[shareID] = chatKey{userID: u.userID, chatID: id}
	}
	if chat.SharedAt == nil {
		now := u.repo.now()
		chat.SharedAt = &now
	}
	chat.IsShared = true
	return chat.Clone(), nil
}

func (u *memoryUserChats) Unshare(ctx context.Context, id string) (*models.Chat, error) {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()

	chat, ok := u.repo.chats[u.userID][id]
	if !ok {
		return nil, ErrChatNotFound
	}
	if chat.ShareID != nil {
		delete(u.repo.shares, *chat.ShareID)
	}
	chat.IsShared = false
	chat.ShareID = nil
	chat.SharedAt = nil
	return chat.Clone(), nil
}
