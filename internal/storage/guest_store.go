package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cyris/internal/models"
	"cyris/internal/utils"
)

// guestKeyPrefix namespaces guest chat blobs. The session token itself is
// never stored, only its hash.
const guestKeyPrefix = "cyrisUserChats:"

// ErrCorruptGuestData is returned when a stored guest blob cannot be decoded
var ErrCorruptGuestData = errors.New("guest chat data is corrupt")

// maxGuestUpdateRetries bounds optimistic retries when another request
// changes the same guest blob between read and write
const maxGuestUpdateRetries = 16

// ErrGuestUpdateConflict is returned when a guest blob kept changing under an update
var ErrGuestUpdateConflict = errors.New("guest chats changed concurrently")

// GuestUpdateFunc maps the stored blob (nil when absent) to its replacement
type GuestUpdateFunc func(current []byte) ([]byte, error)

// GuestBackend stores one opaque blob per guest session
type GuestBackend interface {
	// Load returns nil data and no error when nothing is stored under key
	Load(ctx context.Context, key string) ([]byte, error)
	// Update replaces the blob with fn's result atomically with respect to
	// other updates of the same key. An error from fn aborts the write.
	Update(ctx context.Context, key string, fn GuestUpdateFunc) error
	Delete(ctx context.Context, key string) error
}

// RedisGuestBackend keeps guest blobs in Redis with a sliding TTL
type RedisGuestBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuestBackend creates a Redis-backed guest backend
func NewRedisGuestBackend(client *redis.Client, ttl time.Duration) *RedisGuestBackend {
	return &RedisGuestBackend{client: client, ttl: ttl}
}

func (b *RedisGuestBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guest chats: %w", err)
	}
	return data, nil
}

// Update runs fn inside WATCH/MULTI and retries when the key changed
func (b *RedisGuestBackend) Update(ctx context.Context, key string, fn GuestUpdateFunc) error {
	var fnErr error
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, b.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxGuestUpdateRetries; attempt++ {
		fnErr = nil
		err := b.client.Watch(ctx, txf, key)
		if fnErr != nil {
			return fnErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to save guest chats: %w", err)
		}
		return nil
	}
	return ErrGuestUpdateConflict
}

func (b *RedisGuestBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete guest chats: %w", err)
	}
	return nil
}

type memoryGuestEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryGuestBackend keeps guest blobs in process memory
type MemoryGuestBackend struct {
	mu    sync.Mutex
	items map[string]memoryGuestEntry
	ttl   time.Duration
}

// NewMemoryGuestBackend creates an in-memory guest backend. A zero ttl keeps
// entries forever.
func NewMemoryGuestBackend(ttl time.Duration) *MemoryGuestBackend {
	return &MemoryGuestBackend{
		items: make(map[string]memoryGuestEntry),
		ttl:   ttl,
	}
}

func (b *MemoryGuestBackend) Load(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.load(key), nil
}

func (b *MemoryGuestBackend) Update(ctx context.Context, key string, fn GuestUpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := fn(b.load(key))
	if err != nil {
		return err
	}

	entry := memoryGuestEntry{data: make([]byte, len(next))}
	copy(entry.data, next)
	if b.ttl > 0 {
		entry.expiresAt = time.Now().Add(b.ttl)
	}
	b.items[key] = entry
	return nil
}

func (b *MemoryGuestBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.items, key)
	return nil
}

// load must be called with the lock held
func (b *MemoryGuestBackend) load(key string) []byte {
	entry, ok := b.items[key]
	if !ok {
		return nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(b.items, key)
		return nil
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out
}

// GuestStore hands out per-session views of guest chats
type GuestStore struct {
	backend GuestBackend
}

// NewGuestStore creates a guest store on top of a backend
func NewGuestStore(backend GuestBackend) *GuestStore {
	return &GuestStore{backend: backend}
}

// Open checks that a session's chats are readable and returns a view of
// them. Every operation on the view reads the current stored set, and writes
// merge into it, so overlapping requests of one guest do not lose chats.
func (s *GuestStore) Open(ctx context.Context, session string) (*GuestChats, error) {
	key := guestKeyPrefix + utils.HashString(session)

	data, err := s.backend.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, err := decodeGuestChats(data); err != nil {
		return nil, err
	}

	return &GuestChats{
		backend: s.backend,
		key:     key,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reset drops whatever is stored for a session, including corrupt data
func (s *GuestStore) Reset(ctx context.Context, session string) error {
	return s.backend.Delete(ctx, guestKeyPrefix+utils.HashString(session))
}

// GuestChats is one guest session's chat set
type GuestChats struct {
	backend GuestBackend
	key     string
	now     func() time.Time
}

// List returns the session's chats, most recently updated first
func (g *GuestChats) List(ctx context.Context) ([]*models.Chat, error) {
	chats, err := g.load(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (g *GuestChats) Get(ctx context.Context, id string) (*models.Chat, error) {
	chats, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOfChat(chats, id); i >= 0 {
		return chats[i], nil
	}
	return nil, ErrChatNotFound
}

func (g *GuestChats) Create(ctx context.Context, chat *models.Chat) (*models.Chat, error) {
	if err := chat.Validate(); err != nil {
		return nil, err
	}

	now := g.now()
	stored := &models.Chat{
		ID:        chat.ID,
		Title:     chat.Title,
		Messages:  chat.Messages.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := g.mutate(ctx, func(chats []*models.Chat) ([]*models.Chat, error) {
		if indexOfChat(chats, chat.ID) >= 0 {
			return nil, ErrChatExists
		}
		return append(chats, stored), nil
	})
	if err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

func (g *GuestChats) Update(ctx context.Context, id string, messages models.Messages) (*models.Chat, error) {
	if err := messages.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Chat
	err := g.mutate(ctx, func(chats []*models.Chat) ([]*models.Chat, error) {
		i := indexOfChat(chats, id)
		if i < 0 {
			return nil, ErrChatNotFound
		}
		updated = chats[i]
		updated.Messages = messages.Clone()
		updated.UpdatedAt = g.now()
		return chats, nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (g *GuestChats) Delete(ctx context.Context, id string) error {
	return g.mutate(ctx, func(chats []*models.Chat) ([]*models.Chat, error) {
		i := indexOfChat(chats, id)
		if i < 0 {
			return nil, ErrChatNotFound
		}
		return append(chats[:i], chats[i+1:]...), nil
	})
}

// Clear removes every chat of the session
func (g *GuestChats) Clear(ctx context.Context) error {
	return g.backend.Delete(ctx, g.key)
}

func (g *GuestChats) load(ctx context.Context) ([]*models.Chat, error) {
	data, err := g.backend.Load(ctx, g.key)
	if err != nil {
		return nil, err
	}
	return decodeGuestChats(data)
}

// mutate applies fn to the freshly stored set and writes the result back
func (g *GuestChats) mutate(ctx context.Context, fn func(chats []*models.Chat) ([]*models.Chat, error)) error {
	return g.backend.Update(ctx, g.key, func(current []byte) ([]byte, error) {
		chats, err := decodeGuestChats(current)
		if err != nil {
			return nil, err
		}
		next, err := fn(chats)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("failed to encode guest chats: %w", err)
		}
		return data, nil
	})
}

func decodeGuestChats(data []byte) ([]*models.Chat, error) {
	chats := []*models.Chat{}
	if len(data) == 0 {
		return chats, nil
	}
	if err := json.Unmarshal(data, &chats); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptGuestData, err)
	}
	return chats, nil
}

func indexOfChat(chats []*models.Chat, id string) int {
	for i, chat := range chats {
		if chat.ID == id {
			return i
		}
	}
	return -1
}
