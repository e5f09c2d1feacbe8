package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyris/internal/models"
	"cyris/internal/utils"
)

const testSession = "guest-session-0123456789abcdef"

func guestBackends(t *testing.T) map[string]func(t *testing.T) (GuestBackend, *miniredis.Miniredis) {
	return map[string]func(t *testing.T) (GuestBackend, *miniredis.Miniredis){
		"memory": func(t *testing.T) (GuestBackend, *miniredis.Miniredis) {
			return NewMemoryGuestBackend(time.Hour), nil
		},
		"redis": func(t *testing.T) (GuestBackend, *miniredis.Miniredis) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisGuestBackend(client, time.Hour), mr
		},
	}
}

func guestChat(id string) *models.Chat {
	return &models.Chat{
		ID:       id,
		Title:    "Guest chat",
		Messages: models.Messages{models.UserMessage("hi"), models.AssistantMessage("hello", "")},
	}
}

func TestGuestStore_FlushesOnWrite(t *testing.T) {
	ctx := context.Background()

	for name, newBackend := range guestBackends(t) {
		t.Run(name, func(t *testing.T) {
			backend, _ := newBackend(t)
			store := NewGuestStore(backend)

			first, err := store.Open(ctx, testSession)
			require.NoError(t, err)
			list, err := first.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			_, err = first.Create(ctx, guestChat("g1"))
			require.NoError(t, err)
			_, err = first.Update(ctx, "g1", append(guestChat("g1").Messages, models.UserMessage("more")))
			require.NoError(t, err)

			second, err := store.Open(ctx, testSession)
			require.NoError(t, err)
			got, err := second.Get(ctx, "g1")
			require.NoError(t, err)
			assert.Len(t, got.Messages, 3)

			other, err := store.Open(ctx, "another-session-0123456789")
			require.NoError(t, err)
			_, err = other.Get(ctx, "g1")
			assert.ErrorIs(t, err, ErrChatNotFound)
		})
	}
}

func TestGuestStore_OverlappingViewsKeepEveryChat(t *testing.T) {
	ctx := context.Background()

	for name, newBackend := range guestBackends(t) {
		t.Run(name, func(t *testing.T) {
			backend, _ := newBackend(t)
			store := NewGuestStore(backend)

			// a send on chat "a" is still in flight while chat "b" is started
			slow, err := store.Open(ctx, testSession)
			require.NoError(t, err)
			_, err = slow.Create(ctx, guestChat("a"))
			require.NoError(t, err)

			fast, err := store.Open(ctx, testSession)
			require.NoError(t, err)
			_, err = fast.Create(ctx, guestChat("b"))
			require.NoError(t, err)

			_, err = slow.Update(ctx, "a", append(guestChat("a").Messages, models.UserMessage("more")))
			require.NoError(t, err)

			// the older view sees the chat created after it was opened
			got, err := slow.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, "b", got.ID)

			fresh, err := store.Open(ctx, testSession)
			require.NoError(t, err)
			list, err := fresh.List(ctx)
			require.NoError(t, err)
			ids := make([]string, 0, len(list))
			for _, c := range list {
				ids = append(ids, c.ID)
			}
			assert.ElementsMatch(t, []string{"a", "b"}, ids)

			a, err := fresh.Get(ctx, "a")
			require.NoError(t, err)
			assert.Len(t, a.Messages, 3)
		})
	}
}

func TestGuestStore_ConcurrentCreates(t *testing.T) {
	ctx := context.Background()

	for name, newBackend := range guestBackends(t) {
		t.Run(name, func(t *testing.T) {
			backend, _ := newBackend(t)
			store := NewGuestStore(backend)

			const n = 8
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					view, err := store.Open(ctx, testSession)
					if err != nil {
						errs <- err
						return
					}
					_, err = view.Create(ctx, guestChat(fmt.Sprintf("c%d", i)))
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			view, err := store.Open(ctx, testSession)
			require.NoError(t, err)
			list, err := view.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, n)
		})
	}
}

func TestGuestStore_CRUDErrors(t *testing.T) {
	ctx := context.Background()
	guest, err := NewGuestStore(NewMemoryGuestBackend(0)).Open(ctx, testSession)
	require.NoError(t, err)

	_, err = guest.Create(ctx, guestChat("g1"))
	require.NoError(t, err)

	_, err = guest.Create(ctx, guestChat("g1"))
	assert.ErrorIs(t, err, ErrChatExists)

	_, err = guest.Update(ctx, "missing", models.Messages{models.UserMessage("x")})
	assert.ErrorIs(t, err, ErrChatNotFound)

	assert.ErrorIs(t, guest.Delete(ctx, "missing"), ErrChatNotFound)
	require.NoError(t, guest.Delete(ctx, "g1"))

	list, err := guest.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGuestStore_Clear(t *testing.T) {
	ctx := context.Background()

	for name, newBackend := range guestBackends(t) {
		t.Run(name, func(t *testing.T) {
			backend, _ := newBackend(t)
			store := NewGuestStore(backend)

			guest, err := store.Open(ctx, testSession)
			require.NoError(t, err)
			_, err = guest.Create(ctx, guestChat("g1"))
			require.NoError(t, err)

			require.NoError(t, guest.Clear(ctx))

			list, err := guest.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			reopened, err := store.Open(ctx, testSession)
			require.NoError(t, err)
			list, err = reopened.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestGuestStore_KeyIsHashed(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	guest, err := NewGuestStore(NewRedisGuestBackend(client, time.Hour)).Open(ctx, testSession)
	require.NoError(t, err)
	_, err = guest.Create(ctx, guestChat("g1"))
	require.NoError(t, err)

	key := "cyrisUserChats:" + utils.HashString(testSession)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
	for _, k := range mr.Keys() {
		assert.NotContains(t, k, testSession)
	}
}

func TestGuestStore_RejectsUnknownRoles(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryGuestBackend(0)
	key := "cyrisUserChats:" + utils.HashString(testSession)
	seedGuestBlob(t, backend, key, `[{"id":"g1","title":"t","messages":[{"role":"tool","content":"x"}]}]`)

	store := NewGuestStore(backend)
	_, err := store.Open(ctx, testSession)
	assert.ErrorIs(t, err, ErrCorruptGuestData)

	require.NoError(t, store.Reset(ctx, testSession))
	chats, err := store.Open(ctx, testSession)
	require.NoError(t, err)
	list, err := chats.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func seedGuestBlob(t *testing.T, backend GuestBackend, key, data string) {
	t.Helper()
	require.NoError(t, backend.Update(context.Background(), key, func([]byte) ([]byte, error) {
		return []byte(data), nil
	}))
}

type failingGuestBackend struct {
	*MemoryGuestBackend
}

func (f failingGuestBackend) Update(ctx context.Context, key string, fn GuestUpdateFunc) error {
	return errors.New("redis unavailable")
}

func TestGuestStore_FailedFlushKeepsState(t *testing.T) {
	ctx := context.Background()
	guest, err := NewGuestStore(failingGuestBackend{NewMemoryGuestBackend(0)}).Open(ctx, testSession)
	require.NoError(t, err)

	_, err = guest.Create(ctx, guestChat("g1"))
	assert.Error(t, err)

	_, err = guest.Get(ctx, "g1")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestMemoryGuestBackend_Expires(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryGuestBackend(10 * time.Millisecond)

	seedGuestBlob(t, backend, "k", "v")
	time.Sleep(20 * time.Millisecond)

	data, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, data)
}
