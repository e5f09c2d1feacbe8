package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyris/internal/models"
	"cyris/internal/storage"
)

func localChat(id string) *models.Chat {
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return &models.Chat{
		ID:        id,
		Title:     "Local " + id,
		Messages:  models.Messages{models.UserMessage("hi"), models.AssistantMessage("hello", "openai/gpt-4o-mini")},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}
}

// flakyImporter fails for the listed ids and delegates the rest
type flakyImporter struct {
	Importer
	failIDs map[string]bool
}

func (f flakyImporter) Import(ctx context.Context, chat *models.Chat) (bool, error) {
	if f.failIDs[chat.ID] {
		return false, errors.New("write timeout")
	}
	return f.Importer.Import(ctx, chat)
}

func TestMigrator_Migrate(t *testing.T) {
	ctx := context.Background()
	account := storage.NewMemoryChatRepository().ForUser("alice")
	m := NewMigrator(nil)

	chats := []*models.Chat{localChat("a"), localChat("b")}

	first := m.Migrate(ctx, account, chats)
	assert.Equal(t, 2, first.Migrated)
	assert.Equal(t, 0, first.Skipped)
	assert.NoError(t, first.Err)

	second := m.Migrate(ctx, account, chats)
	assert.Equal(t, 0, second.Migrated)
	assert.Equal(t, 2, second.Skipped)

	got, err := account.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Local a", got.Title)
	assert.True(t, chats[0].CreatedAt.Equal(got.CreatedAt))
	assert.True(t, chats[0].UpdatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, chats[0].Messages, got.Messages)
}

func TestMigrator_ExistingIDIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	account := storage.NewMemoryChatRepository().ForUser("alice")

	existing := localChat("a")
	existing.Title = "Account copy"
	_, err := account.Create(ctx, existing)
	require.NoError(t, err)

	report := NewMigrator(nil).Migrate(ctx, account, []*models.Chat{localChat("a")})
	assert.Equal(t, 1, report.Skipped)

	list, err := account.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Account copy", list[0].Title)
}

func TestMigrator_PartialFailureContinues(t *testing.T) {
	ctx := context.Background()
	account := storage.NewMemoryChatRepository().ForUser("alice")
	dst := flakyImporter{Importer: account, failIDs: map[string]bool{"b": true}}

	invalid := localChat("c")
	invalid.Messages = models.Messages{{Role: "tool", Content: "x"}}

	report := NewMigrator(nil).Migrate(ctx, dst, []*models.Chat{localChat("a"), localChat("b"), invalid, localChat("d"), nil})
	assert.Equal(t, 2, report.Migrated)
	assert.Equal(t, 3, report.Failed)
	require.Error(t, report.Err)
	assert.Contains(t, report.Err.Error(), "write timeout")
	assert.ErrorIs(t, report.Err, models.ErrUnknownRole)
}

func TestMigrator_MigrateGuest(t *testing.T) {
	ctx := context.Background()

	openGuest := func(t *testing.T, chats ...*models.Chat) *storage.GuestChats {
		t.Helper()
		guest, err := storage.NewGuestStore(storage.NewMemoryGuestBackend(0)).Open(ctx, "guest-session-0123456789")
		require.NoError(t, err)
		for _, c := range chats {
			_, err := guest.Create(ctx, c)
			require.NoError(t, err)
		}
		return guest
	}

	t.Run("clears guest store on full success", func(t *testing.T) {
		account := storage.NewMemoryChatRepository().ForUser("alice")
		_, err := account.Create(ctx, localChat("a"))
		require.NoError(t, err)
		guest := openGuest(t, localChat("a"), localChat("b"))

		report, err := NewMigrator(nil).MigrateGuest(ctx, account, guest)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Migrated)
		assert.Equal(t, 1, report.Skipped)

		left, err := guest.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, left)

		all, err := account.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("retains guest store on partial failure", func(t *testing.T) {
		account := storage.NewMemoryChatRepository().ForUser("alice")
		guest := openGuest(t, localChat("a"), localChat("b"))
		dst := flakyImporter{Importer: account, failIDs: map[string]bool{"b": true}}

		report, err := NewMigrator(nil).MigrateGuest(ctx, dst, guest)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Migrated)
		assert.Equal(t, 1, report.Failed)

		left, err := guest.List(ctx)
		require.NoError(t, err)
		assert.Len(t, left, 2)

		// a retry moves only what is missing
		report, err = NewMigrator(nil).MigrateGuest(ctx, account, guest)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Migrated)
		assert.Equal(t, 1, report.Skipped)
	})

	t.Run("nothing to migrate", func(t *testing.T) {
		account := storage.NewMemoryChatRepository().ForUser("alice")
		_, err := NewMigrator(nil).MigrateGuest(ctx, account, openGuest(t))
		assert.ErrorIs(t, err, ErrNoChats)
	})
}
