package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshyvodetaene/chatual-sub000/internal/config"
	"github.com/joshyvodetaene/chatual-sub000/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestMessageRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		msg := storage.Message{
			ID:        uuid.NewString(),
			RoomID:    "lobby",
			AuthorID:  "u1",
			Content:   content,
			Kind:      "text",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.CreateMessage(ctx, &msg))
	}
	other := storage.Message{
		ID:        uuid.NewString(),
		RoomID:    "garden",
		AuthorID:  "u2",
		Content:   "elsewhere",
		Kind:      "text",
		CreatedAt: base,
	}
	require.NoError(t, store.CreateMessage(ctx, &other))

	messages, err := store.ListRoomMessages(ctx, "lobby", 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "third", messages[2].Content)

	limited, err := store.ListRoomMessages(ctx, "lobby", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "second", limited[0].Content)
	assert.Equal(t, "third", limited[1].Content)
}

func TestMessageMentions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := storage.Message{
		ID:               uuid.NewString(),
		RoomID:           "lobby",
		AuthorID:         "u1",
		Content:          "hey @u2",
		Kind:             "text",
		MentionedUserIDs: []string{"u2", "u3"},
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, store.CreateMessage(ctx, &msg))

	messages, err := store.ListRoomMessages(ctx, "lobby", 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"u2", "u3"}, messages[0].MentionedUserIDs)
}

func TestSetOnline(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := storage.User{
		ID:        "u1",
		Username:  "ada",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateUser(ctx, &user))

	require.NoError(t, store.SetOnline(ctx, "u1", true))
	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.Online)

	require.NoError(t, store.SetOnline(ctx, "u1", false))
	got, err = store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Online)
	assert.False(t, got.LastSeenAt.IsZero())
}

func TestGetUserNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRoomMembership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	room := storage.Room{ID: "lobby", Name: "Lobby", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateRoom(ctx, &room))
	require.NoError(t, store.AddMember(ctx, "lobby", "u1"))
	require.NoError(t, store.AddMember(ctx, "lobby", "u2"))

	members, err := store.MembersOf(ctx, "lobby")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)

	members, err = store.MembersOf(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, members)
}
