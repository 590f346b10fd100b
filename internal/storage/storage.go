package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// User represents a persisted account record. The engine only ever mutates
// the online flag; everything else belongs to the CRUD layer.
type User struct {
	ID         string
	Username   string
	Online     bool
	LastSeenAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Room represents a persisted chat room.
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID               string
	RoomID           string
	AuthorID         string
	Content          string
	PhotoRef         string
	Kind             string
	MentionedUserIDs []string
	CreatedAt        time.Time
	Author           *User
}

// MessageStore provides durable create/read of chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// UserDirectory exposes the user records the engine touches.
type UserDirectory interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	SetOnline(ctx context.Context, userID string, online bool) error
}

// RoomMembership resolves durable room membership, used to decide which
// members are absent when a message needs an offline notification.
type RoomMembership interface {
	CreateRoom(ctx context.Context, room *Room) error
	AddMember(ctx context.Context, roomID, userID string) error
	MembersOf(ctx context.Context, roomID string) ([]string, error)
}

// Store aggregates the persistence operations used by the server.
type Store interface {
	Close() error
	Migrate(ctx context.Context) error

	MessageStore
	UserDirectory
	RoomMembership
}
