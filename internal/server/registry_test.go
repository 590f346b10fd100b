package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConn(id, userID, roomID string) *Conn {
	now := time.Now()
	return &Conn{
		id:           id,
		userID:       userID,
		roomID:       roomID,
		alive:        true,
		lastActivity: now,
		createdAt:    now,
		peer:         newFakePeer(),
	}
}

func TestRegistryRegisterTransitions(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	timeout := 3 * time.Minute

	first := testConn("c1", "alice", "lobby")
	second := testConn("c2", "alice", "lobby")

	assert.True(t, r.Register("alice", first))
	assert.False(t, r.Register("alice", second))
	assert.True(t, r.IsOnline("alice", now, timeout))
	assert.Equal(t, 1, r.OnlineUserCount())
	assert.Len(t, r.ConnectionsOf("alice"), 2)

	c, offline := r.Unregister("c1")
	assert.Same(t, first, c)
	assert.False(t, offline)

	c, offline = r.Unregister("c2")
	assert.Same(t, second, c)
	assert.True(t, offline)
	assert.False(t, r.IsOnline("alice", now, timeout))
	assert.Equal(t, 0, r.OnlineUserCount())
}

func TestRegistryUnregisterUnknown(t *testing.T) {
	r := NewRegistry()
	c, offline := r.Unregister("nope")
	assert.Nil(t, c)
	assert.False(t, offline)
}

func TestRegistryTrackAnonymous(t *testing.T) {
	r := NewRegistry()
	c := testConn("c1", "", "")
	r.Track(c)

	assert.Same(t, c, r.Get("c1"))
	assert.Equal(t, 0, r.OnlineUserCount())

	got, offline := r.Unregister("c1")
	assert.Same(t, c, got)
	assert.False(t, offline)
	assert.Nil(t, r.Get("c1"))
}

func TestRegistryUserLiveInRoom(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	timeout := 3 * time.Minute

	lobby := testConn("c1", "alice", "lobby")
	garden := testConn("c2", "alice", "garden")
	r.Register("alice", lobby)
	r.Register("alice", garden)

	assert.True(t, r.UserLiveInRoom("alice", "lobby", "", now, timeout))
	// The excluded connection is the only one in lobby.
	assert.False(t, r.UserLiveInRoom("alice", "lobby", "c1", now, timeout))
	assert.True(t, r.UserLiveInRoom("alice", "garden", "c1", now, timeout))
	assert.False(t, r.UserLiveInRoom("alice", "attic", "", now, timeout))
}

func TestRegistryLivenessWindow(t *testing.T) {
	r := NewRegistry()
	timeout := 3 * time.Minute
	now := time.Now()

	c := testConn("c1", "alice", "lobby")
	r.Register("alice", c)

	// Missed probe but recent activity still counts as live.
	c.alive = false
	c.lastActivity = now.Add(-time.Minute)
	assert.True(t, r.IsOnline("alice", now, timeout))

	// Missed probe and silent past the window does not.
	c.lastActivity = now.Add(-4 * time.Minute)
	assert.False(t, r.IsOnline("alice", now, timeout))

	// A closed transport is dead no matter how recent the activity.
	c.touch(now)
	_ = c.peer.Close(CloseNormal, "test")
	assert.False(t, r.IsOnline("alice", now, timeout))
}
