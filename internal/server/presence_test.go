package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceAddRemove(t *testing.T) {
	p := NewPresenceIndex()

	assert.True(t, p.Add("lobby", "alice"))
	assert.False(t, p.Add("lobby", "alice"))
	assert.True(t, p.Add("lobby", "bob"))
	assert.True(t, p.Contains("lobby", "alice"))
	assert.Equal(t, []string{"alice", "bob"}, p.UsersOf("lobby"))

	assert.True(t, p.Remove("lobby", "alice"))
	assert.False(t, p.Remove("lobby", "alice"))
	assert.False(t, p.Remove("attic", "alice"))
	assert.Equal(t, []string{"bob"}, p.UsersOf("lobby"))
}

func TestPresenceEmptyRoomsDropped(t *testing.T) {
	p := NewPresenceIndex()

	p.Add("lobby", "alice")
	p.Add("garden", "bob")
	assert.Equal(t, []string{"garden", "lobby"}, p.Rooms())

	p.Remove("lobby", "alice")
	assert.Equal(t, []string{"garden"}, p.Rooms())
	assert.Empty(t, p.UsersOf("lobby"))
}

func TestPresenceUserInMultipleRooms(t *testing.T) {
	p := NewPresenceIndex()

	p.Add("lobby", "alice")
	p.Add("garden", "alice")
	p.Remove("lobby", "alice")

	assert.False(t, p.Contains("lobby", "alice"))
	assert.True(t, p.Contains("garden", "alice"))
}

func TestPresenceReplace(t *testing.T) {
	p := NewPresenceIndex()
	p.Add("lobby", "alice")
	p.Add("lobby", "ghost")

	truth := map[string]struct{}{"alice": {}, "bob": {}}
	assert.True(t, p.Replace("lobby", truth))
	assert.Equal(t, []string{"alice", "bob"}, p.UsersOf("lobby"))

	// Same set again is a no-op.
	assert.False(t, p.Replace("lobby", map[string]struct{}{"alice": {}, "bob": {}}))

	// Replacing with nothing drops the room.
	assert.True(t, p.Replace("lobby", nil))
	assert.Empty(t, p.Rooms())
	assert.False(t, p.Replace("lobby", nil))
}
