package server

import (
	"sort"
)

// PresenceIndex is the derived room → online-users view, kept
// incrementally in sync with the registry and rebuilt by Reconcile when
// drift is suspected. It stores user ids, never connection ids: a user
// with five devices in a room appears once. Like the registry it has no
// lock of its own; the engine serializes access.
type PresenceIndex struct {
	rooms map[string]map[string]struct{}
}

// NewPresenceIndex initializes an empty index.
func NewPresenceIndex() *PresenceIndex {
	return &PresenceIndex{rooms: make(map[string]map[string]struct{})}
}

// Add marks the user present in the room. Reports whether the set
// changed; adding an already-present user is a no-op so a second device
// joining the same room broadcasts nothing.
func (p *PresenceIndex) Add(roomID, userID string) bool {
	set, ok := p.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		p.rooms[roomID] = set
	}
	if _, present := set[userID]; present {
		return false
	}
	set[userID] = struct{}{}
	return true
}

// Remove clears the user from the room, dropping empty room entries.
// Reports whether the set changed.
func (p *PresenceIndex) Remove(roomID, userID string) bool {
	set, ok := p.rooms[roomID]
	if !ok {
		return false
	}
	if _, present := set[userID]; !present {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(p.rooms, roomID)
	}
	return true
}

// Contains reports whether the user is recorded present in the room.
func (p *PresenceIndex) Contains(roomID, userID string) bool {
	_, present := p.rooms[roomID][userID]
	return present
}

// UsersOf returns a sorted snapshot of the room's online user ids.
func (p *PresenceIndex) UsersOf(roomID string) []string {
	set := p.rooms[roomID]
	users := make([]string, 0, len(set))
	for userID := range set {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Rooms returns a snapshot of every room id with recorded presence.
func (p *PresenceIndex) Rooms() []string {
	rooms := make([]string, 0, len(p.rooms))
	for roomID := range p.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// Replace swaps the room's user set with the ground-truth set computed
// from the registry, reporting whether anything differed. This is the
// reconciliation primitive that bounds drift.
func (p *PresenceIndex) Replace(roomID string, users map[string]struct{}) bool {
	current := p.rooms[roomID]
	if len(current) == len(users) {
		same := true
		for userID := range users {
			if _, ok := current[userID]; !ok {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	if len(users) == 0 {
		delete(p.rooms, roomID)
	} else {
		p.rooms[roomID] = users
	}
	return true
}
