package server

import (
	"time"
)

// Registry is the authoritative mapping from user identity to live
// connections, with a reverse index by connection id for O(1) lookup on
// transport close. It carries no lock of its own: the owning engine
// serializes every mutation (see Engine.mu).
type Registry struct {
	byUser map[string]map[string]*Conn
	byConn map[string]*Conn
}

// NewRegistry initializes an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Conn),
		byConn: make(map[string]*Conn),
	}
}

// Track indexes a connection by id before it is identified. Anonymous
// connections are probed and reaped like any other.
func (r *Registry) Track(c *Conn) {
	r.byConn[c.id] = c
}

// Register adds the connection to the user's set, creating the set if
// absent. Reports whether this is the user's first connection, the 0→1
// transition callers persist as "user online" exactly once.
func (r *Registry) Register(userID string, c *Conn) (firstConnection bool) {
	r.byConn[c.id] = c
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]*Conn)
		r.byUser[userID] = set
	}
	set[c.id] = c
	return !ok
}

// Unregister removes a connection by id. Unknown ids are a no-op: the
// transport close callback and the heartbeat reaper may race on the same
// connection and both must succeed. Reports the removed connection (nil
// if unknown) and whether its user is now fully offline.
func (r *Registry) Unregister(connID string) (c *Conn, userOffline bool) {
	c, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(r.byConn, connID)

	if c.userID == "" {
		return c, false
	}
	set, ok := r.byUser[c.userID]
	if !ok {
		return c, false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byUser, c.userID)
		return c, true
	}
	return c, false
}

// Get returns the connection for an id, nil if unknown.
func (r *Registry) Get(connID string) *Conn {
	return r.byConn[connID]
}

// ConnectionsOf returns a copied snapshot of the user's connections, so
// callers can iterate without holding the engine lock against mutation.
func (r *Registry) ConnectionsOf(userID string) []*Conn {
	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// AllConnections returns a copied snapshot of every tracked connection.
func (r *Registry) AllConnections() []*Conn {
	conns := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		conns = append(conns, c)
	}
	return conns
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string, now time.Time, reapTimeout time.Duration) bool {
	for _, c := range r.byUser[userID] {
		if c.live(now, reapTimeout) {
			return true
		}
	}
	return false
}

// UserLiveInRoom reports whether the user has a live connection currently
// in the room, ignoring excludeConnID. This is the check that keeps
// join/leave broadcasts to one per 0→1 / 1→0 transition when a user has
// several devices in the same room.
func (r *Registry) UserLiveInRoom(userID, roomID, excludeConnID string, now time.Time, reapTimeout time.Duration) bool {
	for _, c := range r.byUser[userID] {
		if c.id == excludeConnID {
			continue
		}
		if c.roomID == roomID && c.live(now, reapTimeout) {
			return true
		}
	}
	return false
}

// OnlineUserCount returns the number of users with at least one
// connection, identified connections only.
func (r *Registry) OnlineUserCount() int {
	return len(r.byUser)
}
