package server

import (
	"time"
)

// WebSocket close codes used by the engine (RFC 6455).
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
)

// Peer is the transport half of a connection. Enqueue and Ping must be
// safe for concurrent use; delivery order follows enqueue order.
type Peer interface {
	// Enqueue hands a frame to the outbound queue without blocking.
	// A full queue or closed transport returns an error; the engine
	// treats that as a send failure and flags the connection dead.
	Enqueue(payload []byte) error
	// Ping sends a transport-level liveness probe.
	Ping() error
	// Close tears down the transport with the given close code.
	Close(code int, reason string) error
	// IsOpen reports whether the transport is still usable.
	IsOpen() bool
	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}

// Conn is one live transport session: at most one current room, owned by
// at most one user, with the liveness state the heartbeat cycle drives.
// All fields are guarded by the engine mutex; only the peer is safe to
// touch without it.
type Conn struct {
	id           string
	userID       string // bound by the first join frame, empty until then
	tokenUserID  string // pre-bound by the handshake token, may be empty
	roomID       string
	alive        bool
	lastActivity time.Time
	createdAt    time.Time
	peer         Peer
}

// ID returns the opaque connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the owning user id, empty while anonymous.
func (c *Conn) UserID() string { return c.userID }

// RoomID returns the current room id, empty when not in a room.
func (c *Conn) RoomID() string { return c.roomID }

// live reports whether the connection still counts as alive: the
// transport is open and either the last probe was answered or there was
// activity within the reap window. A single missed pong is not enough
// to count a connection dead.
func (c *Conn) live(now time.Time, reapTimeout time.Duration) bool {
	if !c.peer.IsOpen() {
		return false
	}
	return c.alive || now.Sub(c.lastActivity) <= reapTimeout
}

// reapable is the inverse of live, named for the heartbeat cycle.
func (c *Conn) reapable(now time.Time, reapTimeout time.Duration) bool {
	return !c.live(now, reapTimeout)
}

func (c *Conn) touch(now time.Time) {
	c.alive = true
	c.lastActivity = now
}
