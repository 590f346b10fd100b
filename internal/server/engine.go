package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joshyvodetaene/chatual-sub000/internal/bus"
	"github.com/joshyvodetaene/chatual-sub000/internal/config"
	"github.com/joshyvodetaene/chatual-sub000/internal/metrics"
	"github.com/joshyvodetaene/chatual-sub000/internal/notify"
	"github.com/joshyvodetaene/chatual-sub000/internal/protocol"
	"github.com/joshyvodetaene/chatual-sub000/internal/storage"
)

// Relay publishes room events to other server instances. Optional; nil
// means single-instance deployment.
type Relay interface {
	Publish(ctx context.Context, ev bus.Event) error
}

// Deps collects the external collaborators the engine consumes.
type Deps struct {
	Messages   storage.MessageStore
	Users      storage.UserDirectory
	Membership storage.RoomMembership
	Notifier   notify.Dispatcher
	Relay      Relay
	Logger     *slog.Logger
}

// Engine owns the connection registry and the presence index. Every
// mutation of either goes through the single mutex here; persistence and
// notification calls happen outside it, and broadcasts read a fresh
// snapshot after any such call.
type Engine struct {
	cfg        config.ServerConfig
	log        *slog.Logger
	messages   storage.MessageStore
	users      storage.UserDirectory
	membership storage.RoomMembership
	notifier   notify.Dispatcher
	relay      Relay
	instanceID string

	mu       sync.Mutex
	registry *Registry
	presence *PresenceIndex
	closed   bool
}

// NewEngine constructs the engine with its collaborators.
func NewEngine(cfg config.ServerConfig, deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewLogDispatcher(log)
	}
	return &Engine{
		cfg:        cfg,
		log:        log,
		messages:   deps.Messages,
		users:      deps.Users,
		membership: deps.Membership,
		notifier:   notifier,
		relay:      deps.Relay,
		instanceID: uuid.NewString(),
		registry:   NewRegistry(),
		presence:   NewPresenceIndex(),
	}
}

// InstanceID identifies this process on the cross-instance relay.
func (e *Engine) InstanceID() string { return e.instanceID }

// AddConnection creates a Conn for an accepted transport session.
// tokenUserID, when non-empty, is the identity the handshake token
// vouched for; a later join for a different user is rejected.
func (e *Engine) AddConnection(peer Peer, tokenUserID string) *Conn {
	now := time.Now()
	c := &Conn{
		id:           uuid.NewString(),
		tokenUserID:  tokenUserID,
		alive:        true,
		lastActivity: now,
		createdAt:    now,
		peer:         peer,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = peer.Close(CloseGoingAway, "shutting down")
		return c
	}
	e.registry.Track(c)
	e.mu.Unlock()

	metrics.ActiveConnections.Inc()
	e.log.Debug("connection accepted", "conn", c.id, "remote", peer.RemoteAddr())
	return c
}

// MarkAlive records a liveness signal (transport pong or any inbound
// frame) for the connection.
func (e *Engine) MarkAlive(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.registry.Get(connID); c != nil {
		c.touch(time.Now())
	}
}

// CloseConnection is the single teardown path for every trigger:
// transport close, heartbeat reap, and process shutdown all end here.
// Calling it twice for the same id is a no-op the second time.
func (e *Engine) CloseConnection(connID, reason string) {
	now := time.Now()

	e.mu.Lock()
	c, userOffline := e.registry.Unregister(connID)
	if c == nil {
		e.mu.Unlock()
		return
	}
	userID, roomID := c.userID, c.roomID
	c.roomID = ""
	c.alive = false

	var leftRoom bool
	var snapshot []string
	if userID != "" && roomID != "" &&
		!e.registry.UserLiveInRoom(userID, roomID, connID, now, e.cfg.Heartbeat.ReapTimeout) {
		leftRoom = e.presence.Remove(roomID, userID)
		snapshot = e.presence.UsersOf(roomID)
	}
	metrics.OnlineUsers.Set(float64(e.registry.OnlineUserCount()))
	e.mu.Unlock()

	metrics.ActiveConnections.Dec()
	_ = c.peer.Close(CloseNormal, reason)
	e.log.Info("connection closed", "conn", connID, "user", userID, "reason", reason)

	if leftRoom {
		e.broadcastToRoom(roomID, protocol.NewUserLeft(roomID, userID), "", true)
		e.broadcastToRoom(roomID, protocol.NewRoomOnlineUsers(roomID, snapshot), "", true)
	}
	if userOffline {
		go e.persistOnline(userID, false)
	}
	if roomID != "" {
		e.Reconcile(roomID)
	}
}

// Reconcile rebuilds the room's presence set from registry ground truth
// and broadcasts a snapshot only when the cached set had drifted.
func (e *Engine) Reconcile(roomID string) {
	now := time.Now()

	e.mu.Lock()
	truth := make(map[string]struct{})
	for _, c := range e.registry.AllConnections() {
		if c.userID != "" && c.roomID == roomID && c.live(now, e.cfg.Heartbeat.ReapTimeout) {
			truth[c.userID] = struct{}{}
		}
	}
	changed := e.presence.Replace(roomID, truth)
	snapshot := e.presence.UsersOf(roomID)
	e.mu.Unlock()

	if changed {
		e.log.Debug("presence reconciled", "room", roomID, "online", len(snapshot))
		e.broadcastToRoom(roomID, protocol.NewRoomOnlineUsers(roomID, snapshot), "", true)
	}
}

// IsOnline reports whether the user has at least one live connection.
// Part of the surface the CRUD layer consumes.
func (e *Engine) IsOnline(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.IsOnline(userID, time.Now(), e.cfg.Heartbeat.ReapTimeout)
}

// OnlineUsersOf returns the presence snapshot for a room.
func (e *Engine) OnlineUsersOf(roomID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.UsersOf(roomID)
}

// Shutdown closes every live connection with a going-away status and
// clears the registry and index. A restart is equivalent to everyone
// disconnecting.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	conns := e.registry.AllConnections()
	e.registry = NewRegistry()
	e.presence = NewPresenceIndex()
	metrics.OnlineUsers.Set(0)
	e.mu.Unlock()

	for _, c := range conns {
		_ = c.peer.Close(CloseGoingAway, "server shutting down")
		metrics.ActiveConnections.Dec()
	}
	e.log.Info("engine shut down", "connections_closed", len(conns))
}

// persistOnline records the user's online transition. Failures are
// logged; in-memory presence stays correct regardless.
func (e *Engine) persistOnline(userID string, online bool) {
	if e.users == nil {
		return
	}
	if err := e.users.SetOnline(context.Background(), userID, online); err != nil {
		metrics.StoreErrorsTotal.Inc()
		e.log.Error("persist online status", "user", userID, "online", online, "err", err)
	}
}
