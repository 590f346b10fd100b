package server

import (
	"context"
	"time"

	"github.com/joshyvodetaene/chatual-sub000/internal/bus"
	"github.com/joshyvodetaene/chatual-sub000/internal/metrics"
	"github.com/joshyvodetaene/chatual-sub000/internal/protocol"
)

// broadcastToRoom delivers the frame to every live connection currently
// in the room, across all devices, optionally excluding one user.
// Delivery is best-effort per connection: a failed enqueue flags that
// connection dead (fast-tracking its reap) and never aborts the rest.
// relay controls whether the frame is also published cross-instance.
func (e *Engine) broadcastToRoom(roomID string, frame any, excludeUserID string, relay bool) {
	payload, err := protocol.Marshal(frame)
	if err != nil {
		e.log.Error("broadcast marshal", "room", roomID, "err", err)
		return
	}
	e.deliverToRoom(roomID, payload, excludeUserID)

	if relay && e.relay != nil {
		ev := bus.Event{
			Origin:        e.instanceID,
			RoomID:        roomID,
			ExcludeUserID: excludeUserID,
			Payload:       payload,
		}
		go func() {
			if err := e.relay.Publish(context.Background(), ev); err != nil {
				e.log.Warn("relay publish", "room", roomID, "err", err)
			}
		}()
	}
}

// deliverToRoom fans a marshaled payload out to the local connections in
// a room. Also the entry point for frames arriving from the relay.
func (e *Engine) deliverToRoom(roomID string, payload []byte, excludeUserID string) {
	now := time.Now()

	e.mu.Lock()
	var targets []*Conn
	for _, c := range e.registry.AllConnections() {
		if c.roomID != roomID {
			continue
		}
		if excludeUserID != "" && c.userID == excludeUserID {
			continue
		}
		if !c.live(now, e.cfg.Heartbeat.ReapTimeout) {
			continue
		}
		targets = append(targets, c)
	}
	e.mu.Unlock()

	metrics.BroadcastsTotal.Inc()
	e.sendAll(targets, payload)
}

// SendToUser delivers a frame to every live connection of one user
// regardless of room. Reports whether at least one connection took it,
// so callers can fall back to an offline-notification path. This is the
// Broadcaster.toUser surface the CRUD layer pushes through.
func (e *Engine) SendToUser(userID string, frame any) bool {
	payload, err := protocol.Marshal(frame)
	if err != nil {
		e.log.Error("user send marshal", "user", userID, "err", err)
		return false
	}
	now := time.Now()

	e.mu.Lock()
	var targets []*Conn
	for _, c := range e.registry.ConnectionsOf(userID) {
		if c.live(now, e.cfg.Heartbeat.ReapTimeout) {
			targets = append(targets, c)
		}
	}
	e.mu.Unlock()

	metrics.BroadcastsTotal.Inc()
	return e.sendAll(targets, payload) > 0
}

// DeliverFromRelay injects a payload published by another instance into
// the local room, without re-publishing.
func (e *Engine) DeliverFromRelay(ev bus.Event) {
	e.deliverToRoom(ev.RoomID, ev.Payload, ev.ExcludeUserID)
}

// sendToConn delivers a frame to a single connection.
func (e *Engine) sendToConn(c *Conn, frame any) bool {
	payload, err := protocol.Marshal(frame)
	if err != nil {
		e.log.Error("send marshal", "conn", c.id, "err", err)
		return false
	}
	return e.sendAll([]*Conn{c}, payload) > 0
}

// sendAll enqueues the payload on each connection, flagging failures
// dead for the next heartbeat cycle. Returns the delivered count.
func (e *Engine) sendAll(targets []*Conn, payload []byte) int {
	delivered := 0
	var failed []*Conn
	for _, c := range targets {
		if err := c.peer.Enqueue(payload); err != nil {
			failed = append(failed, c)
			continue
		}
		delivered++
	}
	if len(failed) > 0 {
		e.mu.Lock()
		for _, c := range failed {
			c.alive = false
			e.log.Warn("send failed, connection flagged dead", "conn", c.id, "user", c.userID)
		}
		e.mu.Unlock()
	}
	return delivered
}
