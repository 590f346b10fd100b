package server

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joshyvodetaene/chatual-sub000/internal/metrics"
	"github.com/joshyvodetaene/chatual-sub000/internal/notify"
	"github.com/joshyvodetaene/chatual-sub000/internal/protocol"
	"github.com/joshyvodetaene/chatual-sub000/internal/storage"
)

// HandleFrame processes one inbound frame for a connection. The transport
// calls it from the connection's read goroutine, so one connection's
// frames are handled strictly in order; frames from different
// connections interleave freely. Errors never escape: protocol errors
// are logged and answered with an error frame where the action was
// client-initiated, and the connection stays open.
func (e *Engine) HandleFrame(connID string, raw []byte) {
	e.mu.Lock()
	c := e.registry.Get(connID)
	if c != nil {
		c.touch(time.Now())
	}
	e.mu.Unlock()
	if c == nil {
		return
	}

	frame, err := protocol.Decode(raw)
	if err != nil {
		e.log.Warn("frame dropped", "conn", connID, "err", err)
		e.sendToConn(c, protocol.NewError(protocol.ErrCodeBadFrame, "unreadable frame"))
		return
	}

	switch f := frame.(type) {
	case protocol.Join:
		metrics.FramesTotal.WithLabelValues(string(protocol.FrameTypeJoin)).Inc()
		e.handleJoin(c, f)
	case protocol.Leave:
		metrics.FramesTotal.WithLabelValues(string(protocol.FrameTypeLeave)).Inc()
		e.handleLeave(c, f)
	case protocol.Message:
		metrics.FramesTotal.WithLabelValues(string(protocol.FrameTypeMessage)).Inc()
		e.handleMessage(c, f)
	case protocol.Typing:
		metrics.FramesTotal.WithLabelValues(string(protocol.FrameTypeTyping)).Inc()
		e.handleTyping(c, f)
	case protocol.Ping:
		metrics.FramesTotal.WithLabelValues(string(protocol.FrameTypePing)).Inc()
		e.sendToConn(c, protocol.NewPong(time.Now()))
	}
}

// handleJoin binds identity and room on the connection. Broadcasting
// user_joined only on the user's 0→1 connection transition in the room
// is what keeps multi-device joins to a single announcement.
func (e *Engine) handleJoin(c *Conn, f protocol.Join) {
	userID := strings.TrimSpace(f.UserID)
	roomID := strings.TrimSpace(f.RoomID)
	if userID == "" || roomID == "" {
		e.sendToConn(c, protocol.NewError(protocol.ErrCodeBadFrame, "userId and roomId required"))
		return
	}
	now := time.Now()

	e.mu.Lock()
	if c.tokenUserID != "" && c.tokenUserID != userID {
		e.mu.Unlock()
		e.log.Warn("join identity mismatch", "conn", c.id, "token_user", c.tokenUserID, "join_user", userID)
		e.sendToConn(c, protocol.NewError(protocol.ErrCodeIdentity, "token bound to another user"))
		return
	}
	if c.userID != "" && c.userID != userID {
		e.mu.Unlock()
		e.log.Warn("join rebind rejected", "conn", c.id, "bound_user", c.userID, "join_user", userID)
		e.sendToConn(c, protocol.NewError(protocol.ErrCodeIdentity, "connection already identified"))
		return
	}

	var wasOffline bool
	if c.userID == "" {
		c.userID = userID
		wasOffline = e.registry.Register(userID, c)
	}

	// Room switch: drop the old association, and only announce the user
	// gone when no other device keeps them in the old room.
	var oldRoom string
	var leftOld bool
	var oldSnapshot []string
	if c.roomID != "" && c.roomID != roomID {
		oldRoom = c.roomID
		c.roomID = ""
		if !e.registry.UserLiveInRoom(userID, oldRoom, c.id, now, e.cfg.Heartbeat.ReapTimeout) {
			leftOld = e.presence.Remove(oldRoom, userID)
			oldSnapshot = e.presence.UsersOf(oldRoom)
		}
	}

	c.roomID = roomID
	c.touch(now)
	joined := e.presence.Add(roomID, userID)
	snapshot := e.presence.UsersOf(roomID)
	metrics.OnlineUsers.Set(float64(e.registry.OnlineUserCount()))
	e.mu.Unlock()

	if wasOffline {
		go e.persistOnline(userID, true)
	}
	if leftOld {
		e.broadcastToRoom(oldRoom, protocol.NewUserLeft(oldRoom, userID), "", true)
		e.broadcastToRoom(oldRoom, protocol.NewRoomOnlineUsers(oldRoom, oldSnapshot), "", true)
	}
	if joined {
		e.broadcastToRoom(roomID, protocol.NewUserJoined(roomID, userID), "", true)
		e.broadcastToRoom(roomID, protocol.NewRoomOnlineUsers(roomID, snapshot), "", true)
	} else {
		// Second+ device in the same room: the set did not change, so
		// only the joining connection needs the roster.
		e.sendToConn(c, protocol.NewRoomOnlineUsers(roomID, snapshot))
	}
	e.log.Info("user joined room", "conn", c.id, "user", userID, "room", roomID, "first_device", joined)

	e.sendHistory(c, roomID)
	if oldRoom != "" {
		e.Reconcile(oldRoom)
	}
	e.Reconcile(roomID)
}

// handleLeave tears down the room association only; the connection
// stays open and identified.
func (e *Engine) handleLeave(c *Conn, f protocol.Leave) {
	now := time.Now()

	e.mu.Lock()
	userID := c.userID
	roomID := strings.TrimSpace(f.RoomID)
	if roomID == "" {
		roomID = c.roomID
	}
	if userID == "" || roomID == "" || c.roomID != roomID {
		e.mu.Unlock()
		e.log.Warn("leave out of state", "conn", c.id, "user", userID, "room", roomID)
		e.sendToConn(c, protocol.NewError(protocol.ErrCodeNotInRoom, "not in that room"))
		return
	}
	c.roomID = ""
	var left bool
	var snapshot []string
	if !e.registry.UserLiveInRoom(userID, roomID, c.id, now, e.cfg.Heartbeat.ReapTimeout) {
		left = e.presence.Remove(roomID, userID)
		snapshot = e.presence.UsersOf(roomID)
	}
	e.mu.Unlock()

	if left {
		e.broadcastToRoom(roomID, protocol.NewUserLeft(roomID, userID), "", true)
		e.broadcastToRoom(roomID, protocol.NewRoomOnlineUsers(roomID, snapshot), "", true)
	}
	e.log.Info("user left room", "conn", c.id, "user", userID, "room", roomID, "last_device", left)
	e.Reconcile(roomID)
}

// handleMessage persists exactly once, then fans out. A store failure
// returns an error frame to the sender with nothing broadcast and
// nothing persisted, so there is no partial state.
func (e *Engine) handleMessage(c *Conn, f protocol.Message) {
	e.mu.Lock()
	userID, roomID := c.userID, c.roomID
	e.mu.Unlock()

	if userID == "" {
		e.sendToConn(c, protocol.NewError(protocol.ErrCodeNotIdentified, "join a room first"))
		return
	}
	if roomID == "" {
		e.sendToConn(c, protocol.NewError(protocol.ErrCodeNotInRoom, "join a room first"))
		return
	}
	if err := validateMessage(f); err != "" {
		e.sendToConn(c, protocol.NewError(protocol.ErrCodeBadFrame, err))
		return
	}

	msg := storage.Message{
		ID:               uuid.NewString(),
		RoomID:           roomID,
		AuthorID:         userID,
		Content:          strings.TrimSpace(f.Content),
		PhotoRef:         f.PhotoRef,
		Kind:             string(f.Kind),
		MentionedUserIDs: f.MentionedUserIDs,
		CreatedAt:        time.Now().UTC(),
	}
	if err := e.messages.CreateMessage(context.Background(), &msg); err != nil {
		metrics.StoreErrorsTotal.Inc()
		e.log.Error("message persist", "conn", c.id, "room", roomID, "err", err)
		e.sendToConn(c, protocol.NewError(protocol.ErrCodePersistence, "message not saved"))
		return
	}

	wire := protocol.ChatMessage{
		ID:               msg.ID,
		RoomID:           msg.RoomID,
		AuthorID:         msg.AuthorID,
		Content:          msg.Content,
		PhotoRef:         msg.PhotoRef,
		Kind:             f.Kind,
		MentionedUserIDs: msg.MentionedUserIDs,
		CreatedAt:        msg.CreatedAt,
	}
	// Fanout targets are resolved now, not before the store call, so
	// joins and leaves that raced the persistence are respected.
	e.broadcastToRoom(roomID, protocol.NewNewMessage(wire), "", true)

	go e.dispatchNotifications(roomID, wire)
}

// handleTyping relays the indicator to everyone in the room but the
// sender. No persistence.
func (e *Engine) handleTyping(c *Conn, f protocol.Typing) {
	e.mu.Lock()
	userID, roomID := c.userID, c.roomID
	e.mu.Unlock()

	if userID == "" || roomID == "" {
		e.log.Warn("typing out of state", "conn", c.id)
		return
	}
	e.broadcastToRoom(roomID, protocol.NewUserTyping(roomID, userID, f.IsTyping), userID, true)
}

// sendHistory replays recent room messages to the joining connection.
func (e *Engine) sendHistory(c *Conn, roomID string) {
	if e.messages == nil || e.cfg.HistoryLimit <= 0 {
		return
	}
	stored, err := e.messages.ListRoomMessages(context.Background(), roomID, e.cfg.HistoryLimit)
	if err != nil {
		metrics.StoreErrorsTotal.Inc()
		e.log.Error("history load", "room", roomID, "err", err)
		return
	}
	messages := make([]protocol.ChatMessage, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, protocol.ChatMessage{
			ID:               m.ID,
			RoomID:           m.RoomID,
			AuthorID:         m.AuthorID,
			Content:          m.Content,
			PhotoRef:         m.PhotoRef,
			Kind:             protocol.MessageKind(m.Kind),
			MentionedUserIDs: m.MentionedUserIDs,
			CreatedAt:        m.CreatedAt,
		})
	}
	e.sendToConn(c, protocol.NewRoomHistory(roomID, messages))
}

// dispatchNotifications emits one request per mentioned user and per
// durable room member not currently present. Runs detached from the
// message flow; failures are logged and never reach the sender.
func (e *Engine) dispatchNotifications(roomID string, msg protocol.ChatMessage) {
	ctx := context.Background()
	payload, err := protocol.Marshal(protocol.NewNewMessage(msg))
	if err != nil {
		e.log.Error("notification payload", "room", roomID, "err", err)
		return
	}

	targets := make(map[string]string)
	for _, mentioned := range msg.MentionedUserIDs {
		if mentioned != msg.AuthorID {
			targets[mentioned] = notify.KindMention
		}
	}

	if e.membership != nil {
		members, err := e.membership.MembersOf(ctx, roomID)
		if err != nil {
			metrics.StoreErrorsTotal.Inc()
			e.log.Error("membership lookup", "room", roomID, "err", err)
		} else {
			present := make(map[string]struct{})
			for _, userID := range e.OnlineUsersOf(roomID) {
				present[userID] = struct{}{}
			}
			for _, member := range members {
				if member == msg.AuthorID {
					continue
				}
				if _, ok := present[member]; ok {
					continue
				}
				if _, mentioned := targets[member]; !mentioned {
					targets[member] = notify.KindRoomMessage
				}
			}
		}
	}

	for userID, kind := range targets {
		req := notify.Request{UserID: userID, Kind: kind, RoomID: roomID, Payload: payload}
		if err := e.notifier.Notify(ctx, req); err != nil {
			e.log.Warn("notification dispatch", "user", userID, "kind", kind, "err", err)
		}
	}
}

func validateMessage(f protocol.Message) string {
	switch f.Kind {
	case protocol.MessageKindText:
		if strings.TrimSpace(f.Content) == "" {
			return "text message requires content"
		}
	case protocol.MessageKindPhoto:
		if strings.TrimSpace(f.PhotoRef) == "" {
			return "photo message requires photoRef"
		}
	default:
		return "unknown message kind"
	}
	return ""
}
