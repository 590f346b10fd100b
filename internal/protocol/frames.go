package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FrameType discriminates every frame exchanged over the wire.
type FrameType string

// Inbound frame types.
const (
	FrameTypeJoin    FrameType = "join"
	FrameTypeLeave   FrameType = "leave"
	FrameTypeMessage FrameType = "message"
	FrameTypeTyping  FrameType = "typing"
	FrameTypePing    FrameType = "ping"
)

// Outbound frame types.
const (
	FrameTypeUserJoined      FrameType = "user_joined"
	FrameTypeUserLeft        FrameType = "user_left"
	FrameTypeRoomOnlineUsers FrameType = "room_online_users"
	FrameTypeNewMessage      FrameType = "new_message"
	FrameTypeUserTyping      FrameType = "user_typing"
	FrameTypePong            FrameType = "pong"
	FrameTypeRoomHistory     FrameType = "room_history"
	FrameTypeError           FrameType = "error"
)

// MessageKind enumerates persisted message content kinds.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindPhoto MessageKind = "photo"
)

// ErrUnknownFrame reports a frame whose type discriminator is not part of
// the inbound protocol. Callers log and drop, never close the connection.
var ErrUnknownFrame = errors.New("unknown frame type")

// Inbound is the tagged union of client frames. Exactly one concrete type
// is produced per decode: Join, Leave, Message, Typing or Ping.
type Inbound interface {
	frameType() FrameType
}

// Join binds a user identity to the connection and enters a room.
type Join struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// Leave exits the connection's current room without closing the connection.
// RoomID is optional; when empty the current room is used.
type Leave struct {
	RoomID string `json:"roomId,omitempty"`
}

// Message carries chat content to persist and fan out.
type Message struct {
	Content          string      `json:"content,omitempty"`
	PhotoRef         string      `json:"photoRef,omitempty"`
	Kind             MessageKind `json:"kind"`
	MentionedUserIDs []string    `json:"mentionedUserIds,omitempty"`
}

// Typing toggles the sender's typing indicator for the current room.
type Typing struct {
	IsTyping bool `json:"isTyping"`
}

// Ping requests an application-level pong for clients that cannot rely on
// transport ping/pong.
type Ping struct{}

func (Join) frameType() FrameType    { return FrameTypeJoin }
func (Leave) frameType() FrameType   { return FrameTypeLeave }
func (Message) frameType() FrameType { return FrameTypeMessage }
func (Typing) frameType() FrameType  { return FrameTypeTyping }
func (Ping) frameType() FrameType    { return FrameTypePing }

type envelope struct {
	Type FrameType `json:"type"`
}

// Decode parses a raw client frame into its concrete inbound variant.
// Unknown types return ErrUnknownFrame wrapped with the offending tag.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("frame envelope: %w", err)
	}

	switch env.Type {
	case FrameTypeJoin:
		var f Join
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("join frame: %w", err)
		}
		return f, nil
	case FrameTypeLeave:
		var f Leave
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("leave frame: %w", err)
		}
		return f, nil
	case FrameTypeMessage:
		var f Message
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("message frame: %w", err)
		}
		return f, nil
	case FrameTypeTyping:
		var f Typing
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("typing frame: %w", err)
		}
		return f, nil
	case FrameTypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
	}
}

// ChatMessage is the wire view of a persisted message, author included.
type ChatMessage struct {
	ID               string      `json:"id"`
	RoomID           string      `json:"roomId"`
	AuthorID         string      `json:"authorId"`
	AuthorName       string      `json:"authorName,omitempty"`
	Content          string      `json:"content,omitempty"`
	PhotoRef         string      `json:"photoRef,omitempty"`
	Kind             MessageKind `json:"kind"`
	MentionedUserIDs []string    `json:"mentionedUserIds,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// UserJoined announces the first live connection of a user in a room.
type UserJoined struct {
	Type   FrameType `json:"type"`
	RoomID string    `json:"roomId"`
	UserID string    `json:"userId"`
}

// UserLeft announces the last live connection of a user leaving a room.
type UserLeft struct {
	Type   FrameType `json:"type"`
	RoomID string    `json:"roomId"`
	UserID string    `json:"userId"`
}

// RoomOnlineUsers is the full presence snapshot for a room.
type RoomOnlineUsers struct {
	Type        FrameType `json:"type"`
	RoomID      string    `json:"roomId"`
	OnlineUsers []string  `json:"onlineUsers"`
}

// NewMessage delivers a freshly persisted chat message.
type NewMessage struct {
	Type    FrameType   `json:"type"`
	Message ChatMessage `json:"message"`
}

// UserTyping relays a typing indicator to everyone but the sender.
type UserTyping struct {
	Type     FrameType `json:"type"`
	RoomID   string    `json:"roomId"`
	UserID   string    `json:"userId"`
	IsTyping bool      `json:"isTyping"`
}

// Pong answers an application-level ping.
type Pong struct {
	Type      FrameType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomHistory replays recent room messages to a joining connection.
type RoomHistory struct {
	Type     FrameType     `json:"type"`
	RoomID   string        `json:"roomId"`
	Messages []ChatMessage `json:"messages"`
}

// ErrorFrame reports a failed client-initiated action back to the sender.
type ErrorFrame struct {
	Type   FrameType `json:"type"`
	Code   string    `json:"code"`
	Reason string    `json:"reason,omitempty"`
}

// Error codes carried by ErrorFrame.
const (
	ErrCodeBadFrame      = "bad_frame"
	ErrCodeNotIdentified = "not_identified"
	ErrCodeNotInRoom     = "not_in_room"
	ErrCodeIdentity      = "identity_mismatch"
	ErrCodePersistence   = "persistence_failed"
)

// NewUserJoined builds a user_joined frame.
func NewUserJoined(roomID, userID string) UserJoined {
	return UserJoined{Type: FrameTypeUserJoined, RoomID: roomID, UserID: userID}
}

// NewUserLeft builds a user_left frame.
func NewUserLeft(roomID, userID string) UserLeft {
	return UserLeft{Type: FrameTypeUserLeft, RoomID: roomID, UserID: userID}
}

// NewRoomOnlineUsers builds a room_online_users snapshot frame.
func NewRoomOnlineUsers(roomID string, users []string) RoomOnlineUsers {
	if users == nil {
		users = []string{}
	}
	return RoomOnlineUsers{Type: FrameTypeRoomOnlineUsers, RoomID: roomID, OnlineUsers: users}
}

// NewNewMessage builds a new_message frame.
func NewNewMessage(msg ChatMessage) NewMessage {
	return NewMessage{Type: FrameTypeNewMessage, Message: msg}
}

// NewUserTyping builds a user_typing frame.
func NewUserTyping(roomID, userID string, isTyping bool) UserTyping {
	return UserTyping{Type: FrameTypeUserTyping, RoomID: roomID, UserID: userID, IsTyping: isTyping}
}

// NewPong builds a pong frame stamped with the current time.
func NewPong(now time.Time) Pong {
	return Pong{Type: FrameTypePong, Timestamp: now}
}

// NewRoomHistory builds a room_history frame.
func NewRoomHistory(roomID string, messages []ChatMessage) RoomHistory {
	if messages == nil {
		messages = []ChatMessage{}
	}
	return RoomHistory{Type: FrameTypeRoomHistory, RoomID: roomID, Messages: messages}
}

// NewError builds an error frame.
func NewError(code, reason string) ErrorFrame {
	return ErrorFrame{Type: FrameTypeError, Code: code, Reason: reason}
}

// Marshal encodes any outbound frame. Frames are plain structs with their
// type tag embedded, so this is a thin json.Marshal wrapper kept for
// symmetry with Decode.
func Marshal(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
