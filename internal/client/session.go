package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joshyvodetaene/chatual-sub000/internal/config"
	"github.com/joshyvodetaene/chatual-sub000/internal/protocol"
)

// Session manages the client side of one WebSocket connection.
type Session struct {
	cfg    config.ClientConfig
	conn   *websocket.Conn
	frames chan []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewSession initializes a session with configuration.
func NewSession(cfg config.ClientConfig) *Session {
	return &Session{
		cfg:    cfg,
		frames: make(chan []byte, 64),
	}
}

// Connect dials the server. A configured token rides along on the
// handshake so the server can pre-bind the identity.
func (s *Session) Connect(ctx context.Context) error {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, s.cfg.ServerURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}
	s.conn = conn
	go s.readLoop()
	return nil
}

// Frames exposes raw server frames in arrival order. The channel closes
// when the connection dies.
func (s *Session) Frames() <-chan []byte {
	return s.frames
}

// Send marshals and writes one frame.
func (s *Session) Send(frame any) error {
	payload, err := protocol.Marshal(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close terminates the session.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.conn == nil {
			return
		}
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) readLoop() {
	defer close(s.frames)
	for {
		kind, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		s.frames <- raw
	}
}
