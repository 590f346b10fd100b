package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameBytes = 1 << 20

// wsPeer adapts a gorilla websocket connection to the Peer contract.
// One writer goroutine owns all data writes; Enqueue and Ping only feed
// its channels, which is what gives per-connection delivery ordering.
type wsPeer struct {
	conn         *websocket.Conn
	send         chan []byte
	ping         chan struct{}
	done         chan struct{}
	open         atomic.Bool
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newWSPeer(conn *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *wsPeer {
	p := &wsPeer{
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		ping:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	p.open.Store(true)
	return p
}

func (p *wsPeer) Enqueue(payload []byte) error {
	if !p.open.Load() {
		return websocket.ErrCloseSent
	}
	select {
	case p.send <- payload:
		return nil
	default:
		// A slow consumer is dropped at the transport layer, not queued.
		return websocket.ErrCloseSent
	}
}

func (p *wsPeer) Ping() error {
	if !p.open.Load() {
		return websocket.ErrCloseSent
	}
	select {
	case p.ping <- struct{}{}:
	default:
	}
	return nil
}

func (p *wsPeer) Close(code int, reason string) error {
	var err error
	p.closeOnce.Do(func() {
		p.open.Store(false)
		deadline := time.Now().Add(p.writeTimeout)
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		err = p.conn.Close()
		close(p.done)
	})
	return err
}

func (p *wsPeer) IsOpen() bool {
	return p.open.Load()
}

func (p *wsPeer) RemoteAddr() string {
	if addr := p.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// writePump drains the outbound queue onto the wire.
func (p *wsPeer) writePump() {
	defer p.open.Store(false)
	for {
		select {
		case <-p.done:
			return
		case payload := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-p.ping:
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump feeds inbound frames to the engine until the transport dies,
// then runs the shared teardown. Pongs register as liveness signals.
func (p *wsPeer) readPump(engine *Engine, connID string) {
	defer engine.CloseConnection(connID, "transport closed")

	p.conn.SetReadLimit(maxFrameBytes)
	p.conn.SetPongHandler(func(string) error {
		engine.MarkAlive(connID)
		return nil
	})

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			p.open.Store(false)
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		engine.HandleFrame(connID, data)
	}
}
