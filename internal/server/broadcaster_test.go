package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshyvodetaene/chatual-sub000/internal/bus"
	"github.com/joshyvodetaene/chatual-sub000/internal/protocol"
)

func TestBroadcastFailureDoesNotAbortOthers(t *testing.T) {
	h := newHarness(t)

	bad, badPeer := h.connect()
	good, goodPeer := h.connect()
	h.join(t, bad, "alice", "lobby")
	h.join(t, good, "bob", "lobby")
	goodPeer.reset()

	badPeer.mu.Lock()
	badPeer.enqueueErr = errors.New("queue full")
	badPeer.mu.Unlock()

	h.engine.broadcastToRoom("lobby", protocol.NewUserTyping("lobby", "carol", true), "", false)

	assert.Equal(t, 1, goodPeer.countType(protocol.FrameTypeUserTyping))

	// The failed connection is flagged for the next heartbeat cycle.
	h.engine.mu.Lock()
	assert.False(t, bad.alive)
	h.engine.mu.Unlock()
}

func TestBroadcastSkipsOtherRooms(t *testing.T) {
	h := newHarness(t)

	lobby, lobbyPeer := h.connect()
	garden, gardenPeer := h.connect()
	h.join(t, lobby, "alice", "lobby")
	h.join(t, garden, "bob", "garden")
	lobbyPeer.reset()
	gardenPeer.reset()

	h.engine.broadcastToRoom("lobby", protocol.NewUserTyping("lobby", "carol", true), "", false)

	assert.Equal(t, 1, lobbyPeer.countType(protocol.FrameTypeUserTyping))
	assert.Equal(t, 0, gardenPeer.countType(protocol.FrameTypeUserTyping))
}

type fakeRelay struct {
	events chan bus.Event
}

func (r *fakeRelay) Publish(_ context.Context, ev bus.Event) error {
	r.events <- ev
	return nil
}

func TestBroadcastPublishesToRelay(t *testing.T) {
	h := newHarness(t)
	relay := &fakeRelay{events: make(chan bus.Event, 4)}
	h.engine.relay = relay

	c, _ := h.connect()
	h.join(t, c, "alice", "lobby")

	var ev bus.Event
	select {
	case ev = <-relay.events:
	case <-time.After(time.Second):
		t.Fatal("no relay event")
	}
	assert.Equal(t, h.engine.InstanceID(), ev.Origin)
	assert.Equal(t, "lobby", ev.RoomID)
	assert.NotEmpty(t, ev.Payload)
}

func TestDeliverFromRelay(t *testing.T) {
	h := newHarness(t)

	c, peer := h.connect()
	h.join(t, c, "alice", "lobby")
	peer.reset()

	payload, err := protocol.Marshal(protocol.NewUserTyping("lobby", "remote-user", true))
	require.NoError(t, err)
	h.engine.DeliverFromRelay(bus.Event{
		Origin:  "other-instance",
		RoomID:  "lobby",
		Payload: payload,
	})

	assert.Equal(t, 1, peer.countType(protocol.FrameTypeUserTyping))

	// Exclusions travel with the event.
	h.engine.DeliverFromRelay(bus.Event{
		Origin:        "other-instance",
		RoomID:        "lobby",
		ExcludeUserID: "alice",
		Payload:       payload,
	})
	assert.Equal(t, 1, peer.countType(protocol.FrameTypeUserTyping))
}
