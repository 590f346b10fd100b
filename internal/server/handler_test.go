package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshyvodetaene/chatual-sub000/internal/notify"
	"github.com/joshyvodetaene/chatual-sub000/internal/protocol"
)

func TestMessagePersistThenFanout(t *testing.T) {
	h := newHarness(t)

	// Alice on two devices, Bob on one, all in lobby; Carol elsewhere.
	aliceA, peerA := h.connect()
	aliceB, peerB := h.connect()
	bob, bobPeer := h.connect()
	carol, carolPeer := h.connect()
	h.join(t, aliceA, "alice", "lobby")
	h.join(t, aliceB, "alice", "lobby")
	h.join(t, bob, "bob", "lobby")
	h.join(t, carol, "carol", "garden")

	h.engine.HandleFrame(aliceA.ID(), []byte(`{"type":"message","content":"hi","kind":"text"}`))

	created := h.messages.all()
	require.Len(t, created, 1)
	assert.Equal(t, "alice", created[0].AuthorID)
	assert.Equal(t, "lobby", created[0].RoomID)
	assert.Equal(t, "hi", created[0].Content)

	// Delivery includes the sender's other device and the sender itself.
	for _, peer := range []*fakePeer{peerA, peerB, bobPeer} {
		assert.Equal(t, 1, peer.countType(protocol.FrameTypeNewMessage))
	}
	// Never across rooms.
	assert.Equal(t, 0, carolPeer.countType(protocol.FrameTypeNewMessage))

	var frame protocol.NewMessage
	require.True(t, bobPeer.lastOfType(t, protocol.FrameTypeNewMessage, &frame))
	assert.Equal(t, created[0].ID, frame.Message.ID)
	assert.Equal(t, protocol.MessageKindText, frame.Message.Kind)
}

func TestMessageBeforeJoinIsProtocolError(t *testing.T) {
	h := newHarness(t)

	c, peer := h.connect()
	h.engine.HandleFrame(c.ID(), []byte(`{"type":"message","content":"hi","kind":"text"}`))

	var errFrame protocol.ErrorFrame
	require.True(t, peer.lastOfType(t, protocol.FrameTypeError, &errFrame))
	assert.Equal(t, protocol.ErrCodeNotIdentified, errFrame.Code)
	assert.Empty(t, h.messages.all())
	assert.Equal(t, 0, peer.countType(protocol.FrameTypeNewMessage))
}

func TestMessageStoreFailure(t *testing.T) {
	h := newHarness(t)

	sender, senderPeer := h.connect()
	other, otherPeer := h.connect()
	h.join(t, sender, "alice", "lobby")
	h.join(t, other, "bob", "lobby")

	h.messages.err = errStoreDown
	h.engine.HandleFrame(sender.ID(), []byte(`{"type":"message","content":"hi","kind":"text"}`))

	// No partial state: error to the sender, nothing broadcast.
	var errFrame protocol.ErrorFrame
	require.True(t, senderPeer.lastOfType(t, protocol.FrameTypeError, &errFrame))
	assert.Equal(t, protocol.ErrCodePersistence, errFrame.Code)
	assert.Equal(t, 0, otherPeer.countType(protocol.FrameTypeNewMessage))
	assert.Empty(t, h.messages.all())
}

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "text without content", raw: `{"type":"message","kind":"text"}`},
		{name: "photo without ref", raw: `{"type":"message","kind":"photo"}`},
		{name: "unknown kind", raw: `{"type":"message","content":"x","kind":"video"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			c, peer := h.connect()
			h.join(t, c, "alice", "lobby")

			h.engine.HandleFrame(c.ID(), []byte(tt.raw))

			var errFrame protocol.ErrorFrame
			require.True(t, peer.lastOfType(t, protocol.FrameTypeError, &errFrame))
			assert.Equal(t, protocol.ErrCodeBadFrame, errFrame.Code)
			assert.Empty(t, h.messages.all())
		})
	}
}

func TestPhotoMessage(t *testing.T) {
	h := newHarness(t)

	c, _ := h.connect()
	h.join(t, c, "alice", "lobby")
	h.engine.HandleFrame(c.ID(), []byte(`{"type":"message","photoRef":"photos/1.jpg","kind":"photo"}`))

	created := h.messages.all()
	require.Len(t, created, 1)
	assert.Equal(t, "photos/1.jpg", created[0].PhotoRef)
	assert.Equal(t, "photo", created[0].Kind)
}

func TestMessageNotifications(t *testing.T) {
	h := newHarness(t)
	h.membership.members["lobby"] = []string{"alice", "bob", "dora"}

	sender, _ := h.connect()
	present, _ := h.connect()
	h.join(t, sender, "alice", "lobby")
	h.join(t, present, "bob", "lobby")

	raw := `{"type":"message","content":"hey @eve","kind":"text","mentionedUserIds":["eve"]}`
	h.engine.HandleFrame(sender.ID(), []byte(raw))

	// eve is mentioned, dora is an absent member; bob is present and
	// alice is the author, neither is notified.
	require.Eventually(t, func() bool {
		return len(h.notifier.requests()) == 2
	}, time.Second, 10*time.Millisecond)

	kinds := map[string]string{}
	for _, req := range h.notifier.requests() {
		kinds[req.UserID] = req.Kind
		assert.Equal(t, "lobby", req.RoomID)
		assert.NotEmpty(t, req.Payload)
	}
	assert.Equal(t, notify.KindMention, kinds["eve"])
	assert.Equal(t, notify.KindRoomMessage, kinds["dora"])
}

func TestTypingExcludesSender(t *testing.T) {
	h := newHarness(t)

	senderA, peerA := h.connect()
	senderB, peerB := h.connect()
	other, otherPeer := h.connect()
	h.join(t, senderA, "alice", "lobby")
	h.join(t, senderB, "alice", "lobby")
	h.join(t, other, "bob", "lobby")

	h.engine.HandleFrame(senderA.ID(), []byte(`{"type":"typing","isTyping":true}`))

	var frame protocol.UserTyping
	require.True(t, otherPeer.lastOfType(t, protocol.FrameTypeUserTyping, &frame))
	assert.Equal(t, "alice", frame.UserID)
	assert.True(t, frame.IsTyping)

	// Excluding the sender covers every one of the sender's devices.
	assert.Equal(t, 0, peerA.countType(protocol.FrameTypeUserTyping))
	assert.Equal(t, 0, peerB.countType(protocol.FrameTypeUserTyping))
	assert.Empty(t, h.messages.all())
}

func TestPingPong(t *testing.T) {
	h := newHarness(t)

	c, peer := h.connect()
	h.engine.HandleFrame(c.ID(), []byte(`{"type":"ping"}`))

	var pong protocol.Pong
	require.True(t, peer.lastOfType(t, protocol.FrameTypePong, &pong))
	assert.False(t, pong.Timestamp.IsZero())
}

func TestHistoryReplayOnJoin(t *testing.T) {
	h := newHarness(t)

	writer, _ := h.connect()
	h.join(t, writer, "alice", "lobby")
	h.engine.HandleFrame(writer.ID(), []byte(`{"type":"message","content":"one","kind":"text"}`))
	h.engine.HandleFrame(writer.ID(), []byte(`{"type":"message","content":"two","kind":"text"}`))

	late, latePeer := h.connect()
	h.join(t, late, "bob", "lobby")

	var history protocol.RoomHistory
	require.True(t, latePeer.lastOfType(t, protocol.FrameTypeRoomHistory, &history))
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "one", history.Messages[0].Content)
	assert.Equal(t, "two", history.Messages[1].Content)
}
