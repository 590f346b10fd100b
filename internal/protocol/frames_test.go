package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{
			name: "join",
			raw:  `{"type":"join","userId":"u1","roomId":"lobby"}`,
			want: Join{UserID: "u1", RoomID: "lobby"},
		},
		{
			name: "leave with room",
			raw:  `{"type":"leave","roomId":"lobby"}`,
			want: Leave{RoomID: "lobby"},
		},
		{
			name: "leave without room",
			raw:  `{"type":"leave"}`,
			want: Leave{},
		},
		{
			name: "text message",
			raw:  `{"type":"message","content":"hi","kind":"text"}`,
			want: Message{Content: "hi", Kind: MessageKindText},
		},
		{
			name: "photo message with mentions",
			raw:  `{"type":"message","photoRef":"p/1.jpg","kind":"photo","mentionedUserIds":["u2"]}`,
			want: Message{PhotoRef: "p/1.jpg", Kind: MessageKindPhoto, MentionedUserIDs: []string{"u2"}},
		},
		{
			name: "typing",
			raw:  `{"type":"typing","isTyping":true}`,
			want: Typing{IsTyping: true},
		},
		{
			name: "ping",
			raw:  `{"type":"ping"}`,
			want: Ping{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"subscribe","roomId":"lobby"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFrame)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownFrame)
}

func TestNewRoomOnlineUsersNeverNil(t *testing.T) {
	frame := NewRoomOnlineUsers("lobby", nil)
	raw, err := Marshal(frame)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"onlineUsers":[]`)
}
