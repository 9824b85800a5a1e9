package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"auth","token":"abc"}`))
	require.NoError(t, err)
	auth, ok := msg.(*AuthMessage)
	require.True(t, ok)
	assert.Equal(t, "abc", auth.Token)

	msg, err = DecodeClientMessage([]byte(`{"type":"join","roomId":"lobby"}`))
	require.NoError(t, err)
	join, ok := msg.(*JoinMessage)
	require.True(t, ok)
	assert.Equal(t, "lobby", join.RoomId)

	msg, err = DecodeClientMessage([]byte(`{"type":"move","x":3,"y":2}`))
	require.NoError(t, err)
	move, ok := msg.(*MoveMessage)
	require.True(t, ok)
	assert.Equal(t, 3, move.X)
	assert.Equal(t, 2, move.Y)

	msg, err = DecodeClientMessage([]byte(`{"type":"chat","message":"hi"}`))
	require.NoError(t, err)
	chat, ok := msg.(*ChatInMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", chat.Message)

	msg, err = DecodeClientMessage([]byte(`{"type":"leave"}`))
	require.NoError(t, err)
	assert.IsType(t, &LeaveMessage{}, msg)

	msg, err = DecodeClientMessage([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.IsType(t, &PingMessage{}, msg)
}

func TestDecodeClientMessageToleratesExtraFields(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"move","x":1,"y":2,"z":"ignored","v":42}`))
	require.NoError(t, err)
	move := msg.(*MoveMessage)
	assert.Equal(t, 1, move.X)
	assert.Equal(t, 2, move.Y)
}

func TestDecodeClientMessageRejects(t *testing.T) {
	cases := map[string]string{
		"malformed json":  `{"type":`,
		"missing type":    `{"token":"abc"}`,
		"non-string type": `{"type":7}`,
		"unknown type":    `{"type":"teleport"}`,
	}
	for name, raw := range cases {
		_, err := DecodeClientMessage([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidMessage, name)
	}
}

func TestWireChatMessageShape(t *testing.T) {
	agentId := "P2"
	created := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	frame := NewWireChatMessage(ChatMessage{
		Id:        "m1",
		RoomId:    "r1",
		AgentId:   &agentId,
		AgentName: "Bob",
		BodyColor: "#10B981",
		Content:   "hi",
		CreatedAt: created,
	})
	data, err := json.Marshal(frame)
	require.NoError(t, err)

	fields := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "chat_message", fields["type"])
	assert.Equal(t, "P2", fields["agentId"])
	assert.Equal(t, "Bob", fields["agentName"])
	assert.Equal(t, map[string]interface{}{"bodyColor": "#10B981"}, fields["avatarConfig"])
	assert.Equal(t, "hi", fields["content"])
	assert.Equal(t, "2024-05-01T12:30:00Z", fields["timestamp"])
}

func TestWireAuthOkShape(t *testing.T) {
	data, err := json.Marshal(NewWireAuthOk("P1", "Alice", "#3B82F6"))
	require.NoError(t, err)
	fields := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "auth_ok", fields["type"])
	assert.Equal(t, "P1", fields["agentId"])
	assert.Equal(t, map[string]interface{}{
		"id":        "P1",
		"agentId":   "P1",
		"bodyColor": "#3B82F6",
	}, fields["avatar"])
}

func TestTileGridSQLRoundTrip(t *testing.T) {
	g := TileGrid{{0, 1}, {1, 0}}
	val, err := g.Value()
	require.NoError(t, err)

	out := TileGrid{}
	require.NoError(t, out.Scan(val))
	assert.Equal(t, g, out)
}
