package types

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gridhall/gridhall/grid"
	"github.com/mitchellh/mapstructure"
)

// Client → server message types.
const (
	MessageTypeAuth  = "auth"
	MessageTypeJoin  = "join"
	MessageTypeLeave = "leave"
	MessageTypeMove  = "move"
	MessageTypeChat  = "chat"
	MessageTypePing  = "ping"
)

// Server → client message types.
const (
	MessageTypeAuthOk      = "auth_ok"
	MessageTypeAuthError   = "auth_error"
	MessageTypeRoomState   = "room_state"
	MessageTypeAgentJoined = "agent_joined"
	MessageTypeAgentLeft   = "agent_left"
	// agent_moved is reserved for snap repositioning; walks are always
	// sent as agent_path
	MessageTypeAgentMoved  = "agent_moved"
	MessageTypeAgentPath   = "agent_path"
	MessageTypeChatMessage = "chat_message"
	MessageTypeError       = "error"
	MessageTypePong        = "pong"
)

// Error codes carried by the error frame.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeRoomNotFound   = "ROOM_NOT_FOUND"
	ErrCodeNotInRoom      = "NOT_IN_ROOM"
	ErrCodeInvalidMove    = "INVALID_MOVE"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeRateLimited    = "RATE_LIMITED"
)

var ErrInvalidMessage = errors.New("invalid client message")

// ClientMessage is the closed set of inbound frames.
type ClientMessage interface {
	clientMessage()
}

type AuthMessage struct {
	Token string `mapstructure:"token"`
}

type JoinMessage struct {
	// RoomId accepts a room id or a slug.
	RoomId string `mapstructure:"roomId"`
}

type LeaveMessage struct{}

type MoveMessage struct {
	X int `mapstructure:"x"`
	Y int `mapstructure:"y"`
}

type ChatInMessage struct {
	Message string `mapstructure:"message"`
}

type PingMessage struct{}

func (*AuthMessage) clientMessage()   {}
func (*JoinMessage) clientMessage()   {}
func (*LeaveMessage) clientMessage()  {}
func (*MoveMessage) clientMessage()   {}
func (*ChatInMessage) clientMessage() {}
func (*PingMessage) clientMessage()   {}

// DecodeClientMessage turns a raw text frame into one of the
// ClientMessage variants. Frames without a string "type", with an
// unknown type, or whose fields cannot be weakly decoded yield
// ErrInvalidMessage. Additional fields are tolerated.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	fields := make(map[string]interface{})
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, ErrInvalidMessage
	}
	typ, ok := fields["type"].(string)
	if !ok {
		return nil, ErrInvalidMessage
	}
	var msg ClientMessage
	switch typ {
	case MessageTypeAuth:
		msg = &AuthMessage{}
	case MessageTypeJoin:
		msg = &JoinMessage{}
	case MessageTypeLeave:
		return &LeaveMessage{}, nil
	case MessageTypeMove:
		msg = &MoveMessage{}
	case MessageTypeChat:
		msg = &ChatInMessage{}
	case MessageTypePing:
		return &PingMessage{}, nil
	default:
		return nil, ErrInvalidMessage
	}
	if err := mapstructure.WeakDecode(fields, msg); err != nil {
		return nil, ErrInvalidMessage
	}
	return msg, nil
}

// AgentInfo is the wire view of a participant inside a room.
type AgentInfo struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Avatar Avatar `json:"avatar"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// RoomInfo is the wire view of a room record, owner name resolved.
type RoomInfo struct {
	Id            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description,omitempty"`
	OwnerId       string    `json:"ownerId,omitempty"`
	OwnerUsername string    `json:"ownerUsername,omitempty"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Tiles         TileGrid  `json:"tiles"`
	CreatedAt     time.Time `json:"createdAt"`
	IsPublic      bool      `json:"isPublic"`
}

// AvatarConfig is the snapshot of the author's appearance carried on a
// chat message frame.
type AvatarConfig struct {
	BodyColor string `json:"bodyColor"`
}

// ChatMessageInfo is the wire view of a chat message, used both inside
// room_state.messages and (wrapped) as the chat_message frame.
type ChatMessageInfo struct {
	Id           string       `json:"id"`
	RoomId       string       `json:"roomId"`
	AgentId      *string      `json:"agentId"`
	AgentName    string       `json:"agentName"`
	AvatarConfig AvatarConfig `json:"avatarConfig"`
	Content      string       `json:"content"`
	Timestamp    time.Time    `json:"timestamp"`
}

func NewChatMessageInfo(m ChatMessage) ChatMessageInfo {
	return ChatMessageInfo{
		Id:           m.Id,
		RoomId:       m.RoomId,
		AgentId:      m.AgentId,
		AgentName:    m.AgentName,
		AvatarConfig: AvatarConfig{BodyColor: m.BodyColor},
		Content:      m.Content,
		Timestamp:    m.CreatedAt,
	}
}

// Outbound frames. Every frame is a single flat JSON object carrying
// the type discriminator.

type WireAuthOk struct {
	Type    string `json:"type"`
	AgentId string `json:"agentId"`
	Name    string `json:"name"`
	Avatar  Avatar `json:"avatar"`
}

func NewWireAuthOk(agentId, name, bodyColor string) WireAuthOk {
	return WireAuthOk{
		Type:    MessageTypeAuthOk,
		AgentId: agentId,
		Name:    name,
		Avatar:  NewAvatar(agentId, bodyColor),
	}
}

type WireAuthError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewWireAuthError(reason string) WireAuthError {
	return WireAuthError{Type: MessageTypeAuthError, Error: reason}
}

type WireRoomState struct {
	Type     string            `json:"type"`
	Room     RoomInfo          `json:"room"`
	Agents   []AgentInfo       `json:"agents"`
	Messages []ChatMessageInfo `json:"messages"`
}

type WireAgentJoined struct {
	Type  string    `json:"type"`
	Agent AgentInfo `json:"agent"`
}

type WireAgentLeft struct {
	Type    string `json:"type"`
	AgentId string `json:"agentId"`
}

type WireAgentPath struct {
	Type    string       `json:"type"`
	AgentId string       `json:"agentId"`
	Path    []grid.Point `json:"path"`
	Speed   float64      `json:"speed"`
}

type WireChatMessage struct {
	Type string `json:"type"`
	ChatMessageInfo
}

func NewWireChatMessage(m ChatMessage) WireChatMessage {
	return WireChatMessage{Type: MessageTypeChatMessage, ChatMessageInfo: NewChatMessageInfo(m)}
}

type WireError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewWireError(code, message string) WireError {
	return WireError{Type: MessageTypeError, Code: code, Message: message}
}

type WirePong struct {
	Type string `json:"type"`
}

func NewWirePong() WirePong {
	return WirePong{Type: MessageTypePong}
}
