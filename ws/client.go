package ws

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gridhall/gridhall/auth"
	"github.com/gridhall/gridhall/globals"
	"github.com/gridhall/gridhall/persistence"
	"github.com/gridhall/gridhall/types"
	"golang.org/x/time/rate"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256

	chatPerSecond = 10
	movePerSecond = 20
)

// Client is a middleman between one websocket connection and the room
// engines. Its connection state machine is implicit in two fields:
// identity (nil until a successful auth) and engine (nil until a
// join). The read loop is the only writer of both.
type Client struct {
	registry *Registry

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan []byte

	identity *auth.Identity
	engine   *Engine

	chatLimiter *rate.Limiter
	moveLimiter *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(registry *Registry, conn *websocket.Conn) *Client {
	return &Client{
		registry:    registry,
		conn:        conn,
		Send:        make(chan []byte, sendChannelSize),
		chatLimiter: rate.NewLimiter(rate.Limit(chatPerSecond), chatPerSecond),
		moveLimiter: rate.NewLimiter(rate.Limit(movePerSecond), movePerSecond),
		done:        make(chan struct{}),
	}
}

// Close shuts the socket down; safe to call from any goroutine. The
// read loop unblocks and runs the detach cleanup exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueueFrame queues an outbound frame. A saturated buffer means a
// consumer that stopped reading; the frame is dropped rather than
// blocking the engine loop.
func (c *Client) enqueueFrame(data []byte) {
	select {
	case c.Send <- data:
	default:
		globals.AppLogger.Warn("send buffer full, dropping frame")
	}
}

func (c *Client) sendMessage(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal frame", "error", err)
		return
	}
	c.enqueueFrame(data)
}

func (c *Client) sendError(code, message string) {
	c.sendMessage(types.NewWireError(code, message))
}

// ReadLoop pumps messages from the websocket connection into the
// engines. The application runs ReadLoop in a per-connection goroutine;
// all reads happen here, so the loop is also the single writer of the
// connection state.
func (c *Client) ReadLoop() {
	defer func() {
		c.detach()
		if c.identity != nil {
			c.registry.ReleaseAgent(c.identity.AgentId, c)
		}
		c.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("websocket closed unexpectedly", "error", err)
			}
			return
		}
		msg, err := types.DecodeClientMessage(raw)
		if err != nil {
			c.sendError(types.ErrCodeInvalidMessage, "invalid message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg types.ClientMessage) {
	switch m := msg.(type) {
	case *types.PingMessage:
		c.sendMessage(types.NewWirePong())

	case *types.AuthMessage:
		c.handleAuth(m)

	case *types.JoinMessage:
		c.handleJoin(m)

	case *types.LeaveMessage:
		if c.engine == nil {
			c.sendError(types.ErrCodeNotInRoom, "not in a room")
			return
		}
		c.detach()

	case *types.MoveMessage:
		if c.engine == nil || c.identity == nil {
			c.sendError(types.ErrCodeNotInRoom, "not a participant in a room")
			return
		}
		if !c.moveLimiter.Allow() {
			c.sendError(types.ErrCodeRateLimited, "too many moves")
			return
		}
		if !c.engine.enqueue(moveCmd{client: c, x: m.X, y: m.Y}) {
			c.sendError(types.ErrCodeInternal, "room is unavailable")
		}

	case *types.ChatInMessage:
		if c.engine == nil || c.identity == nil {
			c.sendError(types.ErrCodeNotInRoom, "not a participant in a room")
			return
		}
		if !c.chatLimiter.Allow() {
			c.sendError(types.ErrCodeRateLimited, "too many messages")
			return
		}
		content := strings.TrimSpace(m.Message)
		if content == "" {
			return
		}
		if !c.engine.enqueue(chatCmd{client: c, content: content}) {
			c.sendError(types.ErrCodeInternal, "room is unavailable")
		}
	}
}

// handleAuth verifies the bearer token. On failure the socket stays in
// its current state; on success the identity is recorded and any prior
// socket bound to the same agent id is displaced.
func (c *Client) handleAuth(m *types.AuthMessage) {
	identity, err := c.registry.Tokens().Verify(m.Token)
	if err != nil {
		c.sendMessage(types.NewWireAuthError(err.Error()))
		return
	}
	// a re-auth under a different id replaces the identity; drop any
	// participant attachment held under the old one
	if c.identity != nil && c.identity.AgentId != identity.AgentId {
		c.detach()
		c.registry.ReleaseAgent(c.identity.AgentId, c)
	}
	c.identity = identity
	c.registry.BindAgent(identity.AgentId, c)
	c.touchLastSeen(identity)
	c.sendMessage(types.NewWireAuthOk(identity.AgentId, identity.Name, identity.BodyColor))
}

func (c *Client) touchLastSeen(identity *auth.Identity) {
	p := c.registry.Persister()
	if err := p.TouchLastSeen(identity.AgentId); err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			globals.AppLogger.Error("could not touch last seen", "agent", identity.AgentId, "error", err)
			return
		}
		user := &types.User{Id: identity.AgentId, Username: identity.Name, LastSeen: time.Now().UTC()}
		if err := p.StoreUser(user); err != nil {
			globals.AppLogger.Error("could not store user", "agent", identity.AgentId, "error", err)
		}
	}
}

// handleJoin attaches the socket to the requested room, as participant
// when authenticated and as spectator otherwise. Switching rooms is
// detach-then-attach.
func (c *Client) handleJoin(m *types.JoinMessage) {
	if m.RoomId == "" {
		c.sendError(types.ErrCodeInvalidMessage, "join requires roomId")
		return
	}
	engine, err := c.registry.LoadByRef(m.RoomId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			c.sendError(types.ErrCodeRoomNotFound, "room "+m.RoomId+" not found")
		} else {
			globals.AppLogger.Error("could not load room", "room", m.RoomId, "error", err)
			c.sendError(types.ErrCodeInternal, "could not load room")
		}
		return
	}
	c.detach()
	// the engine can unload between lookup and attach, retry once
	for attempt := 0; attempt < 2; attempt++ {
		if c.attachTo(engine) {
			c.engine = engine
			return
		}
		engine, err = c.registry.LoadByRef(m.RoomId)
		if err != nil {
			break
		}
	}
	c.sendError(types.ErrCodeInternal, "could not join room")
}

func (c *Client) attachTo(engine *Engine) bool {
	if c.identity != nil {
		return engine.enqueueWait(attachParticipantCmd{
			client:    c,
			id:        c.identity.AgentId,
			name:      c.identity.Name,
			bodyColor: c.identity.BodyColor,
		})
	}
	return engine.enqueueWait(attachSpectatorCmd{client: c})
}

// detach leaves the current room and waits for the engine to process
// it, so a subsequent attach elsewhere never overlaps with the old
// attachment.
func (c *Client) detach() {
	if c.engine == nil {
		return
	}
	reply := make(chan struct{})
	if c.engine.enqueueWait(detachCmd{client: c, reply: reply}) {
		select {
		case <-reply:
		case <-c.engine.done:
		}
	}
	c.engine = nil
}

// WriteLoop pumps frames from the Send channel to the websocket
// connection. A goroutine running WriteLoop is started for each
// connection; all writes happen here.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case message := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
