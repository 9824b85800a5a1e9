package ws

import (
	"container/ring"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gridhall/gridhall/config"
	"github.com/gridhall/gridhall/globals"
	"github.com/gridhall/gridhall/grid"
	"github.com/gridhall/gridhall/persistence"
	"github.com/gridhall/gridhall/types"
)

const commandChannelSize = 256

// Engine is the single writer of one loaded room's state. All mutation
// arrives as commands on a buffered channel consumed by Run; nothing
// outside the loop touches the occupant maps or the history. The only
// externally readable state is the pair of atomic population counters
// used by discovery snapshots.
type Engine struct {
	room          *types.Room
	grid          *grid.Grid
	cfg           *config.Config
	persister     persistence.Persister
	ownerUsername string

	commands chan command

	// state below is owned by the Run goroutine
	occupants  map[string]*occupant
	byClient   map[*Client]*occupant
	spectators map[*Client]string
	clients    map[*Client]struct{}

	historyStart, historyEnd *ring.Ring

	agentCount     atomic.Int32
	spectatorCount atomic.Int32

	onEmpty func(*Engine)

	stopMu  sync.RWMutex
	stopped bool
	done    chan struct{}
}

// occupant is a participant currently placed in the room.
type occupant struct {
	id        string
	name      string
	bodyColor string
	x, y      int
	client    *Client
}

type command interface{}

type attachParticipantCmd struct {
	client    *Client
	id        string
	name      string
	bodyColor string
}

type attachSpectatorCmd struct {
	client *Client
}

type detachCmd struct {
	client *Client
	reply  chan struct{}
}

type moveCmd struct {
	client *Client
	x, y   int
}

type chatCmd struct {
	client  *Client
	content string
}

type agentIdsCmd struct {
	reply chan []string
}

// NewEngine loads the room into memory: builds the normalized grid and
// rehydrates the given chat history (newest first, as the persister
// returns it) in chronological order. onEmpty is invoked from the
// engine loop once the last attachment is gone.
func NewEngine(room *types.Room, cfg *config.Config, persister persistence.Persister, ownerUsername string, history []*types.ChatMessage, onEmpty func(*Engine)) *Engine {
	historyRing := ring.New(cfg.HistoryLimit)
	e := &Engine{
		room:          room,
		grid:          grid.New(room.Width, room.Height, room.Tiles),
		cfg:           cfg,
		persister:     persister,
		ownerUsername: ownerUsername,
		commands:      make(chan command, commandChannelSize),
		occupants:     make(map[string]*occupant),
		byClient:      make(map[*Client]*occupant),
		spectators:    make(map[*Client]string),
		clients:       make(map[*Client]struct{}),
		historyStart:  historyRing,
		historyEnd:    historyRing,
		onEmpty:       onEmpty,
		done:          make(chan struct{}),
	}
	// newest first from the persister, append oldest first
	for i := len(history) - 1; i >= 0; i-- {
		e.appendHistory(*history[i])
	}
	return e
}

// Run is the engine loop. It exits when the registry stops the engine.
func (e *Engine) Run() {
	for {
		select {
		case <-e.done:
			return
		case cmd := <-e.commands:
			e.handle(cmd)
		}
	}
}

// enqueue submits a command unless the engine is stopped or the
// channel is saturated. The RLock excludes tryStop, so a command
// accepted here is always drained by the loop. Best-effort only;
// attach and detach go through enqueueWait.
func (e *Engine) enqueue(c command) bool {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.commands <- c:
		return true
	default:
		globals.AppLogger.Warn("engine command channel saturated, dropping command", "room", e.room.Id)
		return false
	}
}

// enqueueWait submits a command, blocking until the loop accepts it.
// Attach and detach must never be lost under saturation, else an
// occupant leaks and the room can never unload. The RLock excludes
// tryStop, and the loop keeps draining while the sender waits, so the
// send always completes.
func (e *Engine) enqueueWait(c command) bool {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return false
	}
	e.commands <- c
	return true
}

// tryStop stops the engine iff it is empty and has no pending
// commands. Called by the registry with the registry lock held, so no
// new attachment can be routed here concurrently. TryLock keeps the
// engine loop (which reaches here through onEmpty) from blocking on a
// sender parked in enqueueWait: a held read lock means a command is in
// flight, so the engine is not stoppable anyway.
func (e *Engine) tryStop() bool {
	if !e.stopMu.TryLock() {
		return false
	}
	defer e.stopMu.Unlock()
	if e.stopped {
		return true
	}
	if len(e.commands) > 0 {
		return false
	}
	if e.agentCount.Load() != 0 || e.spectatorCount.Load() != 0 {
		return false
	}
	e.stopped = true
	close(e.done)
	return true
}

// forceStop is the shutdown path: stop regardless of population.
func (e *Engine) forceStop() {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	if !e.stopped {
		e.stopped = true
		close(e.done)
	}
}

func (e *Engine) Room() *types.Room { return e.room }

func (e *Engine) AgentCount() int     { return int(e.agentCount.Load()) }
func (e *Engine) SpectatorCount() int { return int(e.spectatorCount.Load()) }

// AgentIds returns a snapshot of the attached participant ids, routed
// through the command channel so the loop stays the single reader of
// its own state.
func (e *Engine) AgentIds() []string {
	reply := make(chan []string, 1)
	if !e.enqueue(agentIdsCmd{reply: reply}) {
		return nil
	}
	select {
	case ids := <-reply:
		return ids
	case <-e.done:
		return nil
	}
}

func (e *Engine) Summary() types.RoomSummary {
	return types.RoomSummary{
		Id:             e.room.Id,
		Slug:           e.room.Slug,
		Name:           e.room.Name,
		Description:    e.room.Description,
		OwnerUsername:  e.ownerUsername,
		AgentCount:     e.AgentCount(),
		SpectatorCount: e.SpectatorCount(),
		IsPublic:       e.room.IsPublic,
	}
}

func (e *Engine) handle(cmd command) {
	switch c := cmd.(type) {
	case attachParticipantCmd:
		e.attachParticipant(c)
	case attachSpectatorCmd:
		e.attachSpectator(c.client)
	case detachCmd:
		e.detach(c.client)
		if c.reply != nil {
			close(c.reply)
		}
	case moveCmd:
		e.move(c)
	case chatCmd:
		e.chat(c)
	case agentIdsCmd:
		ids := make([]string, 0, len(e.occupants))
		for id := range e.occupants {
			ids = append(ids, id)
		}
		c.reply <- ids
	}
}

func (e *Engine) attachParticipant(c attachParticipantCmd) {
	// a second attachment for the same id displaces the first
	if prev, ok := e.occupants[c.id]; ok {
		e.removeParticipant(prev)
	}
	if prev, ok := e.byClient[c.client]; ok {
		e.removeParticipant(prev)
	}
	delete(e.spectators, c.client)

	spawn := e.grid.SpawnPoint()
	occ := &occupant{
		id:        c.id,
		name:      c.name,
		bodyColor: c.bodyColor,
		x:         spawn.X,
		y:         spawn.Y,
		client:    c.client,
	}
	e.occupants[c.id] = occ
	e.byClient[c.client] = occ
	e.clients[c.client] = struct{}{}
	e.updateCounts()

	e.sendTo(c.client, e.buildRoomState())
	e.broadcast(types.WireAgentJoined{
		Type:  types.MessageTypeAgentJoined,
		Agent: occ.info(),
	}, c.client)
	globals.AppLogger.Debug("participant attached", "room", e.room.Id, "agent", c.id)
}

func (e *Engine) attachSpectator(c *Client) {
	if prev, ok := e.byClient[c]; ok {
		e.removeParticipant(prev)
	}
	if _, ok := e.spectators[c]; !ok {
		e.spectators[c] = uuid.NewString()
	}
	e.clients[c] = struct{}{}
	e.updateCounts()
	e.sendTo(c, e.buildRoomState())
	globals.AppLogger.Debug("spectator attached", "room", e.room.Id)
}

func (e *Engine) detach(c *Client) {
	if occ, ok := e.byClient[c]; ok {
		e.removeParticipant(occ)
	}
	if _, ok := e.spectators[c]; ok {
		delete(e.spectators, c)
		delete(e.clients, c)
		e.updateCounts()
	}
	if len(e.clients) == 0 && e.onEmpty != nil {
		e.onEmpty(e)
	}
}

// removeParticipant drops the occupant and tells the remaining sockets.
func (e *Engine) removeParticipant(occ *occupant) {
	delete(e.occupants, occ.id)
	delete(e.byClient, occ.client)
	delete(e.clients, occ.client)
	e.updateCounts()
	e.broadcast(types.WireAgentLeft{
		Type:    types.MessageTypeAgentLeft,
		AgentId: occ.id,
	}, nil)
}

func (e *Engine) move(c moveCmd) {
	occ, ok := e.byClient[c.client]
	if !ok {
		e.sendTo(c.client, types.NewWireError(types.ErrCodeNotInRoom, "not a participant in this room"))
		return
	}
	if !e.grid.InBounds(c.x, c.y) {
		msg := fmt.Sprintf("position (%d,%d) out of bounds; room is %dx%d", c.x, c.y, e.grid.Width(), e.grid.Height())
		e.sendTo(c.client, types.NewWireError(types.ErrCodeInvalidMove, msg))
		return
	}
	if !e.grid.Walkable(c.x, c.y) {
		msg := fmt.Sprintf("tile (%d,%d) is not walkable", c.x, c.y)
		e.sendTo(c.client, types.NewWireError(types.ErrCodeInvalidMove, msg))
		return
	}
	from := grid.Point{X: occ.x, Y: occ.y}
	to := grid.Point{X: c.x, Y: c.y}
	if from == to {
		return
	}
	path := e.grid.FindPath(from, to)
	if len(path) == 0 {
		msg := fmt.Sprintf("no walkable path from (%d,%d) to (%d,%d)", from.X, from.Y, to.X, to.Y)
		e.sendTo(c.client, types.NewWireError(types.ErrCodeInvalidMove, msg))
		return
	}
	// the logical position commits instantly, clients animate the path
	occ.x, occ.y = to.X, to.Y
	e.broadcast(types.WireAgentPath{
		Type:    types.MessageTypeAgentPath,
		AgentId: occ.id,
		Path:    path,
		Speed:   e.cfg.WalkSpeed,
	}, nil)
}

func (e *Engine) chat(c chatCmd) {
	occ, ok := e.byClient[c.client]
	if !ok {
		e.sendTo(c.client, types.NewWireError(types.ErrCodeNotInRoom, "not a participant in this room"))
		return
	}
	content := c.content
	if runes := []rune(content); len(runes) > e.cfg.MessageMaxLen {
		content = string(runes[:e.cfg.MessageMaxLen])
	}
	agentId := occ.id
	msg := types.ChatMessage{
		RoomId:    e.room.Id,
		AgentId:   &agentId,
		AgentName: occ.name,
		BodyColor: occ.bodyColor,
		Content:   content,
	}
	if err := e.persister.InsertMessage(&msg); err != nil {
		globals.AppLogger.Error("could not persist chat message", "room", e.room.Id, "error", err)
		e.sendTo(c.client, types.NewWireError(types.ErrCodeInternal, "could not store message"))
		return
	}
	e.appendHistory(msg)
	e.broadcast(types.NewWireChatMessage(msg), nil)
}

func (e *Engine) appendHistory(msg types.ChatMessage) {
	e.historyEnd.Value = msg
	e.historyEnd = e.historyEnd.Next()
	if e.historyEnd == e.historyStart {
		e.historyStart = e.historyStart.Next()
	}
}

func (e *Engine) historySnapshot() []types.ChatMessageInfo {
	history := make([]types.ChatMessageInfo, 0)
	for current := e.historyStart; current != e.historyEnd; current = current.Next() {
		history = append(history, types.NewChatMessageInfo(current.Value.(types.ChatMessage)))
	}
	return history
}

func (e *Engine) buildRoomState() types.WireRoomState {
	agents := make([]types.AgentInfo, 0, len(e.occupants))
	for _, occ := range e.occupants {
		agents = append(agents, occ.info())
	}
	return types.WireRoomState{
		Type: types.MessageTypeRoomState,
		Room: types.RoomInfo{
			Id:            e.room.Id,
			Name:          e.room.Name,
			Slug:          e.room.Slug,
			Description:   e.room.Description,
			OwnerId:       e.room.OwnerId,
			OwnerUsername: e.ownerUsername,
			Width:         e.room.Width,
			Height:        e.room.Height,
			Tiles:         e.room.Tiles,
			CreatedAt:     e.room.CreatedAt,
			IsPublic:      e.room.IsPublic,
		},
		Agents:   agents,
		Messages: e.historySnapshot(),
	}
}

func (e *Engine) updateCounts() {
	e.agentCount.Store(int32(len(e.occupants)))
	e.spectatorCount.Store(int32(len(e.spectators)))
}

func (e *Engine) sendTo(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal frame", "error", err)
		return
	}
	c.enqueueFrame(data)
}

// broadcast delivers a frame to every attached socket except the one
// given (nil means everyone, author included).
func (e *Engine) broadcast(v interface{}, except *Client) {
	data, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal frame", "error", err)
		return
	}
	for c := range e.clients {
		if c == except {
			continue
		}
		c.enqueueFrame(data)
	}
}

func (o *occupant) info() types.AgentInfo {
	return types.AgentInfo{
		Id:     o.id,
		Name:   o.name,
		Avatar: types.NewAvatar(o.id, o.bodyColor),
		X:      o.x,
		Y:      o.y,
	}
}
