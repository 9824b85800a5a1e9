package ws

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridhall/gridhall/auth"
	"github.com/gridhall/gridhall/config"
	"github.com/gridhall/gridhall/globals"
	"github.com/gridhall/gridhall/grid"
	"github.com/gridhall/gridhall/persistence"
	"github.com/gridhall/gridhall/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/robfig/cron/v3"
)

const ownerNameCacheSize = 512

// Registry is the process-wide map from room id to running engine,
// with a slug index. It loads rooms on demand, removes engines when
// they report empty (except the canonical room, which stays resident)
// and answers the discovery queries. All operations are safe from any
// socket's goroutine.
type Registry struct {
	cfg       *config.Config
	persister persistence.Persister
	tokens    *auth.TokenManager

	mu        sync.RWMutex
	engines   map[string]*Engine
	slugIndex map[string]string

	agentsMu sync.Mutex
	agents   map[string]*Client

	ownerNames *lru.Cache

	cron *cron.Cron
}

func NewRegistry(cfg *config.Config, persister persistence.Persister, tokens *auth.TokenManager) *Registry {
	cache, _ := lru.New(ownerNameCacheSize)
	return &Registry{
		cfg:        cfg,
		persister:  persister,
		tokens:     tokens,
		engines:    make(map[string]*Engine),
		slugIndex:  make(map[string]string),
		agents:     make(map[string]*Client),
		ownerNames: cache,
	}
}

func (r *Registry) Tokens() *auth.TokenManager { return r.tokens }
func (r *Registry) Persister() persistence.Persister { return r.persister }

// Start ensures the canonical room exists and is resident, and starts
// the janitor.
func (r *Registry) Start() error {
	if err := r.ensureCanonical(); err != nil {
		return err
	}
	if _, err := r.LoadBySlug(r.cfg.CanonicalSlug); err != nil {
		return err
	}
	r.cron = cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := r.cron.AddFunc("@every 1m", r.janitor); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the janitor and every engine. Sockets are closed by their
// own handlers during server shutdown.
func (r *Registry) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.engines {
		e.forceStop()
		delete(r.engines, id)
		delete(r.slugIndex, e.room.Slug)
	}
}

func (r *Registry) ensureCanonical() error {
	_, err := r.persister.FindRoomBySlug(r.cfg.CanonicalSlug)
	if err == nil {
		return nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	room := &types.Room{
		Id:        uuid.NewString(),
		Slug:      r.cfg.CanonicalSlug,
		Name:      "Lobby",
		Width:     20,
		Height:    20,
		Tiles:     grid.AllWalkable(20, 20),
		IsPublic:  true,
		CreatedAt: time.Now().UTC(),
	}
	globals.AppLogger.Info("creating canonical room", "slug", room.Slug)
	return r.persister.StoreRoom(room)
}

// LoadById returns the running engine for the room, loading it first
// when needed.
func (r *Registry) LoadById(id string) (*Engine, error) {
	r.mu.RLock()
	if e, ok := r.engines[id]; ok {
		r.mu.RUnlock()
		return e, nil
	}
	r.mu.RUnlock()

	room, err := r.persister.FindRoomById(id)
	if err != nil {
		return nil, err
	}
	return r.startEngine(room)
}

// LoadBySlug resolves the slug and loads the room.
func (r *Registry) LoadBySlug(slug string) (*Engine, error) {
	r.mu.RLock()
	if id, ok := r.slugIndex[slug]; ok {
		if e, ok := r.engines[id]; ok {
			r.mu.RUnlock()
			return e, nil
		}
	}
	r.mu.RUnlock()

	room, err := r.persister.FindRoomBySlug(slug)
	if err != nil {
		return nil, err
	}
	return r.startEngine(room)
}

// LoadByRef accepts a room id or a slug, id taking precedence.
func (r *Registry) LoadByRef(ref string) (*Engine, error) {
	e, err := r.LoadById(ref)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	return r.LoadBySlug(ref)
}

func (r *Registry) startEngine(room *types.Room) (*Engine, error) {
	if room.Width < 5 || room.Height < 5 {
		return nil, fmt.Errorf("room %s has degenerate dimensions %dx%d", room.Id, room.Width, room.Height)
	}
	// resolve the owner and fetch the history before taking the lock; a
	// slow query must not stall every concurrent join
	ownerName := r.ownerUsername(room.OwnerId)
	history, err := r.persister.RecentMessages(room.Id, r.cfg.HistoryLimit)
	if err != nil {
		globals.AppLogger.Error("could not load chat history", "room", room.Id, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[room.Id]; ok {
		return e, nil
	}
	e := NewEngine(room, r.cfg, r.persister, ownerName, history, r.onEngineEmpty)
	r.engines[room.Id] = e
	r.slugIndex[room.Slug] = room.Id
	go e.Run()
	globals.AppLogger.Info("room loaded", "room", room.Id, "slug", room.Slug)
	return e, nil
}

// onEngineEmpty is invoked from the engine loop when its last
// attachment is gone. The canonical room is kept resident; anything
// else is stopped and dropped, unless a command slipped in since.
func (r *Registry) onEngineEmpty(e *Engine) {
	if e.room.Slug == r.cfg.CanonicalSlug {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.engines[e.room.Id]; !ok || current != e {
		return
	}
	if !e.tryStop() {
		return
	}
	delete(r.engines, e.room.Id)
	delete(r.slugIndex, e.room.Slug)
	globals.AppLogger.Info("room unloaded", "room", e.room.Id, "slug", e.room.Slug)
}

// BindAgent records the socket owning an agent id. A previous socket
// bound to the same id is displaced: closed, which detaches it from
// its engine through its own read-loop cleanup.
func (r *Registry) BindAgent(agentId string, c *Client) {
	r.agentsMu.Lock()
	prev := r.agents[agentId]
	r.agents[agentId] = c
	r.agentsMu.Unlock()
	if prev != nil && prev != c {
		globals.AppLogger.Info("displacing previous socket", "agent", agentId)
		prev.Close()
	}
}

// ReleaseAgent clears the binding if the socket still owns it.
func (r *Registry) ReleaseAgent(agentId string, c *Client) {
	r.agentsMu.Lock()
	if r.agents[agentId] == c {
		delete(r.agents, agentId)
	}
	r.agentsMu.Unlock()
}

func (r *Registry) snapshotEngines() []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	return engines
}

// ActiveRooms returns the canonical room plus every loaded room with
// participants, canonical first when it is empty, then by participant
// count descending.
func (r *Registry) ActiveRooms() []types.RoomSummary {
	canonical := r.cfg.CanonicalSlug
	summaries := make([]types.RoomSummary, 0)
	seenCanonical := false
	for _, e := range r.snapshotEngines() {
		if e.room.Slug == canonical {
			seenCanonical = true
		} else if e.AgentCount() == 0 {
			continue
		}
		summaries = append(summaries, e.Summary())
	}
	if !seenCanonical {
		if room, err := r.persister.FindRoomBySlug(canonical); err == nil {
			summaries = append(summaries, types.RoomSummary{
				Id:            room.Id,
				Slug:          room.Slug,
				Name:          room.Name,
				Description:   room.Description,
				OwnerUsername: r.ownerUsername(room.OwnerId),
				IsPublic:      room.IsPublic,
			})
		}
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		ci, cj := summaries[i], summaries[j]
		if ci.Slug == canonical && ci.AgentCount == 0 {
			return true
		}
		if cj.Slug == canonical && cj.AgentCount == 0 {
			return false
		}
		return ci.AgentCount > cj.AgentCount
	})
	return summaries
}

// MostWatchedRooms returns the loaded rooms with spectators, most
// watched first.
func (r *Registry) MostWatchedRooms() []types.RoomSummary {
	summaries := make([]types.RoomSummary, 0)
	for _, e := range r.snapshotEngines() {
		if e.SpectatorCount() > 0 {
			summaries = append(summaries, e.Summary())
		}
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].SpectatorCount > summaries[j].SpectatorCount
	})
	return summaries
}

// Search matches the query case-insensitively against public room
// names and owner display names, across loaded and persisted rooms,
// deduped by id. Loaded rooms win so live counts are reported.
func (r *Registry) Search(query string) []types.RoomSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	results := make(map[string]types.RoomSummary)
	for _, e := range r.snapshotEngines() {
		if !e.room.IsPublic {
			continue
		}
		s := e.Summary()
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.OwnerUsername), q) {
			results[s.Id] = s
		}
	}
	rooms, err := r.persister.ListPublicRooms()
	if err != nil {
		globals.AppLogger.Error("could not list public rooms", "error", err)
	}
	for _, room := range rooms {
		if _, ok := results[room.Id]; ok {
			continue
		}
		ownerName := r.ownerUsername(room.OwnerId)
		if strings.Contains(strings.ToLower(room.Name), q) || (ownerName != "" && strings.Contains(strings.ToLower(ownerName), q)) {
			results[room.Id] = types.RoomSummary{
				Id:            room.Id,
				Slug:          room.Slug,
				Name:          room.Name,
				Description:   room.Description,
				OwnerUsername: ownerName,
				IsPublic:      room.IsPublic,
			}
		}
	}
	out := make([]types.RoomSummary, 0, len(results))
	for _, s := range results {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ConnectionCounts reports the live population across all rooms.
func (r *Registry) ConnectionCounts() (agents, spectators int) {
	for _, e := range r.snapshotEngines() {
		agents += e.AgentCount()
		spectators += e.SpectatorCount()
	}
	return agents, spectators
}

// RoomCount reports the number of loaded engines.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

func (r *Registry) ownerUsername(ownerId string) string {
	if ownerId == "" {
		return ""
	}
	if name, ok := r.ownerNames.Get(ownerId); ok {
		return name.(string)
	}
	user, err := r.persister.FindUserById(ownerId)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			globals.AppLogger.Error("could not resolve owner", "owner", ownerId, "error", err)
		}
		return ""
	}
	r.ownerNames.Add(ownerId, user.Username)
	return user.Username
}

// janitor flushes last-seen for every connected participant and logs
// occupancy. Unloading stays event-driven; this only observes.
func (r *Registry) janitor() {
	for _, e := range r.snapshotEngines() {
		for _, id := range e.AgentIds() {
			if err := r.persister.TouchLastSeen(id); err != nil && !errors.Is(err, persistence.ErrNotFound) {
				globals.AppLogger.Error("could not touch last seen", "agent", id, "error", err)
			}
		}
		globals.AppLogger.Debug("room occupancy", "room", e.room.Id, "agents", e.AgentCount(), "spectators", e.SpectatorCount())
	}
}
