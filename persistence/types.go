package persistence

import (
	"errors"
	"fmt"

	"github.com/gridhall/gridhall/config"
	"github.com/gridhall/gridhall/types"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Persister is the persistence capability consumed by the realtime
// core. Every call is a self-contained transaction; no multi-statement
// atomicity is required.
type Persister interface {
	FindRoomById(id string) (*types.Room, error)
	FindRoomBySlug(slug string) (*types.Room, error)
	ListPublicRooms() ([]*types.Room, error)
	StoreRoom(room *types.Room) error

	// RecentMessages returns up to limit messages for the room, newest
	// first.
	RecentMessages(roomId string, limit int) ([]*types.ChatMessage, error)
	// InsertMessage assigns the message id and timestamp and persists it.
	InsertMessage(msg *types.ChatMessage) error

	FindUserById(id string) (*types.User, error)
	StoreUser(user *types.User) error
	TouchLastSeen(agentId string) error

	Close() error
}

// NewPersister builds the backend selected by the configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	case "buntdb":
		return NewBuntPersister(cfg)
	default:
		return nil, fmt.Errorf("invalid persistence type %q", cfg.PersistenceConfig.Type)
	}
}
