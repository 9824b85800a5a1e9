package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gridhall/gridhall/config"
	"github.com/gridhall/gridhall/types"
	"github.com/tidwall/buntdb"
)

// BuntPersist is the single-file (or in-memory) KV backend. Records
// are stored as JSON values: room:<id>, slug:<slug> (slug index),
// user:<id> and message:<id>, with a secondary index on the message
// timestamp for history scans.
type BuntPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	return &BuntPersist{db: db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no persistence dsn configured")
	}
	db, err := buntdb.Open(cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("messages_created", "message:*", buntdb.IndexJSON("timestamp"))
	if err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (p *BuntPersist) FindRoomById(id string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get("room:" + id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), room)
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *BuntPersist) FindRoomBySlug(slug string) (*types.Room, error) {
	var id string
	err := p.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get("slug:" + slug)
		if err != nil {
			return err
		}
		id = val
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p.FindRoomById(id)
}

func (p *BuntPersist) ListPublicRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			room := &types.Room{}
			if err := json.Unmarshal([]byte(val), room); err == nil && room.IsPublic {
				rooms = append(rooms, room)
			}
			return true
		})
	})
	return rooms, err
}

func (p *BuntPersist) StoreRoom(room *types.Room) error {
	val, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set("room:"+room.Id, string(val), nil); err != nil {
			return err
		}
		_, _, err := tx.Set("slug:"+room.Slug, room.Id, nil)
		return err
	})
}

func (p *BuntPersist) RecentMessages(roomId string, limit int) ([]*types.ChatMessage, error) {
	msgs := make([]*types.ChatMessage, 0, limit)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend("messages_created", func(key, val string) bool {
			msg := &types.ChatMessage{}
			if err := json.Unmarshal([]byte(val), msg); err != nil {
				return true
			}
			if msg.RoomId != roomId {
				return true
			}
			msgs = append(msgs, msg)
			return limit <= 0 || len(msgs) < limit
		})
	})
	return msgs, err
}

func (p *BuntPersist) InsertMessage(msg *types.ChatMessage) error {
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	val, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("message:"+msg.Id, string(val), nil)
		return err
	})
}

func (p *BuntPersist) FindUserById(id string) (*types.User, error) {
	user := &types.User{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get("user:" + id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), user)
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *BuntPersist) StoreUser(user *types.User) error {
	val, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("user:"+user.Id, string(val), nil)
		return err
	})
}

func (p *BuntPersist) TouchLastSeen(agentId string) error {
	user, err := p.FindUserById(agentId)
	if err != nil {
		return err
	}
	user.LastSeen = time.Now().UTC()
	return p.StoreUser(user)
}

func (p *BuntPersist) Close() error {
	return p.db.Close()
}
