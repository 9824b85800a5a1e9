package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gridhall/gridhall/config"
	"github.com/gridhall/gridhall/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no persistence dsn configured")
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&types.User{}, &types.Room{}, &types.ChatMessage{}); err != nil {
		return nil, err
	}
	return db, nil
}

func (p *GormPersist) FindRoomById(id string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.Where("id = ?", id).First(room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return room, err
}

func (p *GormPersist) FindRoomBySlug(slug string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.Where("slug = ?", slug).First(room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return room, err
}

func (p *GormPersist) ListPublicRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.Where("is_public = ?", true).Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) StoreRoom(room *types.Room) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(room).Error
}

func (p *GormPersist) RecentMessages(roomId string, limit int) ([]*types.ChatMessage, error) {
	msgs := make([]*types.ChatMessage, 0, limit)
	err := p.db.Where("room_id = ?", roomId).Order("created_at DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

func (p *GormPersist) InsertMessage(msg *types.ChatMessage) error {
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return p.db.Create(msg).Error
}

func (p *GormPersist) FindUserById(id string) (*types.User, error) {
	user := &types.User{}
	err := p.db.Where("id = ?", id).First(user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

func (p *GormPersist) StoreUser(user *types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(user).Error
}

func (p *GormPersist) TouchLastSeen(agentId string) error {
	res := p.db.Model(&types.User{}).Where("id = ?", agentId).Update("last_seen", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) Close() error {
	return nil
}
