package types

import "time"

// Room is the persisted room record. Tiles is the full W×H tile map,
// row-major, 0 walkable / 1 blocked. The in-memory population lives in
// the room's engine, not here.
type Room struct {
	Id          string    `json:"id" gorm:"primaryKey"`
	Slug        string    `json:"slug" gorm:"uniqueIndex"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerId     string    `json:"ownerId,omitempty"`
	Owner       *User     `json:"-" gorm:"foreignKey:OwnerId"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Tiles       TileGrid  `json:"tiles"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RoomSummary is the discovery-query view of a room, live counts
// included when the room is loaded.
type RoomSummary struct {
	Id             string `json:"id"`
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	OwnerUsername  string `json:"ownerUsername,omitempty"`
	AgentCount     int    `json:"agentCount"`
	SpectatorCount int    `json:"spectatorCount"`
	IsPublic       bool   `json:"isPublic"`
}
