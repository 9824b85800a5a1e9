package types

import "time"

// User is the persisted account record behind a participant. The REST
// surface owns registration and edits; the realtime core only reads it
// for owner-name resolution and touches LastSeen on auth.
type User struct {
	Id       string    `json:"id" gorm:"primaryKey"`
	Username string    `json:"username"`
	LastSeen time.Time `json:"last_seen"`
}

// Avatar is the wire representation of a participant's appearance.
type Avatar struct {
	Id        string `json:"id"`
	AgentId   string `json:"agentId"`
	BodyColor string `json:"bodyColor"`
}

func NewAvatar(agentId, bodyColor string) Avatar {
	return Avatar{Id: agentId, AgentId: agentId, BodyColor: bodyColor}
}
