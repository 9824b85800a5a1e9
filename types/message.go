package types

import "time"

// ChatMessage is a persisted chat line. AgentName and BodyColor are
// snapshots taken at insert time and never back-filled, so history
// renders with the then-current avatar. AgentId is nil once the author
// account is deleted.
type ChatMessage struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	RoomId    string    `json:"roomId" gorm:"index:idx_messages_room_created,priority:1"`
	AgentId   *string   `json:"agentId"`
	AgentName string    `json:"agentName"`
	BodyColor string    `json:"bodyColor"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp" gorm:"index:idx_messages_room_created,priority:2"`
}
