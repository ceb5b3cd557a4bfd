package service

import (
	"time"
)

// ConfigInfo describes a room profile file
type ConfigInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"` // identifier to pass to LoadConfig
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxMembers  int    `json:"max_members"`
	ChatHistory int    `json:"chat_history"`
}

// RoomSummary is one entry of the room list
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     int    `json:"members"`
	MaxMembers  int    `json:"max_members"`
}

// MemberInfo is a member as seen by operators
type MemberInfo struct {
	AccountID     string    `json:"account_id"`
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	Direction     int       `json:"direction"`
	AnimFrame     int       `json:"anim_frame"`
	JoinedAt      time.Time `json:"joined_at"`
}

// RoomDetail is a point-in-time snapshot of one room
type RoomDetail struct {
	RoomSummary
	Spawn   Point        `json:"spawn"`
	Members []MemberInfo `json:"member_list"`
	TakenAt time.Time    `json:"taken_at"`
}

// Point is a world coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ChatLine is one line of recent chat
type ChatLine struct {
	AccountID     string    `json:"account_id"`
	CharacterName string    `json:"character_name"`
	Message       string    `json:"message"`
	SentAt        time.Time `json:"sent_at"`
}

// Stats summarizes the running server
type Stats struct {
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Rooms         int       `json:"rooms"`
	Members       int       `json:"members"`
	Connections   int       `json:"connections"`
	Sessions      int       `json:"sessions"`
}
