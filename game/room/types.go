package room

import (
	"fmt"
	"math"
	"time"
)

// Position is a point in world coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are real numbers
func (p Position) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Facing is the last reported sprite orientation. It is advisory only.
type Facing struct {
	Direction int `json:"direction"`
	AnimFrame int `json:"animFrame"`
}

// Member is a joined account's live presence record within a room
type Member struct {
	AccountID     string    `json:"accountId"`
	CharacterID   int64     `json:"characterId"`
	CharacterName string    `json:"characterName"`
	Position      Position  `json:"position"`
	Facing        Facing    `json:"facing"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// ChatMessage is one line of room chat
type ChatMessage struct {
	AccountID     string    `json:"accountId"`
	CharacterName string    `json:"characterName"`
	Message       string    `json:"message"`
	SentAt        time.Time `json:"sentAt"`
}

// Settings configures a single room
type Settings struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	MaxMembers    int      `json:"max_members"`     // 0 means unlimited
	ChatHistory   int      `json:"chat_history"`    // recent chat lines kept for late joiners
	MaxChatLength int      `json:"max_chat_length"` // in runes
	MaxNameLength int      `json:"max_name_length"` // in runes
	Spawn         Position `json:"spawn"`
}

// DefaultSettings returns the settings used when no room profile is configured
func DefaultSettings() Settings {
	return Settings{
		Name:          "hub",
		Description:   "Shared social hub",
		MaxMembers:    0,
		ChatHistory:   50,
		MaxChatLength: 200,
		MaxNameLength: 32,
	}
}

// ValidateSettings checks that a room profile is usable
func ValidateSettings(s *Settings) error {
	if s == nil {
		return fmt.Errorf("settings cannot be nil")
	}
	if s.Name == "" {
		return fmt.Errorf("room name is required")
	}
	if s.MaxMembers < 0 {
		return fmt.Errorf("max_members must be >= 0, got %d", s.MaxMembers)
	}
	if s.ChatHistory < 0 || s.ChatHistory > 1000 {
		return fmt.Errorf("chat_history must be between 0 and 1000, got %d", s.ChatHistory)
	}
	if s.MaxChatLength <= 0 || s.MaxChatLength > 2000 {
		return fmt.Errorf("max_chat_length must be between 1 and 2000, got %d", s.MaxChatLength)
	}
	if s.MaxNameLength <= 0 || s.MaxNameLength > 64 {
		return fmt.Errorf("max_name_length must be between 1 and 64, got %d", s.MaxNameLength)
	}
	if !s.Spawn.IsFinite() {
		return fmt.Errorf("spawn must be finite")
	}
	return nil
}
