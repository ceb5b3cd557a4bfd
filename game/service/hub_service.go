package service

import (
	"context"
	"errors"

	"github.com/wricardo/dungeon-hub/game/room"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrConfigNotFound = errors.New("configuration not found")
)

// HubService exposes read-only views of the running hub to the REST and
// MCP surfaces. Nothing here mutates membership; that belongs to the
// presence controller.
type HubService interface {
	// Rooms
	ListRooms(ctx context.Context) ([]*RoomSummary, error)
	GetRoom(ctx context.Context, roomID string) (*RoomDetail, error)
	RecentChat(ctx context.Context, roomID string, limit int) ([]*ChatLine, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*room.Settings, error)

	// Server
	Stats(ctx context.Context) (*Stats, error)
}

// ConfigManager handles room profile loading
type ConfigManager interface {
	LoadConfig(name string) (*room.Settings, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *room.Settings
}

// ConnectionCounter reports live transport connections
type ConnectionCounter interface {
	Connections() int
}

// SessionCounter reports open presence sessions
type SessionCounter interface {
	Sessions() int
}
