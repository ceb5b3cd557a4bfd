package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/wricardo/dungeon-hub/game/room"
)

// hubServiceImpl implements the HubService interface
type hubServiceImpl struct {
	registry    *room.Registry
	configs     ConfigManager
	connections ConnectionCounter
	sessions    SessionCounter
	known       []string
	startedAt   time.Time
	now         func() time.Time
}

// Option configures the hub service
type Option func(*hubServiceImpl)

// WithRooms lists rooms that exist before anyone joins them
func WithRooms(roomIDs ...string) Option {
	return func(s *hubServiceImpl) {
		s.known = append(s.known, roomIDs...)
	}
}

// WithConnections sets where the live connection count comes from
func WithConnections(c ConnectionCounter) Option {
	return func(s *hubServiceImpl) {
		s.connections = c
	}
}

// WithSessions sets where the open session count comes from
func WithSessions(c SessionCounter) Option {
	return func(s *hubServiceImpl) {
		s.sessions = c
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *hubServiceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

// NewHubService creates a new hub service instance. configs may be nil when
// no profile directory is available.
func NewHubService(registry *room.Registry, configs ConfigManager, opts ...Option) HubService {
	s := &hubServiceImpl{
		registry: registry,
		configs:  configs,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

// ListRooms returns every known room with its current member count
func (s *hubServiceImpl) ListRooms(ctx context.Context) ([]*RoomSummary, error) {
	ids := s.roomIDs()
	rooms := make([]*RoomSummary, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, s.summary(id))
	}
	return rooms, nil
}

// GetRoom returns a snapshot of one room's members
func (s *hubServiceImpl) GetRoom(ctx context.Context, roomID string) (*RoomDetail, error) {
	if !s.exists(roomID) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	snapshot := s.registry.Snapshot(roomID)
	members := make([]MemberInfo, 0, len(snapshot))
	for _, m := range snapshot {
		members = append(members, MemberInfo{
			AccountID:     m.AccountID,
			CharacterID:   m.CharacterID,
			CharacterName: m.CharacterName,
			X:             m.Position.X,
			Y:             m.Position.Y,
			Direction:     m.Facing.Direction,
			AnimFrame:     m.Facing.AnimFrame,
			JoinedAt:      m.JoinedAt,
		})
	}

	summary := s.summary(roomID)
	summary.Members = len(members)
	settings := s.registry.Settings(roomID)

	return &RoomDetail{
		RoomSummary: *summary,
		Spawn:       Point{X: settings.Spawn.X, Y: settings.Spawn.Y},
		Members:     members,
		TakenAt:     s.now(),
	}, nil
}

// RecentChat returns up to limit of the room's latest chat lines, oldest
// first. A limit of zero or less returns everything buffered.
func (s *hubServiceImpl) RecentChat(ctx context.Context, roomID string, limit int) ([]*ChatLine, error) {
	if !s.exists(roomID) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	history := s.registry.RecentChat(roomID)
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	lines := make([]*ChatLine, 0, len(history))
	for _, msg := range history {
		lines = append(lines, &ChatLine{
			AccountID:     msg.AccountID,
			CharacterName: msg.CharacterName,
			Message:       msg.Message,
			SentAt:        msg.SentAt,
		})
	}
	return lines, nil
}

// ListConfigs returns all available room profiles
func (s *hubServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	if s.configs == nil {
		return []*ConfigInfo{}, nil
	}
	return s.configs.ListConfigs()
}

// LoadConfig loads a room profile by name
func (s *hubServiceImpl) LoadConfig(ctx context.Context, configName string) (*room.Settings, error) {
	if s.configs == nil {
		if configName == "" {
			settings := room.DefaultSettings()
			return &settings, nil
		}
		return nil, fmt.Errorf("%w: '%s' (no config directory)", ErrConfigNotFound, configName)
	}
	if configName == "" {
		return s.configs.GetDefault(), nil
	}
	return s.configs.LoadConfig(configName)
}

// Stats summarizes the server
func (s *hubServiceImpl) Stats(ctx context.Context) (*Stats, error) {
	uptime := s.now().Sub(s.startedAt)

	stats := &Stats{
		StartedAt:     s.startedAt,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
	}
	for _, id := range s.roomIDs() {
		stats.Rooms++
		stats.Members += s.registry.Count(id)
	}
	if s.connections != nil {
		stats.Connections = s.connections.Connections()
	}
	if s.sessions != nil {
		stats.Sessions = s.sessions.Sessions()
	}
	return stats, nil
}

func (s *hubServiceImpl) summary(roomID string) *RoomSummary {
	settings := s.registry.Settings(roomID)
	return &RoomSummary{
		ID:          roomID,
		Name:        settings.Name,
		Description: settings.Description,
		Members:     s.registry.Count(roomID),
		MaxMembers:  settings.MaxMembers,
	}
}

// roomIDs merges rooms the registry has seen with the preconfigured ones
func (s *hubServiceImpl) roomIDs() []string {
	ids := append(s.registry.Rooms(), s.known...)
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (s *hubServiceImpl) exists(roomID string) bool {
	_, found := slices.BinarySearch(s.roomIDs(), roomID)
	return found
}
