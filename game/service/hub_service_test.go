package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/dungeon-hub/game/room"
)

type fakeConfigs struct {
	profiles map[string]room.Settings
}

func (f *fakeConfigs) LoadConfig(name string) (*room.Settings, error) {
	s, ok := f.profiles[name]
	if !ok {
		return nil, ErrConfigNotFound
	}
	return &s, nil
}

func (f *fakeConfigs) ListConfigs() ([]*ConfigInfo, error) {
	var out []*ConfigInfo
	for name, s := range f.profiles {
		out = append(out, &ConfigInfo{Filename: name + ".json", ConfigID: name, Name: s.Name})
	}
	return out, nil
}

func (f *fakeConfigs) GetDefault() *room.Settings {
	s := room.DefaultSettings()
	s.Name = "fake default"
	return &s
}

type counter int

func (c counter) Connections() int { return int(c) }
func (c counter) Sessions() int    { return int(c) }

func TestHubService_ListRooms(t *testing.T) {
	registry := room.NewRegistry()
	svc := NewHubService(registry, nil, WithRooms("hub"))

	rooms, err := svc.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1, "preconfigured room is listed before anyone joins")
	assert.Equal(t, "hub", rooms[0].ID)
	assert.Equal(t, 0, rooms[0].Members)

	_, err = registry.Join("hub", room.Member{AccountID: "A1", CharacterName: "Bob"})
	require.NoError(t, err)
	_, err = registry.Join("arena", room.Member{AccountID: "A2", CharacterName: "Ann"})
	require.NoError(t, err)

	rooms, err = svc.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "arena", rooms[0].ID)
	assert.Equal(t, "hub", rooms[1].ID)
	assert.Equal(t, 1, rooms[1].Members)
}

func TestHubService_GetRoom(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	registry := room.NewRegistry(room.WithClock(func() time.Time { return now }))
	svc := NewHubService(registry, nil, WithRooms("hub"), WithClock(func() time.Time { return now }))

	_, err := registry.Join("hub", room.Member{
		AccountID:     "A1",
		CharacterID:   7,
		CharacterName: "Bob",
		Position:      room.Position{X: 100, Y: 50},
		Facing:        room.Facing{Direction: 3},
	})
	require.NoError(t, err)

	detail, err := svc.GetRoom(context.Background(), "hub")
	require.NoError(t, err)
	assert.Equal(t, "hub", detail.ID)
	assert.Equal(t, 1, detail.RoomSummary.Members)
	assert.Equal(t, now, detail.TakenAt)
	require.Len(t, detail.Members, 1)
	assert.Equal(t, MemberInfo{
		AccountID:     "A1",
		CharacterID:   7,
		CharacterName: "Bob",
		X:             100,
		Y:             50,
		Direction:     3,
		JoinedAt:      now,
	}, detail.Members[0])

	_, err = svc.GetRoom(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestHubService_RecentChat(t *testing.T) {
	registry := room.NewRegistry()
	svc := NewHubService(registry, nil, WithRooms("hub"))

	lines, err := svc.RecentChat(context.Background(), "hub", 0)
	require.NoError(t, err)
	assert.Empty(t, lines)

	for _, text := range []string{"one", "two", "three"} {
		registry.AppendChat("hub", room.ChatMessage{AccountID: "A1", CharacterName: "Bob", Message: text})
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 0, want: []string{"one", "two", "three"}},
		{name: "latest two", limit: 2, want: []string{"two", "three"}},
		{name: "limit above size", limit: 10, want: []string{"one", "two", "three"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := svc.RecentChat(context.Background(), "hub", tt.limit)
			require.NoError(t, err)
			var got []string
			for _, l := range lines {
				got = append(got, l.Message)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = svc.RecentChat(context.Background(), "nowhere", 0)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestHubService_Configs(t *testing.T) {
	t.Run("without config directory", func(t *testing.T) {
		svc := NewHubService(room.NewRegistry(), nil)

		configs, err := svc.ListConfigs(context.Background())
		require.NoError(t, err)
		assert.Empty(t, configs)

		settings, err := svc.LoadConfig(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, room.DefaultSettings(), *settings)

		_, err = svc.LoadConfig(context.Background(), "arena")
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("with config manager", func(t *testing.T) {
		arena := room.DefaultSettings()
		arena.Name = "Arena"
		arena.MaxMembers = 8
		svc := NewHubService(room.NewRegistry(), &fakeConfigs{profiles: map[string]room.Settings{"arena": arena}})

		configs, err := svc.ListConfigs(context.Background())
		require.NoError(t, err)
		require.Len(t, configs, 1)
		assert.Equal(t, "arena", configs[0].ConfigID)

		settings, err := svc.LoadConfig(context.Background(), "arena")
		require.NoError(t, err)
		assert.Equal(t, 8, settings.MaxMembers)

		settings, err = svc.LoadConfig(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "fake default", settings.Name)
	})
}

func TestHubService_Stats(t *testing.T) {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	now := start
	registry := room.NewRegistry()
	svc := NewHubService(registry, nil,
		WithRooms("hub"),
		WithConnections(counter(3)),
		WithSessions(counter(2)),
		WithClock(func() time.Time { return now }),
	)

	for _, id := range []string{"A1", "A2"} {
		_, err := registry.Join("hub", room.Member{AccountID: id, CharacterName: id})
		require.NoError(t, err)
	}
	now = start.Add(90 * time.Second)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start, stats.StartedAt)
	assert.Equal(t, "1m30s", stats.Uptime)
	assert.Equal(t, int64(90), stats.UptimeSeconds)
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, 2, stats.Members)
	assert.Equal(t, 3, stats.Connections)
	assert.Equal(t, 2, stats.Sessions)
}
