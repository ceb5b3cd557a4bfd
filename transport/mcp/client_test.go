package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/dungeon-hub/api"
	"github.com/wricardo/dungeon-hub/game/room"
	"github.com/wricardo/dungeon-hub/game/service"
)

func newTestAPI(t *testing.T) (*room.Registry, *Client) {
	t.Helper()

	registry := room.NewRegistry()
	svc := service.NewHubService(registry, nil, service.WithRooms("hub"))
	server := httptest.NewServer(api.NewServer(svc, nil))
	t.Cleanup(server.Close)

	return registry, NewClient(server.URL)
}

func callTool(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.GetMCPServer())
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "room not found: cellar"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Internal Server Error"))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	var response map[string]string
	require.NoError(t, client.apiCall(ctx, "GET", "/ok", nil, &response))
	assert.Equal(t, "healthy", response["status"])

	err := client.apiCall(ctx, "GET", "/missing", nil, nil)
	assert.EqualError(t, err, "room not found: cellar")

	err = client.apiCall(ctx, "GET", "/broken", nil, nil)
	assert.EqualError(t, err, "API error: 500")
}

func TestClient_apiCall_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	assert.Error(t, client.apiCall(context.Background(), "GET", "/api/health", nil, nil))
}

func TestHandleServerStats(t *testing.T) {
	registry, client := newTestAPI(t)
	_, err := registry.Join("hub", room.Member{AccountID: "A1", CharacterName: "Bob"})
	require.NoError(t, err)

	result, err := client.handleServerStats(context.Background(), callTool("server_stats", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Rooms: 1")
	assert.Contains(t, text, "Members: 1")
}

func TestHandleListRooms(t *testing.T) {
	registry, client := newTestAPI(t)
	_, err := registry.Join("hub", room.Member{AccountID: "A1", CharacterName: "Bob"})
	require.NoError(t, err)

	result, err := client.handleListRooms(context.Background(), callTool("list_rooms", map[string]interface{}{}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Rooms (1)")
	assert.Contains(t, text, "- hub: hub (1 members)")
}

func TestHandleRoomSnapshot(t *testing.T) {
	registry, client := newTestAPI(t)
	_, err := registry.Join("hub", room.Member{
		AccountID:     "A1",
		CharacterID:   7,
		CharacterName: "Bob",
		Position:      room.Position{X: 100, Y: 50.5},
	})
	require.NoError(t, err)

	t.Run("default room", func(t *testing.T) {
		result, err := client.handleRoomSnapshot(context.Background(), callTool("room_snapshot", nil))
		require.NoError(t, err)
		text := resultText(t, result)
		assert.Contains(t, text, "Room hub")
		assert.Contains(t, text, "Bob [A1] char #7 at (100,50.5)")
	})

	t.Run("unknown room", func(t *testing.T) {
		result, err := client.handleRoomSnapshot(context.Background(), callTool("room_snapshot", map[string]interface{}{"room_id": "cellar"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "room not found")
	})
}

func TestHandleRecentChat(t *testing.T) {
	registry, client := newTestAPI(t)
	sent := time.Date(2026, 10, 16, 12, 30, 0, 0, time.Local)
	for _, text := range []string{"first", "second", "third"} {
		registry.AppendChat("hub", room.ChatMessage{AccountID: "A1", CharacterName: "Bob", Message: text, SentAt: sent})
	}

	result, err := client.handleRecentChat(context.Background(), callTool("recent_chat", map[string]interface{}{
		"room_id": "hub",
		"limit":   float64(2),
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Recent chat in hub (2)")
	assert.NotContains(t, text, "first")
	assert.Contains(t, text, "[12:30:00] Bob: third")
}

func TestHandleRecentChat_Empty(t *testing.T) {
	_, client := newTestAPI(t)

	result, err := client.handleRecentChat(context.Background(), callTool("recent_chat", nil))
	require.NoError(t, err)
	assert.Equal(t, "No recent chat in hub.", resultText(t, result))
}

func TestHandleConfigs(t *testing.T) {
	_, client := newTestAPI(t)

	result, err := client.handleListConfigs(context.Background(), callTool("list_configs", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No room profiles installed")

	result, err = client.handleGetConfig(context.Background(), callTool("get_config", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = client.handleGetConfig(context.Background(), callTool("get_config", map[string]interface{}{"name": "tavern"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestFormatSettings(t *testing.T) {
	s := room.DefaultSettings()
	s.MaxMembers = 16
	s.Spawn = room.Position{X: 64, Y: 96}

	text := formatSettings("tavern", &s)
	assert.Contains(t, text, "Profile tavern: hub")
	assert.Contains(t, text, "Capacity: 16")
	assert.Contains(t, text, "Spawn: (64,96)")

	assert.Equal(t, "unlimited", formatLimit(0))
	assert.Equal(t, "3/10 members", formatCapacity(3, 10))
}

func TestMCPServer_ListsTools(t *testing.T) {
	client := NewClient("http://localhost:0")
	ctx := context.Background()

	client.GetMCPServer().HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`))
	response := client.GetMCPServer().HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	data, err := json.Marshal(response)
	require.NoError(t, err)
	for _, name := range []string{"server_stats", "list_rooms", "room_snapshot", "recent_chat", "list_configs", "get_config"} {
		assert.Contains(t, string(data), `"`+name+`"`)
	}
}
