package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/dungeon-hub/game/room"
	"github.com/wricardo/dungeon-hub/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Dungeon Hub",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Dungeon Hub - Operator Interface

This is a thin client that proxies read-only requests to the hub's REST API.
Players join, move and chat over the WebSocket protocol; nothing here changes
who is in a room.

AVAILABLE TOOLS:
- server_stats: Uptime, rooms, members, live connections
- list_rooms: Rooms with member counts and capacity
- room_snapshot: Who is in a room right now, with positions
- recent_chat: The room's recent chat history
- list_configs: Installed room profiles
- get_config: One room profile's settings`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_stats",
		Description: "Show server uptime and how many rooms, members and connections are live",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all rooms with their member counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "room_snapshot",
		Description: "Show every member currently in a room with character, position and facing",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID (default: hub)",
				},
			},
		},
	}, c.handleRoomSnapshot)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "recent_chat",
		Description: "Show a room's recent chat, oldest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID (default: hub)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Only the latest N lines (default: all buffered)",
					"minimum":     0,
					"maximum":     1000,
				},
			},
		},
	}, c.handleRecentChat)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available room profiles",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_config",
		Description: "Show the settings of one room profile",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Profile ID as shown by list_configs",
				},
			},
			Required: []string{"name"},
		},
	}, c.handleGetConfig)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handleServerStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats service.Stats
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStats(&stats)), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Total int                   `json:"total"`
		Rooms []service.RoomSummary `json:"rooms"`
	}

	if err := c.apiCall(ctx, "GET", "/api/rooms", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Rooms (%d):\n\n", response.Total)
	for _, r := range response.Rooms {
		result += fmt.Sprintf("- %s: %s (%s)\n", r.ID, r.Name, formatCapacity(r.Members, r.MaxMembers))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleRoomSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	roomID := stringArg(args, "room_id", "hub")

	var detail service.RoomDetail
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+url.PathEscape(roomID), nil, &detail); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoomDetail(&detail)), nil
}

func (c *Client) handleRecentChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	roomID := stringArg(args, "room_id", "hub")

	path := "/api/rooms/" + url.PathEscape(roomID) + "/chat"
	if limit, ok := args["limit"].(float64); ok && limit > 0 {
		path += fmt.Sprintf("?limit=%d", int(limit))
	}

	var response struct {
		Room     string             `json:"room"`
		Total    int                `json:"total"`
		Messages []service.ChatLine `json:"messages"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatChat(roomID, response.Messages)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(configs) == 0 {
		return mcp.NewToolResultText("No room profiles installed; every room runs with the built-in defaults."), nil
	}

	result := "Available Room Profiles:\n\n"
	for _, config := range configs {
		result += fmt.Sprintf("• %s (%s)\n  %s\n  Capacity: %s, Chat history: %d lines\n\n",
			config.Name, config.ConfigID, config.Description, formatLimit(config.MaxMembers), config.ChatHistory)
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	name := stringArg(args, "name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	var settings room.Settings
	if err := c.apiCall(ctx, "GET", "/api/configs/"+url.PathEscape(name), nil, &settings); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSettings(name, &settings)), nil
}

func stringArg(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func formatStats(stats *service.Stats) string {
	var b strings.Builder
	b.WriteString("Server Stats:\n")
	fmt.Fprintf(&b, "  Started: %s\n", stats.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "  Uptime: %s\n", stats.Uptime)
	fmt.Fprintf(&b, "  Rooms: %d\n", stats.Rooms)
	fmt.Fprintf(&b, "  Members: %d\n", stats.Members)
	fmt.Fprintf(&b, "  Connections: %d (sessions: %d)\n", stats.Connections, stats.Sessions)
	return b.String()
}

func formatRoomDetail(detail *service.RoomDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room %s: %s\n", detail.ID, detail.Name)
	if detail.Description != "" {
		fmt.Fprintf(&b, "%s\n", detail.Description)
	}
	fmt.Fprintf(&b, "Members: %s\n", formatCapacity(len(detail.Members), detail.MaxMembers))
	fmt.Fprintf(&b, "Spawn: (%g,%g)\n", detail.Spawn.X, detail.Spawn.Y)

	if len(detail.Members) == 0 {
		b.WriteString("\nThe room is empty.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, m := range detail.Members {
		fmt.Fprintf(&b, "- %s [%s] char #%d at (%g,%g) facing %d, joined %s\n",
			m.CharacterName, m.AccountID, m.CharacterID, m.X, m.Y, m.Direction, m.JoinedAt.Format("15:04:05"))
	}
	return b.String()
}

func formatChat(roomID string, lines []service.ChatLine) string {
	if len(lines) == 0 {
		return fmt.Sprintf("No recent chat in %s.", roomID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent chat in %s (%d):\n\n", roomID, len(lines))
	for _, l := range lines {
		fmt.Fprintf(&b, "[%s] %s: %s\n", l.SentAt.Format("15:04:05"), l.CharacterName, l.Message)
	}
	return b.String()
}

func formatSettings(name string, s *room.Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Profile %s: %s\n", name, s.Name)
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n", s.Description)
	}
	fmt.Fprintf(&b, "  Capacity: %s\n", formatLimit(s.MaxMembers))
	fmt.Fprintf(&b, "  Chat history: %d lines\n", s.ChatHistory)
	fmt.Fprintf(&b, "  Max chat length: %d\n", s.MaxChatLength)
	fmt.Fprintf(&b, "  Max name length: %d\n", s.MaxNameLength)
	fmt.Fprintf(&b, "  Spawn: (%g,%g)\n", s.Spawn.X, s.Spawn.Y)
	return b.String()
}

func formatCapacity(members, max int) string {
	if max <= 0 {
		return fmt.Sprintf("%d members", members)
	}
	return fmt.Sprintf("%d/%d members", members, max)
}

func formatLimit(max int) string {
	if max <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", max)
}
