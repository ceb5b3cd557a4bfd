// Package mcp exposes the hub's operator views as Model Context Protocol
// tools.
//
// The Client is a thin proxy: every tool calls the REST API and formats the
// answer as text for an agent. It never opens a WebSocket and never changes
// membership.
//
// MCP Tools:
//   - server_stats: uptime, rooms, members and live connections
//   - list_rooms: rooms with member counts
//   - room_snapshot: members of one room with positions
//   - recent_chat: a room's chat history
//   - list_configs: installed room profiles
//   - get_config: one profile's settings
//
// Transport Modes:
//   - Stdio: the "mcp" command serves GetMCPServer over stdin/stdout
//   - HTTP: the "serve" command answers POST /mcp with HandleMessage
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
