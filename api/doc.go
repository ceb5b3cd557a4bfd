// Package api provides the HTTP surface of the hub server.
//
// Endpoints:
//
// Diagnostics:
//   - GET /api/health - Liveness probe
//   - GET /api/stats - Uptime, rooms, members, connections and sessions
//
// Rooms:
//   - GET /api/rooms - List rooms with member counts
//   - GET /api/rooms/{id} - Point-in-time member snapshot
//   - GET /api/rooms/{id}/chat?limit=N - Recent chat, oldest first
//
// Configuration:
//   - GET /api/configs - List room profiles
//   - GET /api/configs/{name} - Load one profile
//
// Realtime:
//   - GET /ws - WebSocket upgrade, authenticated with a bearer JWT in the
//     Authorization header or the token query parameter
//
// Everything else is served from the static directory when one is set.
//
// The REST endpoints are read-only. Membership only changes through the
// WebSocket protocol.
//
// Usage:
//
//	apiServer := api.NewServer(hubService, wsHub, api.WithStaticDir("static"))
//	http.ListenAndServe(":8080", apiServer)
//
// Errors are returned as JSON with an appropriate status code:
//
//	{"error": "room not found: cellar"}
package api
