// Package service provides the read-only operator layer over the hub.
//
// HubService answers the questions the REST and MCP surfaces ask: which
// rooms exist, who is in them, what was said recently, which room profiles
// are installed, and how busy the server is. It reads the room registry
// directly and never changes membership; joins, moves and leaves only ever
// go through the presence controller.
//
// Usage:
//
//	configs, _ := config.NewManager("configs")
//	svc := service.NewHubService(registry, configs,
//		service.WithRooms("hub"),
//		service.WithConnections(wsHub),
//		service.WithSessions(controller),
//	)
//
//	rooms, err := svc.ListRooms(ctx)
package service
