// Package websocket carries the hub protocol over WebSocket connections.
//
// The Hub upgrades each request, authenticates it with an auth.Validator,
// and registers the connection with the presence controller. Every
// connection gets two goroutines:
//
//   - readPump decodes frames and passes them to presence.Controller.Handle.
//     When the peer goes away (close frame, read error or missed pong) it
//     closes the session, which removes the member and tells the room.
//   - writePump drains a bounded send queue, one JSON envelope per frame,
//     and pings the peer every 54 seconds.
//
// Client implements presence.Conn. Send never blocks; a full queue makes the
// broadcaster close the client, and the normal disconnect path follows.
//
// Rejected credentials still complete the upgrade so the client can read
// why: the server sends {"type":"error","data":"Unauthenticated"} and a
// 1008 close frame.
//
// Usage:
//
//	hub := websocket.NewHub(controller, validator, logger)
//	go hub.Run(ctx)
//
//	router.HandleFunc("/ws", hub.ServeWS)
//
// Cancelling the context passed to Run sends ServerShuttingDown to every
// live client and closes it with code 1001.
package websocket
