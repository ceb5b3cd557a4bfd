// Package presence implements the hub's real-time presence protocol: the
// connection lifecycle state machine and the fan-out of join, move, chat and
// leave events to the other members of a room.
//
// Architecture:
//
// A single Controller event loop (Run) applies every room-changing command in
// arrival order. Each command touches the room.Registry first and only then
// asks the Broadcaster to announce what the registry committed, so what was
// recorded and what was announced can never disagree. Sends are non-blocking
// enqueues onto each connection's outbound queue; the loop never waits on the
// network.
//
// Connection Lifecycle:
//
//	Connected --joinHub--> Joining --registry ok--> Joined --close--> Disconnected
//	                          |
//	                          +--registry error / timeout--> Connected
//
// The joining reader waits for the loop's reply for at most the join timeout.
// Both sides settle the outcome with a compare-and-swap on the session state:
// if the deadline wins, the loop rolls the insert back before announcing it.
//
// Ordering:
//
// The joiner receives hubPlayers before it is attached as a recipient, and
// peers receive playerJoined only after that. A peer's move can therefore
// never reach the joiner ahead of the list that introduces the peer. Events
// from one connection are applied in the order they were read.
//
// Usage:
//
//	registry := room.NewRegistry()
//	controller := presence.NewController(registry, presence.WithRoom("hub"))
//	go controller.Run(ctx)
//
//	session := controller.Open(accountID, conn)
//	defer controller.Close(session)
//	for frame := range frames {
//		controller.Handle(ctx, session, frame)
//	}
package presence
