// Package room provides the in-memory room registry for the dungeon hub.
//
// The room package implements:
//   - Thread-safe membership tracking per room
//   - Atomic join with a full member list snapshot
//   - Idempotent leave
//   - In-place position and facing updates
//   - A bounded recent-chat buffer per room
//
// Core Types:
//
// Registry is the sole owner of "who is where". It maps a room identifier to
// a Room, and each Room maps an account identifier to its Member record.
// Callers never receive a pointer into the member map; every read returns a
// copy, so what a caller holds can never drift from what was committed.
//
// Invariants:
//
// An account appears at most once per room. A second Join for an account that
// is already present fails with ErrAlreadyJoined and leaves the existing
// record untouched. Leave and UpdatePosition on an absent account are no-ops.
//
// Concurrency:
//
// Each Room carries its own lock around its member map, so operations on
// different rooms never contend. The registry-level lock only guards the
// room map itself. No method performs I/O while holding a lock.
//
// Usage:
//
//	registry := room.NewRegistry()
//
//	members, err := registry.Join("hub", room.Member{
//		AccountID:     "A1",
//		CharacterID:   7,
//		CharacterName: "Bob",
//		Position:      room.Position{X: 100, Y: 100},
//	})
//	if errors.Is(err, room.ErrAlreadyJoined) {
//		// existing membership untouched
//	}
//
//	registry.UpdatePosition("hub", "A1", room.Position{X: 150, Y: 100}, room.Facing{Direction: 1})
//	registry.Leave("hub", "A1")
package room
