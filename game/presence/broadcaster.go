package presence

import (
	"log/slog"
	"sync"

	"github.com/wricardo/dungeon-hub/game/room"
)

// Broadcaster fans room events out to attached connections. It never
// mutates the registry; recipients are always read from what the registry
// has already committed.
type Broadcaster struct {
	registry *room.Registry
	logger   *slog.Logger

	// Attached connections by room, then account
	subscribers map[string]map[string]Conn
	mu          sync.RWMutex
}

// NewBroadcaster creates a broadcaster reading membership from registry
func NewBroadcaster(registry *room.Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry:    registry,
		logger:      logger,
		subscribers: make(map[string]map[string]Conn),
	}
}

// Attach makes conn a recipient of the room's events for accountID
func (b *Broadcaster) Attach(roomID, accountID string, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[roomID] == nil {
		b.subscribers[roomID] = make(map[string]Conn)
	}
	b.subscribers[roomID][accountID] = conn
}

// Detach stops delivering the room's events to accountID
func (b *Broadcaster) Detach(roomID, accountID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conns, ok := b.subscribers[roomID]; ok {
		delete(conns, accountID)
		if len(conns) == 0 {
			delete(b.subscribers, roomID)
		}
	}
}

// Subscribers returns the number of attached connections in a room
func (b *Broadcaster) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[roomID])
}

// AnnounceJoin sends the post-join member list to the joiner, attaches it,
// and only then tells everyone else about the new member.
func (b *Broadcaster) AnnounceJoin(roomID, accountID string, conn Conn, members []room.Member, requestID string) {
	players := make([]PlayerInfo, 0, len(members))
	var joiner *room.Member
	for i := range members {
		players = append(players, NewPlayerInfo(members[i]))
		if members[i].AccountID == accountID {
			joiner = &members[i]
		}
	}

	b.send(roomID, accountID, conn, TypeHubPlayers, requestID, players)

	if history := b.registry.RecentChat(roomID); len(history) > 0 {
		lines := make([]ChatBroadcast, 0, len(history))
		for _, msg := range history {
			lines = append(lines, NewChatBroadcast(msg))
		}
		b.send(roomID, accountID, conn, TypeChatHistory, requestID, lines)
	}

	b.Attach(roomID, accountID, conn)

	if joiner == nil {
		b.logger.Error("joiner missing from member list", "room", roomID, "accountId", accountID)
		return
	}
	b.fanout(roomID, accountID, TypePlayerJoined, NewPlayerInfo(*joiner))
}

// AnnounceMove tells every other member where m is now
func (b *Broadcaster) AnnounceMove(roomID string, m room.Member) {
	b.fanout(roomID, m.AccountID, TypePlayerMoved, NewPlayerMoved(m))
}

// AnnounceChat delivers a chat line to every member, sender included
func (b *Broadcaster) AnnounceChat(roomID string, msg room.ChatMessage) {
	b.fanout(roomID, "", TypeChatMessage, NewChatBroadcast(msg))
}

// AnnounceLeave detaches accountID and tells the remaining members
func (b *Broadcaster) AnnounceLeave(roomID, accountID string) {
	b.Detach(roomID, accountID)
	b.fanout(roomID, accountID, TypePlayerLeft, accountID)
}

// SendError reports err to a single connection
func (b *Broadcaster) SendError(conn Conn, requestID string, err error) {
	data, encErr := Encode(TypeError, requestID, Reason(err))
	if encErr != nil {
		b.logger.Error("failed to encode error", "error", encErr)
		return
	}
	if sendErr := conn.Send(data); sendErr != nil {
		b.logger.Debug("failed to deliver error", "error", sendErr)
	}
}

func (b *Broadcaster) fanout(roomID, except, msgType string, payload interface{}) {
	data, err := Encode(msgType, "", payload)
	if err != nil {
		b.logger.Error("failed to encode broadcast", "type", msgType, "error", err)
		return
	}

	for _, m := range b.registry.Snapshot(roomID) {
		if m.AccountID == except {
			continue
		}

		b.mu.RLock()
		conn := b.subscribers[roomID][m.AccountID]
		b.mu.RUnlock()

		if conn == nil {
			continue
		}
		b.deliver(roomID, m.AccountID, conn, data)
	}
}

func (b *Broadcaster) send(roomID, accountID string, conn Conn, msgType, requestID string, payload interface{}) {
	data, err := Encode(msgType, requestID, payload)
	if err != nil {
		b.logger.Error("failed to encode message", "type", msgType, "error", err)
		return
	}
	b.deliver(roomID, accountID, conn, data)
}

// deliver queues data on conn. A connection that cannot keep up is closed;
// its own disconnect path then performs the leave.
func (b *Broadcaster) deliver(roomID, accountID string, conn Conn, data []byte) {
	if err := conn.Send(data); err != nil {
		b.logger.Warn("closing slow connection", "room", roomID, "accountId", accountID, "error", err)
		conn.Close()
	}
}
