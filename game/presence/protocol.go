package presence

import (
	"encoding/json"
	"errors"

	"github.com/wricardo/dungeon-hub/game/room"
)

// Client to server message types
const (
	TypeJoinHub     = "joinHub"
	TypePlayerMove  = "playerMove"
	TypeChatMessage = "chatMessage"
)

// Server to client message types
const (
	TypeHubPlayers   = "hubPlayers"
	TypePlayerJoined = "playerJoined"
	TypePlayerMoved  = "playerMoved"
	TypePlayerLeft   = "playerLeft"
	TypeChatHistory  = "chatHistory"
	TypeError        = "error"
)

// Reasons carried by error messages
const (
	ReasonUnauthenticated = "Unauthenticated"
	ReasonAlreadyJoined   = "AlreadyJoined"
	ReasonJoinTimeout     = "JoinTimeout"
	ReasonRoomFull        = "RoomFull"
	ReasonInvalidMessage  = "InvalidMessage"
	ReasonShuttingDown    = "ServerShuttingDown"
	ReasonInternal        = "InternalError"
)

var (
	ErrJoinTimeout    = errors.New("join timed out")
	ErrNotJoined      = errors.New("connection has not joined")
	ErrInvalidMessage = errors.New("invalid message")
	ErrStopped        = errors.New("presence controller stopped")
)

// Envelope is the frame every message travels in
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// JoinHubRequest is the joinHub payload. Missing coordinates mean spawn.
type JoinHubRequest struct {
	CharacterID   int64    `json:"characterId"`
	CharacterName string   `json:"characterName"`
	X             *float64 `json:"x,omitempty"`
	Y             *float64 `json:"y,omitempty"`
}

// PlayerMoveRequest is the playerMove payload
type PlayerMoveRequest struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction int     `json:"direction"`
	AnimFrame int     `json:"animFrame"`
}

// PlayerInfo describes a member on the wire
type PlayerInfo struct {
	AccountID     string  `json:"accountId"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	CharacterName string  `json:"characterName"`
	CharacterID   int64   `json:"characterId"`
	Direction     int     `json:"direction"`
	AnimFrame     int     `json:"animFrame"`
}

// PlayerMoved is the playerMoved payload
type PlayerMoved struct {
	AccountID string  `json:"accountId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction int     `json:"direction"`
	AnimFrame int     `json:"animFrame"`
}

// ChatBroadcast is the chatMessage payload sent to clients. Timestamp is in
// Unix milliseconds.
type ChatBroadcast struct {
	AccountID     string `json:"accountId"`
	CharacterName string `json:"characterName"`
	Message       string `json:"message"`
	Timestamp     int64  `json:"timestamp"`
}

// NewPlayerInfo converts a member record to its wire form
func NewPlayerInfo(m room.Member) PlayerInfo {
	return PlayerInfo{
		AccountID:     m.AccountID,
		X:             m.Position.X,
		Y:             m.Position.Y,
		CharacterName: m.CharacterName,
		CharacterID:   m.CharacterID,
		Direction:     m.Facing.Direction,
		AnimFrame:     m.Facing.AnimFrame,
	}
}

// NewPlayerMoved converts a member record to a playerMoved payload
func NewPlayerMoved(m room.Member) PlayerMoved {
	return PlayerMoved{
		AccountID: m.AccountID,
		X:         m.Position.X,
		Y:         m.Position.Y,
		Direction: m.Facing.Direction,
		AnimFrame: m.Facing.AnimFrame,
	}
}

// NewChatBroadcast converts a chat line to its wire form
func NewChatBroadcast(msg room.ChatMessage) ChatBroadcast {
	return ChatBroadcast{
		AccountID:     msg.AccountID,
		CharacterName: msg.CharacterName,
		Message:       msg.Message,
		Timestamp:     msg.SentAt.UnixMilli(),
	}
}

// Encode builds one outbound frame
func Encode(msgType, requestID string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, RequestID: requestID, Data: raw})
}

// Reason maps an error to the reason string shown to the client
func Reason(err error) string {
	switch {
	case errors.Is(err, room.ErrAlreadyJoined):
		return ReasonAlreadyJoined
	case errors.Is(err, room.ErrRoomFull):
		return ReasonRoomFull
	case errors.Is(err, ErrJoinTimeout):
		return ReasonJoinTimeout
	case errors.Is(err, ErrStopped):
		return ReasonShuttingDown
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, room.ErrInvalidMember):
		return ReasonInvalidMessage
	default:
		return ReasonInternal
	}
}
