package presence

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is a connection's position in the lifecycle
type State int32

const (
	StateConnected State = iota
	StateJoining
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is the outbound side of a client connection. Send must not block:
// it either queues the frame or fails.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Session is one authenticated connection
type Session struct {
	id        string
	accountID string
	conn      Conn
	state     atomic.Int32

	// joinMu guards attempt together with the Joining transitions, so a
	// queued join only commits if it is still the attempt in flight.
	joinMu  sync.Mutex
	attempt string
}

func newSession(accountID string, conn Conn) *Session {
	return &Session{
		id:        uuid.NewString(),
		accountID: accountID,
		conn:      conn,
	}
}

// ID returns the unique connection identifier
func (s *Session) ID() string { return s.id }

// AccountID returns the authenticated account
func (s *Session) AccountID() string { return s.accountID }

// State returns the current lifecycle state
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// beginJoin moves Connected to Joining and records the attempt id
func (s *Session) beginJoin(attemptID string) bool {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	if !s.transition(StateConnected, StateJoining) {
		return false
	}
	s.attempt = attemptID
	return true
}

// abandonJoin moves Joining back to Connected and forgets the attempt.
// It fails if the attempt already committed or the session closed.
func (s *Session) abandonJoin() bool {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	if !s.transition(StateJoining, StateConnected) {
		return false
	}
	s.attempt = ""
	return true
}

// commitJoin runs insert and moves Joining to Joined, but only while
// attemptID is the join in flight. rollback undoes insert when the session
// closed in the meantime.
func (s *Session) commitJoin(attemptID string, insert func() error, rollback func()) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	if s.State() != StateJoining || s.attempt != attemptID {
		return ErrJoinTimeout
	}
	if err := insert(); err != nil {
		return err
	}
	if !s.transition(StateJoining, StateJoined) {
		rollback()
		return ErrJoinTimeout
	}
	s.attempt = ""
	return nil
}
