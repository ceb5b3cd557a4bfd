package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/wricardo/dungeon-hub/game/room"
)

const (
	// DefaultJoinTimeout bounds how long a join may stay in flight.
	DefaultJoinTimeout = 5 * time.Second

	// DefaultRoom is the shared hub every connection joins.
	DefaultRoom = "hub"

	commandQueueSize = 1024
)

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdMove
	cmdChat
	cmdLeave
)

type command struct {
	kind      commandKind
	session   *Session
	joinID    string
	member    room.Member
	requestID string
	position  room.Position
	facing    room.Facing
	text      string
	reply     chan error
	done      chan struct{}
}

// Controller runs the connection lifecycle for one room
type Controller struct {
	registry    *room.Registry
	broadcaster *Broadcaster
	roomID      string
	joinTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	commands chan command
	done     chan struct{}
	started  atomic.Bool
	sessions atomic.Int64
}

// Option configures a Controller
type Option func(*Controller)

// WithRoom sets the room connections join
func WithRoom(roomID string) Option {
	return func(c *Controller) {
		if roomID != "" {
			c.roomID = roomID
		}
	}
}

// WithJoinTimeout bounds the join handshake
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.joinTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source for chat timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates a controller over registry
func NewController(registry *room.Registry, opts ...Option) *Controller {
	c := &Controller{
		registry:    registry,
		roomID:      DefaultRoom,
		joinTimeout: DefaultJoinTimeout,
		logger:      slog.Default(),
		now:         time.Now,
		commands:    make(chan command, commandQueueSize),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.broadcaster = NewBroadcaster(registry, c.logger)
	return c
}

// Run applies commands until ctx is cancelled. It must be called once.
func (c *Controller) Run(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	defer close(c.done)

	c.logger.Info("presence loop started", "room", c.roomID)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("presence loop stopped", "room", c.roomID)
			return

		case cmd := <-c.commands:
			c.apply(cmd)
		}
	}
}

// Done is closed once Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Room returns the room this controller serves
func (c *Controller) Room() string {
	return c.roomID
}

// Sessions returns the number of open sessions
func (c *Controller) Sessions() int {
	return int(c.sessions.Load())
}

// Broadcaster exposes the fan-out used by this controller
func (c *Controller) Broadcaster() *Broadcaster {
	return c.broadcaster
}

// Open registers an authenticated connection in the Connected state
func (c *Controller) Open(accountID string, conn Conn) *Session {
	s := newSession(accountID, conn)
	c.sessions.Add(1)
	c.logger.Debug("session opened", "sessionId", s.id, "accountId", accountID)
	return s
}

// Close ends a session. If it had joined, the member is removed and the
// remaining members are told before Close returns. Calling Close again is a
// no-op.
func (c *Controller) Close(s *Session) {
	prev := State(s.state.Swap(int32(StateDisconnected)))
	if prev == StateDisconnected {
		return
	}
	c.sessions.Add(-1)
	c.logger.Debug("session closed", "sessionId", s.id, "accountId", s.accountID, "state", prev)

	// A session still Joining is rolled back by the loop when it sees the
	// state has moved on.
	if prev != StateJoined {
		return
	}

	done := make(chan struct{})
	if err := c.submit(context.Background(), command{kind: cmdLeave, session: s, done: done}); err != nil {
		c.leaveStopped(s)
		return
	}

	select {
	case <-done:
	case <-c.done:
		c.leaveStopped(s)
	}
}

// leaveStopped cleans up after the loop has exited. Nobody is left to
// announce to, so only the records are removed.
func (c *Controller) leaveStopped(s *Session) {
	c.registry.Leave(c.roomID, s.accountID)
	c.broadcaster.Detach(c.roomID, s.accountID)
}

// Handle decodes one inbound frame and acts on it. Protocol errors are
// reported to the client and returned; stale moves and chats from a
// connection that is not joined are dropped with ErrNotJoined.
func (c *Controller) Handle(ctx context.Context, s *Session, data []byte) error {
	if s.State() == StateDisconnected {
		return ErrNotJoined
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.broadcaster.SendError(s.conn, "", ErrInvalidMessage)
		return ErrInvalidMessage
	}

	switch env.Type {
	case TypeJoinHub:
		var req JoinHubRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.broadcaster.SendError(s.conn, env.RequestID, ErrInvalidMessage)
			return ErrInvalidMessage
		}
		return c.Join(ctx, s, req, env.RequestID)

	case TypePlayerMove:
		if s.State() != StateJoined {
			return ErrNotJoined
		}
		var req PlayerMoveRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.broadcaster.SendError(s.conn, env.RequestID, ErrInvalidMessage)
			return ErrInvalidMessage
		}
		return c.Move(ctx, s, req)

	case TypeChatMessage:
		if s.State() != StateJoined {
			return ErrNotJoined
		}
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			c.broadcaster.SendError(s.conn, env.RequestID, ErrInvalidMessage)
			return ErrInvalidMessage
		}
		return c.Chat(ctx, s, text, env.RequestID)

	default:
		c.broadcaster.SendError(s.conn, env.RequestID, ErrInvalidMessage)
		return ErrInvalidMessage
	}
}

// Join runs the join handshake and waits for the loop's verdict, bounded by
// the join timeout. On failure the session is back in Connected and the
// client has been sent an error carrying requestID.
func (c *Controller) Join(ctx context.Context, s *Session, req JoinHubRequest, requestID string) error {
	joinID := uuid.NewString()
	if !s.beginJoin(joinID) {
		if s.State() == StateDisconnected {
			return ErrNotJoined
		}
		c.broadcaster.SendError(s.conn, requestID, room.ErrAlreadyJoined)
		return room.ErrAlreadyJoined
	}

	member, err := c.newMember(s, req)
	if err != nil {
		s.abandonJoin()
		c.broadcaster.SendError(s.conn, requestID, err)
		return err
	}

	logger := c.logger.With("room", c.roomID, "accountId", s.accountID, "sessionId", s.id, "joinId", joinID)

	ctx, cancel := context.WithTimeout(ctx, c.joinTimeout)
	defer cancel()

	reply := make(chan error, 1)
	err = c.submit(ctx, command{kind: cmdJoin, session: s, joinID: joinID, member: member, requestID: requestID, reply: reply})
	if err == nil {
		select {
		case err = <-reply:
		case <-ctx.Done():
			err = ErrJoinTimeout
		case <-c.done:
			err = ErrStopped
		}
	} else if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = ErrJoinTimeout
	}

	if err == nil {
		logger.Info("player joined", "members", c.registry.Count(c.roomID))
		return nil
	}

	// Whoever moves the session out of Joining decides the outcome.
	if !s.abandonJoin() {
		if s.State() == StateJoined {
			logger.Info("player joined at the deadline")
			return nil
		}
		return err
	}

	logger.Info("join rejected", "reason", Reason(err), "error", err)
	c.broadcaster.SendError(s.conn, requestID, err)
	return err
}

// Move records a position update and relays it to the other members
func (c *Controller) Move(ctx context.Context, s *Session, req PlayerMoveRequest) error {
	if s.State() != StateJoined {
		return ErrNotJoined
	}

	pos := room.Position{X: req.X, Y: req.Y}
	if !pos.IsFinite() {
		return ErrInvalidMessage
	}

	return c.submit(ctx, command{
		kind:     cmdMove,
		session:  s,
		position: pos,
		facing:   room.Facing{Direction: req.Direction, AnimFrame: req.AnimFrame},
	})
}

// Chat relays a chat line to every member of the room
func (c *Controller) Chat(ctx context.Context, s *Session, text, requestID string) error {
	if s.State() != StateJoined {
		return ErrNotJoined
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) > c.registry.Settings(c.roomID).MaxChatLength {
		c.broadcaster.SendError(s.conn, requestID, ErrInvalidMessage)
		return ErrInvalidMessage
	}

	return c.submit(ctx, command{kind: cmdChat, session: s, text: text})
}

func (c *Controller) newMember(s *Session, req JoinHubRequest) (room.Member, error) {
	settings := c.registry.Settings(c.roomID)

	name := strings.TrimSpace(req.CharacterName)
	if name == "" || utf8.RuneCountInString(name) > settings.MaxNameLength {
		return room.Member{}, ErrInvalidMessage
	}

	pos := settings.Spawn
	if req.X != nil {
		pos.X = *req.X
	}
	if req.Y != nil {
		pos.Y = *req.Y
	}
	if !pos.IsFinite() {
		return room.Member{}, ErrInvalidMessage
	}

	return room.Member{
		AccountID:     s.accountID,
		CharacterID:   req.CharacterID,
		CharacterName: name,
		Position:      pos,
	}, nil
}

func (c *Controller) submit(ctx context.Context, cmd command) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Controller) apply(cmd command) {
	switch cmd.kind {
	case cmdJoin:
		cmd.reply <- c.applyJoin(cmd)
	case cmdMove:
		c.applyMove(cmd)
	case cmdChat:
		c.applyChat(cmd)
	case cmdLeave:
		c.applyLeave(cmd)
		close(cmd.done)
	}
}

func (c *Controller) applyJoin(cmd command) error {
	s := cmd.session

	// A join that timed out while queued carries an id the session no
	// longer waits on, even if the connection has started another attempt.
	var members []room.Member
	err := s.commitJoin(cmd.joinID,
		func() (err error) {
			members, err = c.registry.Join(c.roomID, cmd.member)
			return err
		},
		func() { c.registry.Leave(c.roomID, s.accountID) },
	)
	if err != nil {
		return err
	}

	c.broadcaster.AnnounceJoin(c.roomID, s.accountID, s.conn, members, cmd.requestID)
	return nil
}

func (c *Controller) applyMove(cmd command) {
	if cmd.session.State() != StateJoined {
		return
	}

	m, ok := c.registry.UpdatePosition(c.roomID, cmd.session.accountID, cmd.position, cmd.facing)
	if !ok {
		return
	}
	c.broadcaster.AnnounceMove(c.roomID, m)
}

func (c *Controller) applyChat(cmd command) {
	if cmd.session.State() != StateJoined {
		return
	}

	m, ok := c.registry.Member(c.roomID, cmd.session.accountID)
	if !ok {
		return
	}

	msg := room.ChatMessage{
		AccountID:     m.AccountID,
		CharacterName: m.CharacterName,
		Message:       cmd.text,
		SentAt:        c.now(),
	}
	c.registry.AppendChat(c.roomID, msg)
	c.broadcaster.AnnounceChat(c.roomID, msg)
}

func (c *Controller) applyLeave(cmd command) {
	accountID := cmd.session.accountID

	_, removed := c.registry.Leave(c.roomID, accountID)
	if !removed {
		c.broadcaster.Detach(c.roomID, accountID)
		return
	}

	c.broadcaster.AnnounceLeave(c.roomID, accountID)
	c.logger.Info("player left", "room", c.roomID, "accountId", accountID, "sessionId", cmd.session.id,
		"members", c.registry.Count(c.roomID))
}
