package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wricardo/dungeon-hub/game/room"
)

type mockConn struct {
	frames  []Envelope
	closed  bool
	sendErr error
	mu      sync.Mutex
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	m.frames = append(m.frames, env)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) all() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.frames...)
}

func (m *mockConn) ofType(msgType string) []Envelope {
	var out []Envelope
	for _, env := range m.all() {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func (m *mockConn) types() []string {
	var out []string
	for _, env := range m.all() {
		out = append(out, env.Type)
	}
	return out
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func frame(t *testing.T, msgType, requestID string, data interface{}) []byte {
	t.Helper()
	raw, err := Encode(msgType, requestID, data)
	require.NoError(t, err)
	return raw
}

func ptr(f float64) *float64 { return &f }

func newTestController(t *testing.T, opts ...Option) (*Controller, *room.Registry) {
	t.Helper()
	return newTestControllerWithRegistry(t, room.NewRegistry(), opts...)
}

func newTestControllerWithRegistry(t *testing.T, registry *room.Registry, opts ...Option) (*Controller, *room.Registry) {
	t.Helper()
	c := NewController(registry, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c, registry
}

// flush waits until every command queued before it has been applied.
func flush(t *testing.T, c *Controller) {
	t.Helper()
	done := make(chan struct{})
	c.commands <- command{kind: cmdLeave, session: &Session{accountID: "\x00flush"}, done: done}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("presence loop did not drain")
	}
}

func join(t *testing.T, c *Controller, accountID, name string, characterID int64, x, y float64) (*Session, *mockConn) {
	t.Helper()
	conn := &mockConn{}
	s := c.Open(accountID, conn)
	err := c.Handle(context.Background(), s, frame(t, TypeJoinHub, "", JoinHubRequest{
		CharacterID:   characterID,
		CharacterName: name,
		X:             ptr(x),
		Y:             ptr(y),
	}))
	require.NoError(t, err)
	require.Equal(t, StateJoined, s.State())
	return s, conn
}

var errSaturated = errors.New("send buffer full")
