package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/dungeon-hub/auth"
	"github.com/wricardo/dungeon-hub/game/presence"
	"github.com/wricardo/dungeon-hub/game/room"
)

// tokens maps test credentials to accounts
var tokens = map[string]string{
	"alice-token": "A1",
	"bob-token":   "A2",
}

type testServer struct {
	hub      *Hub
	registry *room.Registry
	server   *httptest.Server
	cancel   context.CancelFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	validator := auth.ValidatorFunc(func(ctx context.Context, credential string) (string, error) {
		if id, ok := tokens[credential]; ok {
			return id, nil
		}
		return "", auth.ErrUnauthenticated
	})

	registry := room.NewRegistry()
	controller := presence.NewController(registry)
	hub := NewHub(controller, validator, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go controller.Run(ctx)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		<-controller.Done()
		server.Close()
	})

	return &testServer{hub: hub, registry: registry, server: server, cancel: cancel}
}

func (s *testServer) url(token string) string {
	u := "ws" + strings.TrimPrefix(s.server.URL, "http")
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType, requestID string, data interface{}) {
	t.Helper()
	frame, err := presence.Encode(msgType, requestID, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, conn *websocket.Conn) presence.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env presence.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func readType(t *testing.T, conn *websocket.Conn, msgType string) presence.Envelope {
	t.Helper()
	env := read(t, conn)
	require.Equal(t, msgType, env.Type, "unexpected frame %s", env.Data)
	return env
}

func joinHub(t *testing.T, conn *websocket.Conn, name string, x, y float64) []presence.PlayerInfo {
	t.Helper()
	send(t, conn, presence.TypeJoinHub, "join", presence.JoinHubRequest{CharacterName: name, X: &x, Y: &y})
	env := readType(t, conn, presence.TypeHubPlayers)
	assert.Equal(t, "join", env.RequestID)

	var players []presence.PlayerInfo
	require.NoError(t, json.Unmarshal(env.Data, &players))
	return players
}

func TestServeWS_RejectsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)

	for _, token := range []string{"", "forged"} {
		conn := dial(t, ts.url(token), nil)

		env := readType(t, conn, presence.TypeError)
		var reason string
		require.NoError(t, json.Unmarshal(env.Data, &reason))
		assert.Equal(t, presence.ReasonUnauthenticated, reason)

		_, _, err := conn.ReadMessage()
		require.Error(t, err)
		assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

		var closeErr *websocket.CloseError
		if assert.ErrorAs(t, err, &closeErr) {
			assert.Equal(t, "unauthenticated", closeErr.Text)
		}
	}

	assert.Equal(t, 0, ts.hub.Connections())
	assert.Equal(t, 0, ts.registry.Count(presence.DefaultRoom))
}

func TestServeWS_BearerHeader(t *testing.T) {
	ts := newTestServer(t)

	conn := dial(t, ts.url(""), http.Header{"Authorization": {"Bearer alice-token"}})
	players := joinHub(t, conn, "Bob", 100, 100)

	require.Len(t, players, 1)
	assert.Equal(t, "A1", players[0].AccountID)
}

func TestServeWS_PresenceFlow(t *testing.T) {
	ts := newTestServer(t)

	alice := dial(t, ts.url("alice-token"), nil)
	joinHub(t, alice, "Alice", 100, 100)

	bob := dial(t, ts.url("bob-token"), nil)
	players := joinHub(t, bob, "Bob", 10, 20)
	assert.Len(t, players, 2)

	joined := readType(t, alice, presence.TypePlayerJoined)
	var info presence.PlayerInfo
	require.NoError(t, json.Unmarshal(joined.Data, &info))
	assert.Equal(t, "A2", info.AccountID)
	assert.Equal(t, "Bob", info.CharacterName)

	send(t, bob, presence.TypePlayerMove, "", presence.PlayerMoveRequest{X: 11, Y: 21, Direction: 2})
	moved := readType(t, alice, presence.TypePlayerMoved)
	var pm presence.PlayerMoved
	require.NoError(t, json.Unmarshal(moved.Data, &pm))
	assert.Equal(t, presence.PlayerMoved{AccountID: "A2", X: 11, Y: 21, Direction: 2}, pm)

	send(t, alice, presence.TypeChatMessage, "", "hi bob")
	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readType(t, conn, presence.TypeChatMessage)
		var chat presence.ChatBroadcast
		require.NoError(t, json.Unmarshal(env.Data, &chat))
		assert.Equal(t, "hi bob", chat.Message)
		assert.Equal(t, "Alice", chat.CharacterName)
	}

	// Drop bob without a close handshake.
	require.NoError(t, bob.UnderlyingConn().Close())

	left := readType(t, alice, presence.TypePlayerLeft)
	var accountID string
	require.NoError(t, json.Unmarshal(left.Data, &accountID))
	assert.Equal(t, "A2", accountID)
	assert.Equal(t, 1, ts.registry.Count(presence.DefaultRoom))
}

func TestServeWS_InvalidMessageKeepsConnection(t *testing.T) {
	ts := newTestServer(t)

	conn := dial(t, ts.url("alice-token"), nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	env := readType(t, conn, presence.TypeError)
	var reason string
	require.NoError(t, json.Unmarshal(env.Data, &reason))
	assert.Equal(t, presence.ReasonInvalidMessage, reason)

	players := joinHub(t, conn, "Alice", 0, 0)
	assert.Len(t, players, 1)
}

func TestServeWS_DuplicateAccount(t *testing.T) {
	ts := newTestServer(t)

	first := dial(t, ts.url("alice-token"), nil)
	joinHub(t, first, "Alice", 0, 0)

	second := dial(t, ts.url("alice-token"), nil)
	send(t, second, presence.TypeJoinHub, "dup", presence.JoinHubRequest{CharacterName: "Alt"})

	env := readType(t, second, presence.TypeError)
	assert.Equal(t, "dup", env.RequestID)
	var reason string
	require.NoError(t, json.Unmarshal(env.Data, &reason))
	assert.Equal(t, presence.ReasonAlreadyJoined, reason)

	require.NoError(t, second.Close())
	assert.Eventually(t, func() bool { return ts.hub.Connections() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ts.registry.Count(presence.DefaultRoom))
}

func TestServeWS_CloseRemovesMember(t *testing.T) {
	ts := newTestServer(t)

	conn := dial(t, ts.url("alice-token"), nil)
	joinHub(t, conn, "Alice", 0, 0)
	assert.Equal(t, 1, ts.hub.Connections())

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool {
		return ts.registry.Count(presence.DefaultRoom) == 0 && ts.hub.Connections() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	ts := newTestServer(t)

	conn := dial(t, ts.url("alice-token"), nil)
	joinHub(t, conn, "Alice", 0, 0)

	ts.cancel()

	env := readType(t, conn, presence.TypeError)
	var reason string
	require.NoError(t, json.Unmarshal(env.Data, &reason))
	assert.Equal(t, presence.ReasonShuttingDown, reason)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestClient_SendAndClose(t *testing.T) {
	client := &Client{send: make(chan []byte, 1)}

	require.NoError(t, client.Send([]byte("one")))
	assert.ErrorIs(t, client.Send([]byte("two")), ErrSendBufferFull)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Send([]byte("three")), ErrClientClosed)

	// The queued frame is still drained before the channel reports closed.
	msg, ok := <-client.send
	assert.True(t, ok)
	assert.Equal(t, "one", string(msg))
	_, ok = <-client.send
	assert.False(t, ok)

	frame := client.closeFrame()
	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connection closed"), frame)
}
