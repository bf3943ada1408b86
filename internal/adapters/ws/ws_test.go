package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	router "github.com/hallchat/relay/internal/adapters/http"
	"github.com/hallchat/relay/internal/adapters/ws"
	"github.com/hallchat/relay/internal/app"
	"github.com/hallchat/relay/internal/auth"
	"github.com/hallchat/relay/internal/config"
	"github.com/hallchat/relay/internal/core"
	"github.com/hallchat/relay/internal/domain"
	"github.com/hallchat/relay/internal/store"
)

const testSecret = "test_secret_key_that_is_long_enough"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	cfg := &config.Config{
		Mode:        "release",
		Secret:      testSecret,
		ReadLimit:   32768,
		PingPeriod:  54 * time.Second,
		SendBuffer:  32,
		EventBurst:  100,
		EventWindow: time.Second,
	}

	coord := app.NewCoordinator(app.NewRegistry(), dir)
	ctl := ws.NewController(coord, auth.NewVerifier(cfg.Secret), cfg)
	srv := httptest.NewServer(router.SetupRouter(context.Background(), cfg, ctl))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func dial(t *testing.T, srv *httptest.Server, id domain.Identity) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, id, time.Hour)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	frame, err := core.EncodeEvent(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) core.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev core.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func decode[T any](t *testing.T, ev core.Event) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ev.Data, &out))
	return out
}

type roomUsers struct {
	Room      domain.Room `json:"room"`
	UserCount int         `json:"userCount"`
}

func TestHandshakeRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		req := require.New(t)
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
		req.ErrorIs(err, websocket.ErrBadHandshake)
		req.Nil(conn)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := require.New(t)
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "bogus"), nil)
		req.ErrorIs(err, websocket.ErrBadHandshake)
		req.Nil(conn)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRelayOverWebsocket(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := dial(t, srv, domain.Identity{UserID: "u1", UserName: "alice"})

	// Create a room and join it.
	send(t, alice, core.EvNewRoom, "general")
	created := readEvent(t, alice)
	req.Equal(core.EvNewRoom, created.Event)
	room := decode[roomUsers](t, created).Room
	req.Equal(domain.RoomName("general"), room.RoomName)
	ack := readEvent(t, alice)
	req.Equal(core.EvSuccess, ack.Event)
	req.Equal("general created", decode[string](t, ack))

	send(t, alice, core.EvJoinRoom, room)
	update := readEvent(t, alice)
	req.Equal(core.EvUpdateRoomUsers, update.Event)
	req.Equal(1, decode[roomUsers](t, update).UserCount)

	// A second participant joins; both sides observe it.
	bob := dial(t, srv, domain.Identity{UserID: "u2", UserName: "bob"})
	send(t, bob, core.EvJoinRoom, room)

	notice := readEvent(t, alice)
	req.Equal(core.EvNewJoinMessage, notice.Event)
	req.Equal("bob joined the room", decode[string](t, notice))
	req.Equal(2, decode[roomUsers](t, readEvent(t, alice)).UserCount)
	req.Equal(2, decode[roomUsers](t, readEvent(t, bob)).UserCount)

	// Messages reach the other side only.
	send(t, alice, core.EvNewMessage, map[string]any{"room": room, "body": "hi bob"})
	msg := readEvent(t, bob)
	req.Equal(core.EvNewMessage, msg.Event)
	got := decode[domain.Message](t, msg)
	req.Equal("hi bob", got.Body)
	req.Equal(domain.UserID("u1"), got.AuthorID)

	// get-rooms answers the requester only.
	send(t, bob, core.EvGetRooms, nil)
	listed := readEvent(t, bob)
	req.Equal(core.EvNewRoom, listed.Event)
	req.Equal(2, decode[roomUsers](t, listed).UserCount)

	// Disconnect reconciles membership and notifies the peer.
	req.NoError(bob.Close())
	left := readEvent(t, alice)
	req.Equal(core.EvNewJoinMessage, left.Event)
	req.Equal("bob left the room", decode[string](t, left))
	req.Equal(1, decode[roomUsers](t, readEvent(t, alice)).UserCount)
}

func TestHistoryReplayOnJoin(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := dial(t, srv, domain.Identity{UserID: "u1", UserName: "alice"})
	send(t, alice, core.EvNewRoom, "general")
	room := decode[roomUsers](t, readEvent(t, alice)).Room
	readEvent(t, alice) // success ack
	send(t, alice, core.EvJoinRoom, room)
	readEvent(t, alice) // count update

	send(t, alice, core.EvNewMessage, map[string]any{"room": room, "body": "first"})
	send(t, alice, core.EvNewMessage, map[string]any{"room": room, "body": "second"})

	// Give the appends a moment before the second join triggers replay.
	time.Sleep(100 * time.Millisecond)

	bob := dial(t, srv, domain.Identity{UserID: "u2", UserName: "bob"})
	send(t, bob, core.EvJoinRoom, room)
	req.Equal(core.EvUpdateRoomUsers, readEvent(t, bob).Event)
	req.Equal("first", decode[domain.Message](t, readEvent(t, bob)).Body)
	req.Equal("second", decode[domain.Message](t, readEvent(t, bob)).Body)
}
