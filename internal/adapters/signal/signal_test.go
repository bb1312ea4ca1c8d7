package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/dkeye/Gallery/internal/app"
	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/protocol"
)

func newTestServer(t *testing.T, maxClients int) string {
	t.Helper()
	url, _ := newTestServerWith(t, maxClients, "gallery")
	return url
}

func newTestServerWith(t *testing.T, maxClients int, allowed ...string) (string, *app.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	rooms := app.NewRoomManager(ctx, app.RoomConfig{
		MaxClients: maxClients,
		NewIDs:     func() core.IDAllocator { return core.NewSequentialAllocator("s") },
	})
	reg := app.NewRegistry()
	ctrl := NewSignalWSController(rooms, reg, Limits{
		ReadLimit:    4096,
		PingPeriod:   time.Second,
		RateMessages: 100,
		RateInterval: time.Second,
	}, allowed)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("client_token", "token-"+c.Query("t"))
		c.Next()
	})
	r.GET("/ws/:room", func(c *gin.Context) { ctrl.HandleSignal(ctx, c) })

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), reg
}

func waitSessions(t *testing.T, reg *app.Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for reg.SessionCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("sessions = %d, want %d", reg.SessionCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	frame, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) protocol.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		env, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if env.Type == typ {
			return env
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	url := newTestServer(t, 30)

	a := dial(t, url+"/ws/gallery?id=alice")
	var idA protocol.IDEvent
	if err := json.Unmarshal(readUntil(t, a, protocol.EventID).Payload, &idA); err != nil {
		t.Fatal(err)
	}
	if idA.ID != "s1" {
		t.Fatalf("first session = %q", idA.ID)
	}

	b := dial(t, url+"/ws/Gallery?t=b")
	readUntil(t, b, protocol.EventID)

	var spawn struct {
		Players core.PlayerMap `json:"players"`
	}
	if err := json.Unmarshal(readUntil(t, a, protocol.EventSpawnPlayer).Payload, &spawn); err != nil {
		t.Fatal(err)
	}
	// alice sees her own spawn first, then the resync that includes bob
	if spawn.Players.Len() == 1 {
		if err := json.Unmarshal(readUntil(t, a, protocol.EventSpawnPlayer).Payload, &spawn); err != nil {
			t.Fatal(err)
		}
	}
	pa, okA := spawn.Players.Get("s1")
	pb, okB := spawn.Players.Get("s2")
	if !okA || !okB || pa.UserID != "alice" || pb.UserID == "" {
		t.Fatalf("spawnPlayer = %+v", spawn.Players)
	}

	write(t, a, protocol.TypeMove, map[string]float64{"x": 1, "y": 1, "z": 1, "rx": 0, "ry": 0, "rz": 0})
	var move struct {
		Player core.Player `json:"player"`
	}
	if err := json.Unmarshal(readUntil(t, b, protocol.EventMove).Payload, &move); err != nil {
		t.Fatal(err)
	}
	if move.Player.SessionID != "s1" || move.Player.Position.X != 1 {
		t.Fatalf("move = %+v", move.Player)
	}

	write(t, a, protocol.TypePrivateMessage, protocol.SignalPayload{To: "s2", Signal: json.RawMessage(`{"type":"offer","sdp":"v=0"}`)})
	var joined protocol.UserJoinedEvent
	if err := json.Unmarshal(readUntil(t, b, protocol.EventUserJoined).Payload, &joined); err != nil {
		t.Fatal(err)
	}
	if joined.CallerID != "s1" {
		t.Fatalf("callerId = %q", joined.CallerID)
	}

	write(t, b, protocol.TypePing, struct{}{})
	readUntil(t, b, protocol.EventPong)

	_ = a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = a.Close()

	var removed struct {
		Players core.PlayerMap `json:"players"`
	}
	if err := json.Unmarshal(readUntil(t, b, protocol.EventRemovePlayer).Payload, &removed); err != nil {
		t.Fatal(err)
	}
	if ids := removed.Players.IDs(); len(ids) != 1 || ids[0] != "s2" {
		t.Fatalf("removePlayer = %v", ids)
	}
	var gone protocol.UserDisconnectedEvent
	if err := json.Unmarshal(readUntil(t, b, protocol.EventUserDisconnected).Payload, &gone); err != nil {
		t.Fatal(err)
	}
	if gone.ID != "s1" {
		t.Fatalf("user-disconnected = %q", gone.ID)
	}
}

func TestWebSocketCapacityRejected(t *testing.T) {
	url := newTestServer(t, 1)

	first := dial(t, url+"/ws/gallery?id=alice")
	readUntil(t, first, protocol.EventID)

	late := dial(t, url+"/ws/gallery?id=bob")
	var ev protocol.ErrorEvent
	if err := json.Unmarshal(readUntil(t, late, protocol.EventError).Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Error != protocol.ErrorRoomFull || ev.MaxClients != 1 {
		t.Fatalf("error = %+v", ev)
	}

	_, _, err := late.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.CloseTryAgainLater {
		t.Fatalf("close = %v, want code %d", err, websocket.CloseTryAgainLater)
	}
}

func TestWebSocketHandshakeRejections(t *testing.T) {
	url := newTestServer(t, 30)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "room not served", path: "/ws/lobby", status: http.StatusNotFound},
		{name: "identity too long", path: "/ws/gallery?id=" + strings.Repeat("x", 65), status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(url+tt.path, nil)
			if err == nil {
				t.Fatal("handshake succeeded")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Fatalf("resp = %v, want status %d", resp, tt.status)
			}
		})
	}
}

func TestWsSignalConnClosed(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1), closeCode: websocket.CloseNormalClosure}
	if err := c.TrySend(core.Frame("a")); err != nil {
		t.Fatal(err)
	}
	if err := c.TrySend(core.Frame("b")); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("full queue err = %v", err)
	}
	c.CloseWith(websocket.CloseTryAgainLater, "room_full")
	c.Close()
	if err := c.TrySend(core.Frame("c")); !errors.Is(err, core.ErrConnClosed) {
		t.Fatalf("closed err = %v", err)
	}
	if _, ok := <-c.send; !ok {
		t.Fatal("queued frame lost on close")
	}
	if _, ok := <-c.send; ok {
		t.Fatal("send channel not closed")
	}
}

func TestSessionsAreBoundPerRoom(t *testing.T) {
	url, reg := newTestServerWith(t, 30, "gallery", "lobby")

	a := dial(t, url+"/ws/gallery?id=alice")
	b := dial(t, url+"/ws/lobby?id=bob")
	for _, conn := range []*websocket.Conn{a, b} {
		var id protocol.IDEvent
		if err := json.Unmarshal(readUntil(t, conn, protocol.EventID).Payload, &id); err != nil {
			t.Fatal(err)
		}
		if id.ID != "s1" {
			t.Fatalf("session = %q, want s1 in each room", id.ID)
		}
	}
	waitSessions(t, reg, 2)

	_ = a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	waitSessions(t, reg, 1)
}
