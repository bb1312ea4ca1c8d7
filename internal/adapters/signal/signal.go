// Package signal is the WebSocket transport of a room: one connection per
// session, scoped to the room named in the URL.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/app"
	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/domain"
	"github.com/dkeye/Gallery/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

type Limits struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	SendBuffer   int
	RateMessages int
	RateInterval time.Duration
}

type SignalWSController struct {
	Rooms    core.RoomManager
	Registry *app.Registry
	Limits   Limits

	allowed map[domain.RoomName]struct{}
	limiter *RoomRateLimiter
}

// NewSignalWSController serves the listed rooms; an empty list serves any name.
func NewSignalWSController(rooms core.RoomManager, reg *app.Registry, limits Limits, names []string) *SignalWSController {
	if limits.PingPeriod <= 0 {
		limits.PingPeriod = 54 * time.Second
	}
	if limits.PongWait <= limits.PingPeriod {
		limits.PongWait = limits.PingPeriod * 10 / 9
	}
	if limits.SendBuffer <= 0 {
		limits.SendBuffer = 64
	}
	allowed := make(map[domain.RoomName]struct{}, len(names))
	for _, n := range names {
		if name, err := domain.ParseRoomName(n); err == nil {
			allowed[name] = struct{}{}
		}
	}
	return &SignalWSController{
		Rooms:    rooms,
		Registry: reg,
		Limits:   limits,
		allowed:  allowed,
		limiter:  NewRoomRateLimiter(limits.RateMessages, limits.RateInterval),
	}
}

// Allowed reports whether clients may join or create the named room.
func (ctl *SignalWSController) Allowed(name domain.RoomName) bool {
	if len(ctl.allowed) == 0 {
		return true
	}
	_, ok := ctl.allowed[name]
	return ok
}

// WsSignalConn implements core.ClientConnection over a gorilla connection.
// Only writePump writes to conn.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu        sync.RWMutex
	closed    bool
	closeCode int
	closeText string
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn:      ws,
		send:      make(chan core.Frame, buffer),
		closeCode: websocket.CloseNormalClosure,
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith stops accepting frames. writePump drains what is queued and
// then sends a close frame with code.
func (c *WsSignalConn) CloseWith(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeText = text
	close(c.send)
}

func (c *WsSignalConn) closeFrame() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeText)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades GET /ws/:room and attaches the connection to the
// room as a new session.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	name, err := domain.ParseRoomName(c.Param("room"))
	if err != nil || !ctl.Allowed(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
		return
	}

	user, err := ctl.identity(c)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad identity")
		c.JSON(http.StatusBadRequest, gin.H{"error": protocol.ErrorBadIdentity})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := newWsSignalConn(ws, ctl.Limits.SendBuffer)
	go ctl.writePump(conn)

	room, sid, err := ctl.join(ctx, name, user, conn)
	if err != nil {
		ctl.reject(conn, room, err)
		return
	}

	if err := ctl.Registry.Bind(name, sid, user); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(name)).Str("sid", string(sid)).Msg("session attach refused")
		room.Leave(sid)
		conn.CloseWith(websocket.CloseInternalServerErr, "")
		return
	}
	log.Info().Str("module", "signal").Str("room", string(name)).Str("sid", string(sid)).Str("user", string(user)).Msg("session attached")
	go ctl.readPump(room, sid, conn)
}

// identity prefers the ?id= handshake option and falls back to the user
// behind the cookie client token.
func (ctl *SignalWSController) identity(c *gin.Context) (domain.UserID, error) {
	if raw := c.Query("id"); raw != "" {
		return domain.ParseUserID(raw)
	}
	return ctl.Registry.GetOrCreateUser(c.GetString("client_token")).ID, nil
}

// join retries once when the room disposed itself between lookup and join.
func (ctl *SignalWSController) join(ctx context.Context, name domain.RoomName, user domain.UserID, conn *WsSignalConn) (core.RoomService, core.SessionID, error) {
	var (
		room core.RoomService
		sid  core.SessionID
		err  error
	)
	for range 2 {
		room = ctl.Rooms.GetOrCreate(name)
		sid, _, err = room.Join(ctx, user, conn)
		if !errors.Is(err, core.ErrRoomClosed) {
			break
		}
	}
	return room, sid, err
}

func (ctl *SignalWSController) reject(conn *WsSignalConn, room core.RoomService, err error) {
	ev := protocol.ErrorEvent{Error: protocol.ErrorRoomClosed}
	code := websocket.CloseGoingAway
	if errors.Is(err, core.ErrCapacityExceeded) {
		ev = protocol.ErrorEvent{Error: protocol.ErrorRoomFull, MaxClients: room.Info().MaxClients}
		code = websocket.CloseTryAgainLater
	}
	log.Warn().Err(err).Str("module", "signal").Str("room", string(room.Name())).Msg("join rejected")

	if frame, encErr := protocol.Encode(protocol.EventError, ev); encErr == nil {
		_ = conn.TrySend(frame)
	}
	conn.CloseWith(code, ev.Error)
}
