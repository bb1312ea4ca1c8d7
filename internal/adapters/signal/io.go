package signal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/metrics"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Limits.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame())
				log.Debug().Str("module", "signal").Msg("writePump closed")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// readPump feeds inbound frames to the room until the transport fails,
// then reports the leave.
func (ctl *SignalWSController) readPump(room core.RoomService, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		room.Leave(sid)
		c.Close()
		ctl.limiter.Forget(sid)
		ctl.Registry.Unbind(room.Name(), sid)
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
	}()

	if ctl.Limits.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.Limits.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Limits.PongWait))
		if !ctl.limiter.Allow(sid) {
			metrics.Messages.WithLabelValues("any", metrics.ResultRateLimited).Inc()
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("rate limited")
			continue
		}
		room.Deliver(sid, data)
	}
}
