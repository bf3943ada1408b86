package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hallchat/relay/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump processes inbound events for one connection in arrival
// order; the deferred disconnect reconciles membership exactly once.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *wsConn) {
	defer func() {
		cancel()
		c.Close()
		ctl.limiter.Forget(sid)
		ctl.Coord.Disconnect(context.Background(), sid)
		log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("connection closed")
	}()

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if !ctl.limiter.Allow(sid) {
			ctl.Coord.Fanout.ToConn(sid, core.EvError, "rate limit exceeded")
			continue
		}
		ctl.dispatch(ctx, sid, data)
	}
}
