// Package ws adapts websocket connections into relay sessions: it
// authenticates the handshake, runs the read/write pumps and
// dispatches inbound events to the coordinator.
package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hallchat/relay/internal/app"
	"github.com/hallchat/relay/internal/auth"
	"github.com/hallchat/relay/internal/config"
	"github.com/hallchat/relay/internal/core"
)

// Controller upgrades authenticated requests into relay sessions.
type Controller struct {
	Coord    *app.Coordinator
	Verifier *auth.Verifier
	Cfg      *config.Config

	handlers map[string]handlerFunc
	limiter  *eventLimiter
}

func NewController(coord *app.Coordinator, verifier *auth.Verifier, cfg *config.Config) *Controller {
	ctl := &Controller{
		Coord:    coord,
		Verifier: verifier,
		Cfg:      cfg,
		limiter:  newEventLimiter(cfg.EventBurst, cfg.EventWindow),
	}
	ctl.handlers = map[string]handlerFunc{
		core.EvNewMessage: ctl.handleNewMessage,
		core.EvNewRoom:    ctl.handleNewRoom,
		core.EvGetRooms:   ctl.handleGetRooms,
		core.EvJoinRoom:   ctl.handleJoinRoom,
	}
	return ctl
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the handshake and, on success only, registers a
// session and starts the pumps. No event handler is reachable before
// verification succeeds; a bad token refuses the connection outright.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	identity, err := ctl.Verifier.Verify(c.Query("token"))
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("handshake refused")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication error"})
		return
	}

	wsock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}

	sid := core.SessionID(uuid.NewString())
	conn := newWSConn(wsock, ctl.Cfg.SendBuffer)
	ctl.Coord.Registry.Register(sid, identity, conn)
	log.Info().Str("module", "ws").Str("sid", string(sid)).Str("user", string(identity.UserID)).Msg("new connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
