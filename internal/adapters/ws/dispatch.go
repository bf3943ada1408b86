package ws

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/hallchat/relay/internal/core"
	"github.com/hallchat/relay/internal/domain"
)

const maxRoomNameLen = 36

// handlerFunc processes one inbound event for a session. Handlers run
// to completion on the connection's read loop, so events from the same
// connection are never concurrent with each other.
type handlerFunc func(ctx context.Context, sid core.SessionID, data json.RawMessage)

func (ctl *Controller) dispatch(ctx context.Context, sid core.SessionID, data []byte) {
	var env core.Event
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("bad json")
		ctl.Coord.Fanout.ToConn(sid, core.EvError, "bad payload")
		return
	}
	h, ok := ctl.handlers[env.Event]
	if !ok {
		log.Warn().Str("module", "ws").Str("event", env.Event).Msg("unknown event")
		return
	}
	h(ctx, sid, env.Data)
}

func (ctl *Controller) handleJoinRoom(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil || room.RoomID == "" {
		ctl.Coord.Fanout.ToConn(sid, core.EvError, "bad payload")
		return
	}
	ctl.Coord.Join(ctx, sid, room.RoomID)
}

func (ctl *Controller) handleNewRoom(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil || name == "" {
		ctl.Coord.Fanout.ToConn(sid, core.EvError, "bad payload")
		return
	}
	if len(name) > maxRoomNameLen {
		cut := maxRoomNameLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	ctl.Coord.CreateRoom(ctx, sid, domain.RoomName(name))
}

func (ctl *Controller) handleGetRooms(ctx context.Context, sid core.SessionID, _ json.RawMessage) {
	ctl.Coord.Rooms(ctx, sid)
}

func (ctl *Controller) handleNewMessage(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var msg struct {
		Room domain.Room `json:"room"`
		Body string      `json:"body"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Room.RoomID == "" {
		ctl.Coord.Fanout.ToConn(sid, core.EvError, "bad payload")
		return
	}
	ctl.Coord.Message(ctx, sid, domain.Message{RoomID: msg.Room.RoomID, Body: msg.Body})
}
