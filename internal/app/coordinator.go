package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hallchat/relay/internal/core"
	"github.com/hallchat/relay/internal/domain"
	"github.com/hallchat/relay/internal/store"
)

// Coordinator owns the join/leave/disconnect state machine. Every
// handler runs durable operation first, then registry update, then
// fanout; a failed durable operation leaves both the registry and the
// peers untouched and is reported only to the originating connection.
type Coordinator struct {
	Registry *Registry
	Store    store.Directory
	Fanout   *Fanout

	// transitions serializes membership moves so a count broadcast can
	// never interleave with a half-finished leave+join or disconnect.
	transitions sync.Mutex

	appendMu sync.Mutex
	appends  map[domain.RoomID]*sync.Mutex
}

func NewCoordinator(reg *Registry, dir store.Directory) *Coordinator {
	return &Coordinator{
		Registry: reg,
		Store:    dir,
		Fanout:   NewFanout(reg),
		appends:  make(map[domain.RoomID]*sync.Mutex),
	}
}

// roomUsers is the payload of new-room and update-room-users events.
type roomUsers struct {
	Room      domain.Room `json:"room"`
	UserCount int         `json:"userCount"`
}

// Join moves sid into room: leave the old room if any (notify its
// remaining members, broadcast its fresh count), then join the new one
// (notify its members, broadcast its count), then replay the room's
// history to the joiner only. Joining the current room re-runs the
// full sequence, it is not a no-op.
func (c *Coordinator) Join(ctx context.Context, sid core.SessionID, room domain.RoomID) {
	sess, ok := c.Registry.Get(sid)
	if !ok {
		return
	}

	c.transitions.Lock()
	defer c.transitions.Unlock()

	rec, err := c.Store.JoinRoom(ctx, sess.Identity, room)
	if err != nil {
		c.fail(sid, err)
		return
	}

	c.Registry.SetRoom(sid, room)

	if rec.OldRoom.RoomID != "" {
		c.Fanout.ToRoomExcept(rec.OldRoom.RoomID, sid, core.EvNewJoinMessage,
			fmt.Sprintf("%s left the room", rec.User.UserName))
		c.broadcastRoomUsers(ctx, sid, rec.OldRoom)
	}

	c.Fanout.ToRoomExcept(room, sid, core.EvNewJoinMessage,
		fmt.Sprintf("%s joined the room", rec.User.UserName))
	c.broadcastRoomUsers(ctx, sid, rec.Room)

	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
		Str("room", string(room)).Str("old_room", string(rec.OldRoom.RoomID)).Msg("joined room")

	c.replay(ctx, sid, room)
}

// Disconnect reconciles membership after the transport closed. The
// registry entry is released regardless of the store outcome; a user
// who never joined a room leaves without any broadcast.
func (c *Coordinator) Disconnect(ctx context.Context, sid core.SessionID) {
	sess, ok := c.Registry.Get(sid)
	if !ok {
		return
	}

	c.transitions.Lock()
	defer c.transitions.Unlock()

	room, err := c.Store.LeaveOnDisconnect(ctx, sess.Identity)
	c.Registry.Unregister(sid)
	switch {
	case err == nil:
		c.Fanout.ToRoom(room.RoomID, core.EvNewJoinMessage,
			fmt.Sprintf("%s left the room", sess.Identity.UserName))
		c.broadcastRoomUsers(ctx, sid, room)
		log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
			Str("room", string(room.RoomID)).Msg("disconnected from room")
	case errors.Is(err, store.ErrNotInRoom):
		// never joined a room, nothing to announce
	default:
		log.Error().Err(err).Str("module", "app.coordinator").Str("sid", string(sid)).Msg("disconnect reconciliation")
	}
}

// CreateRoom creates a durable room, announces it with its zero count
// to every connection and acknowledges success to the requester only.
func (c *Coordinator) CreateRoom(ctx context.Context, sid core.SessionID, name domain.RoomName) {
	room, err := c.Store.CreateRoom(ctx, name)
	if err != nil {
		c.fail(sid, err)
		return
	}
	users, err := c.Store.UsersInRoom(ctx, room.RoomID)
	if err != nil {
		c.fail(sid, err)
		return
	}
	c.Fanout.ToAll(core.EvNewRoom, roomUsers{Room: room, UserCount: len(users)})
	c.Fanout.ToConn(sid, core.EvSuccess, fmt.Sprintf("%s created", name))
	log.Info().Str("module", "app.coordinator").Str("room", string(room.RoomID)).
		Str("name", string(name)).Msg("room created")
}

// Rooms emits one new-room event per existing room to the requester
// only, never broadcast.
func (c *Coordinator) Rooms(ctx context.Context, sid core.SessionID) {
	rooms, err := c.Store.ListRooms(ctx)
	if err != nil {
		c.fail(sid, err)
		return
	}
	for _, room := range rooms {
		users, err := c.Store.UsersInRoom(ctx, room.RoomID)
		if err != nil {
			c.fail(sid, err)
			continue
		}
		c.Fanout.ToConn(sid, core.EvNewRoom, roomUsers{Room: room, UserCount: len(users)})
	}
}

// Message appends one chat message and fans it out to every other
// connection in the room. Appends to the same room are serialized so
// recipients observe store order.
func (c *Coordinator) Message(ctx context.Context, sid core.SessionID, msg domain.Message) {
	sess, ok := c.Registry.Get(sid)
	if !ok {
		return
	}
	msg.AuthorID = sess.Identity.UserID
	msg.AuthorName = sess.Identity.UserName

	mu := c.appendLock(msg.RoomID)
	mu.Lock()
	defer mu.Unlock()

	stored, err := c.Store.AppendMessage(ctx, msg)
	if err != nil {
		c.fail(sid, err)
		return
	}
	c.Fanout.ToRoomExcept(stored.RoomID, sid, core.EvNewMessage, stored)
}

// replay sends the room's history, oldest first, to the joiner only.
// A replay failure does not revert the join.
func (c *Coordinator) replay(ctx context.Context, sid core.SessionID, room domain.RoomID) {
	msgs, err := c.Store.MessagesForRoom(ctx, room)
	if err != nil {
		c.fail(sid, err)
		return
	}
	for _, msg := range msgs {
		c.Fanout.ToConn(sid, core.EvNewMessage, msg)
	}
}

// broadcastRoomUsers resolves the room's count from the store at the
// moment of broadcast; a stale count is a defect, not an accepted
// race. A resolution failure is reported back to the originating
// connection, never dropped; on the disconnect path that connection is
// already released and the report reduces to the log entry.
func (c *Coordinator) broadcastRoomUsers(ctx context.Context, sid core.SessionID, room domain.Room) {
	users, err := c.Store.UsersInRoom(ctx, room.RoomID)
	if err != nil {
		c.fail(sid, err)
		return
	}
	c.Fanout.ToAll(core.EvUpdateRoomUsers, roomUsers{Room: room, UserCount: len(users)})
}

// appendLock returns the room's append mutex. Rooms are never deleted,
// so the map is bounded by the directory's room count.
func (c *Coordinator) appendLock(room domain.RoomID) *sync.Mutex {
	c.appendMu.Lock()
	defer c.appendMu.Unlock()
	mu, ok := c.appends[room]
	if !ok {
		mu = &sync.Mutex{}
		c.appends[room] = mu
	}
	return mu
}

// fail converts a handler-level failure into a single error event for
// the originating connection. Nothing here is fatal to the process.
func (c *Coordinator) fail(sid core.SessionID, err error) {
	log.Warn().Err(err).Str("module", "app.coordinator").Str("sid", string(sid)).Msg("handler failure")
	c.Fanout.ToConn(sid, core.EvError, err.Error())
}
