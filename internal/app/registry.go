// Package app owns the presence coordination layer: the registry of
// live connections, the join/leave/disconnect state machine and the
// fanout of events to connected peers.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hallchat/relay/internal/core"
	"github.com/hallchat/relay/internal/domain"
)

// Session is the live record of one authenticated connection.
type Session struct {
	SID      core.SessionID
	Identity domain.Identity
	Conn     core.Conn
	Room     domain.RoomID // empty until the first successful join
}

// Registry owns the table of live connections. Created at process
// start; entries inserted on connect, removed on disconnect. No
// ambient globals.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*Session)}
}

func (r *Registry) Register(sid core.SessionID, id domain.Identity, conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &Session{SID: sid, Identity: id, Conn: conn}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(id.UserID)).Msg("session registered")
}

func (r *Registry) Unregister(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("session released")
}

// Get returns a copy of the session record.
func (r *Registry) Get(sid core.SessionID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (r *Registry) SetRoom(sid core.SessionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	if !ok {
		return false
	}
	s.Room = room
	return true
}

// RoomOf reports the connection's current room; ok is false when the
// session is gone or has not joined a room yet.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	if !ok || s.Room == "" {
		return "", false
	}
	return s.Room, true
}

// All returns a snapshot of every live session.
func (r *Registry) All() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// MembersOf returns a snapshot of the sessions currently in room.
func (r *Registry) MembersOf(room domain.RoomID) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Room == room {
			out = append(out, *s)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
