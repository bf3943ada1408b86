package app

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hallchat/relay/internal/core"
	"github.com/hallchat/relay/internal/domain"
)

// Fanout delivers one event to a computed set of live connections.
// Delivery is at most once per recipient; a peer that disconnects
// mid-broadcast simply does not receive the event.
type Fanout struct {
	reg *Registry
}

func NewFanout(reg *Registry) *Fanout { return &Fanout{reg: reg} }

func (f *Fanout) ToConn(sid core.SessionID, event string, payload any) {
	if s, ok := f.reg.Get(sid); ok {
		f.deliver([]core.Conn{s.Conn}, event, payload)
	}
}

func (f *Fanout) ToRoom(room domain.RoomID, event string, payload any) {
	f.deliver(conns(f.reg.MembersOf(room)), event, payload)
}

func (f *Fanout) ToRoomExcept(room domain.RoomID, except core.SessionID, event string, payload any) {
	members := lo.Filter(f.reg.MembersOf(room), func(s Session, _ int) bool {
		return s.SID != except
	})
	f.deliver(conns(members), event, payload)
}

func (f *Fanout) ToAll(event string, payload any) {
	f.deliver(conns(f.reg.All()), event, payload)
}

func conns(sessions []Session) []core.Conn {
	return lo.Map(sessions, func(s Session, _ int) core.Conn { return s.Conn })
}

func (f *Fanout) deliver(targets []core.Conn, event string, payload any) {
	frame, err := core.EncodeEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Str("event", event).Msg("encode event")
		return
	}
	dropped := 0
	for _, c := range targets {
		if err := c.TrySend(frame); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		log.Debug().Str("module", "app.fanout").Str("event", event).Int("sent", len(targets)-dropped).Int("dropped", dropped).Msg("fanout result")
	}
}
