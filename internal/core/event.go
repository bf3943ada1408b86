package core

import "encoding/json"

// Event names on the wire, shared by inbound dispatch and outbound fanout.
const (
	EvNewMessage      = "new-message"
	EvNewRoom         = "new-room"
	EvGetRooms        = "get-rooms"
	EvJoinRoom        = "join-room"
	EvUpdateRoomUsers = "update-room-users"
	EvNewJoinMessage  = "new-join-message"
	EvSuccess         = "success"
	EvError           = "error"
)

// Event is the envelope for every inbound and outbound frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent wraps a payload into a wire frame.
func EncodeEvent(name string, payload any) (Frame, error) {
	var (
		data json.RawMessage
		err  error
	)
	if payload != nil {
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Event{Event: name, Data: data})
}
