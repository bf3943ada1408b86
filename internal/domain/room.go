package domain

type (
	RoomID   string
	RoomName string
)

// Room is a named channel with a durable identity. Never mutated after
// creation.
type Room struct {
	RoomID   RoomID   `json:"roomId"`
	RoomName RoomName `json:"roomName"`
}
