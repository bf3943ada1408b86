// Package store is the durable directory of rooms, membership and
// messages consumed by the presence coordinator.
package store

import (
	"context"
	"errors"

	"github.com/hallchat/relay/internal/domain"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotInRoom    = errors.New("user is not in a room")
)

// JoinRecord reports the outcome of a membership move. OldRoom is the
// zero Room when the user had not joined anything yet.
type JoinRecord struct {
	User    domain.Identity
	Room    domain.Room
	OldRoom domain.Room
}

// Directory is the durable source of truth. On error the caller must
// assume no side effect occurred.
type Directory interface {
	CreateRoom(ctx context.Context, name domain.RoomName) (domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	UsersInRoom(ctx context.Context, room domain.RoomID) ([]domain.Identity, error)
	JoinRoom(ctx context.Context, user domain.Identity, room domain.RoomID) (JoinRecord, error)
	LeaveOnDisconnect(ctx context.Context, user domain.Identity) (domain.Room, error)
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	MessagesForRoom(ctx context.Context, room domain.RoomID) ([]domain.Message, error)
}
