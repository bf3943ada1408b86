package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hallchat/relay/internal/domain"
)

// BadgerDirectory persists the directory in a single Badger keyspace.
// Message keys embed a zero-padded nanosecond timestamp so a forward
// prefix scan yields insertion order.
type BadgerDirectory struct {
	db *badger.DB
}

// Open creates a directory at path. An empty path opens an in-memory
// store, used in dev mode and tests.
func Open(path string) (*BadgerDirectory, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open directory store: %w", err)
	}
	log.Info().Str("module", "store").Str("path", path).Bool("in_memory", path == "").Msg("directory store opened")
	return &BadgerDirectory{db: db}, nil
}

func (s *BadgerDirectory) Close() error { return s.db.Close() }

func roomKey(id domain.RoomID) []byte { return []byte("room:" + id) }

// roomNameKey is the uniqueness index; names collide case-insensitively.
func roomNameKey(name domain.RoomName) []byte {
	return []byte("roomname:" + strings.ToLower(string(name)))
}

func memberKey(uid domain.UserID) []byte { return []byte("member:" + uid) }

func roomMemberPrefix(id domain.RoomID) []byte { return []byte("roommember:" + id + ":") }

func roomMemberKey(id domain.RoomID, uid domain.UserID) []byte {
	return append(roomMemberPrefix(id), string(uid)...)
}

func msgPrefix(id domain.RoomID) []byte { return []byte("msg:" + id + ":") }

func msgKey(id domain.RoomID, at time.Time) []byte {
	return fmt.Appendf(msgPrefix(id), "%019d:%s", at.UnixNano(), uuid.NewString())
}

func readRoom(txn *badger.Txn, id domain.RoomID) (domain.Room, error) {
	item, err := txn.Get(roomKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &room) }); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *BadgerDirectory) CreateRoom(_ context.Context, name domain.RoomName) (domain.Room, error) {
	room := domain.Room{RoomID: domain.RoomID(uuid.NewString()), RoomName: name}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomNameKey(name)); err == nil {
			return ErrRoomExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		val, err := json.Marshal(room)
		if err != nil {
			return err
		}
		if err := txn.Set(roomKey(room.RoomID), val); err != nil {
			return err
		}
		return txn.Set(roomNameKey(name), []byte(room.RoomID))
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// EnsureRoom creates name if absent and returns the existing room
// otherwise. Used at boot to seed the default lobby.
func (s *BadgerDirectory) EnsureRoom(ctx context.Context, name domain.RoomName) (domain.Room, error) {
	room, err := s.CreateRoom(ctx, name)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrRoomExists) {
		return domain.Room{}, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomNameKey(name))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		room, err = readRoom(txn, domain.RoomID(id))
		return err
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *BadgerDirectory) ListRooms(_ context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("room:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var room domain.Room
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &room) }); err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *BadgerDirectory) UsersInRoom(_ context.Context, room domain.RoomID) ([]domain.Identity, error) {
	var users []domain.Identity
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := readRoom(txn, room); err != nil {
			return err
		}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := roomMemberPrefix(room)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user domain.Identity
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &user) }); err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// JoinRoom moves the user's membership to room in one transaction,
// clearing any previous membership. At most one room per user.
func (s *BadgerDirectory) JoinRoom(_ context.Context, user domain.Identity, room domain.RoomID) (JoinRecord, error) {
	rec := JoinRecord{User: user}
	err := s.db.Update(func(txn *badger.Txn) error {
		target, err := readRoom(txn, room)
		if err != nil {
			return err
		}
		rec.Room = target

		item, err := txn.Get(memberKey(user.UserID))
		switch {
		case err == nil:
			oldID, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			old, err := readRoom(txn, domain.RoomID(oldID))
			if err != nil {
				return err
			}
			rec.OldRoom = old
			if err := txn.Delete(roomMemberKey(old.RoomID, user.UserID)); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		val, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := txn.Set(roomMemberKey(room, user.UserID), val); err != nil {
			return err
		}
		return txn.Set(memberKey(user.UserID), []byte(room))
	})
	if err != nil {
		return JoinRecord{}, err
	}
	return rec, nil
}

// LeaveOnDisconnect clears the user's membership and reports the room
// that was left. ErrNotInRoom when the user never joined one.
func (s *BadgerDirectory) LeaveOnDisconnect(_ context.Context, user domain.Identity) (domain.Room, error) {
	var room domain.Room
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(memberKey(user.UserID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotInRoom
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		room, err = readRoom(txn, domain.RoomID(id))
		if err != nil {
			return err
		}
		if err := txn.Delete(roomMemberKey(room.RoomID, user.UserID)); err != nil {
			return err
		}
		return txn.Delete(memberKey(user.UserID))
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *BadgerDirectory) AppendMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := readRoom(txn, msg.RoomID); err != nil {
			return err
		}
		val, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return txn.Set(msgKey(msg.RoomID, msg.Timestamp), val)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// MessagesForRoom returns the room's messages oldest first.
func (s *BadgerDirectory) MessagesForRoom(_ context.Context, room domain.RoomID) ([]domain.Message, error) {
	var msgs []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := readRoom(txn, room); err != nil {
			return err
		}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := msgPrefix(room)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg domain.Message
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &msg) }); err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
