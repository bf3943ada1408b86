package core

// Frame is an encoded payload delivered to a connection.
type Frame []byte

// SessionID identifies one live connection.
type SessionID string

// Conn abstracts the outbound half of a client transport.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}
