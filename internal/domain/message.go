package domain

import "time"

// Message is one immutable chat entry. Ordering is store-assigned.
type Message struct {
	RoomID     RoomID    `json:"roomId"`
	AuthorID   UserID    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
}
