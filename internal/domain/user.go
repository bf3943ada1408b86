// Package domain contains entity types without logic, just meta-data.
package domain

type UserID string

// Identity is the authenticated principal behind one connection.
// Derived once from a verified credential and immutable for the
// connection's lifetime.
type Identity struct {
	UserID   UserID `json:"userId"`
	UserName string `json:"userName"`
}
