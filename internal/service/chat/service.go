// Package chat persists sessions and their ordered message history.
package chat

import (
	"database/sql"
	"sync"
)

// Service handles session and message persistence plus the user store.
type Service struct {
	db *sql.DB

	// serializes timestamp clamping in AppendMessage
	stampMu sync.Mutex
}

// NewService builds a chat service over an opened database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}
