package models

import "time"

// SessionInfo describes an open editing context
type SessionInfo struct {
	ID       string    `json:"id"`
	NoteID   NoteID    `json:"noteId"`
	Pending  bool      `json:"pending"`
	OpenedAt time.Time `json:"opened_at"`
	SavedAt  time.Time `json:"saved_at,omitempty"`
}
