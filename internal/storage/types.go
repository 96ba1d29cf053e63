package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Subscription is the persisted form of one tracked chat. It is restored
// on startup so tracking survives restarts.
type Subscription struct {
	ChatID    int64     `json:"chat_id"`
	Filters   []string  `json:"filters,omitempty"`
	Muted     bool      `json:"muted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records a command or lifecycle action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	Action        string    `json:"action"`
	Detail        string    `json:"detail,omitempty"`
	Error         string    `json:"error,omitempty"`
}
