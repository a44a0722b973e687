// Package chatstore persists chat history behind the session orchestrator's
// append log. A ":memory:" DSN selects a no-op store; any other DSN opens a
// modernc.org/sqlite database.
package chatstore

import (
	"context"
	"time"
)

// Message mirrors the session package's ChatMessage shape without importing
// it, keeping this package leaf-level.
type Message struct {
	ID         string
	Role       string
	Content    string
	AgentUsed  string
	DurationMs int64
	Timestamp  time.Time
}

// Store is the persistence contract described in spec.md §4.3: upsert by
// message id, load the most recent N rows on startup.
type Store interface {
	// Upsert inserts msg, or replaces the row with the same ID if one exists.
	Upsert(ctx context.Context, msg Message) error
	// LoadRecent returns up to limit most recent messages, oldest first.
	LoadRecent(ctx context.Context, limit int) ([]Message, error)
	// Close releases any underlying resources.
	Close() error
}

// Open selects a Store implementation for dsn. ":memory:" (and the empty
// string) yield a Store whose every call succeeds without touching disk.
func Open(dsn string) (Store, error) {
	if dsn == "" || dsn == ":memory:" {
		return newNoopStore(), nil
	}
	return newSQLiteStore(dsn)
}
