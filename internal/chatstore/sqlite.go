package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pi_chat_history (
	message_id  TEXT PRIMARY KEY,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	agent_used  TEXT,
	duration_ms INTEGER,
	timestamp   TEXT NOT NULL
);
`

// sqliteStore is a modernc.org/sqlite-backed Store. Inserts are best-effort
// upserts keyed by message_id, matching spec.md's persistence contract.
type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStore(dsn string) (Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite chat store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite chat store: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, msg Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pi_chat_history (message_id, role, content, agent_used, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			role = excluded.role,
			content = excluded.content,
			agent_used = excluded.agent_used,
			duration_ms = excluded.duration_ms,
			timestamp = excluded.timestamp
	`, msg.ID, msg.Role, msg.Content, msg.AgentUsed, msg.DurationMs, msg.Timestamp.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) LoadRecent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, agent_used, duration_ms, timestamp
		FROM pi_chat_history
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent chat history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m        Message
			agent    sql.NullString
			ts       string
			duration sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &agent, &duration, &ts); err != nil {
			return nil, fmt.Errorf("scan chat history row: %w", err)
		}
		m.AgentUsed = agent.String
		m.DurationMs = duration.Int64
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			m.Timestamp = parsed
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows arrived newest-first; reverse to oldest-first for history replay.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
