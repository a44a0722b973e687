package chatstore

import "context"

// noopStore implements Store with no backing storage. Used for ":memory:"
// sessions that do not want a turn's persistence to have side effects.
type noopStore struct{}

func newNoopStore() Store { return noopStore{} }

func (noopStore) Upsert(ctx context.Context, msg Message) error { return nil }

func (noopStore) LoadRecent(ctx context.Context, limit int) ([]Message, error) {
	return nil, nil
}

func (noopStore) Close() error { return nil }
