// Package bus provides the internal typed pub/sub used to decouple the
// session orchestrator, thread engine, PTY/RPC managers, and teams driver
// from the gateway's WebSocket fan-out.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the unit carried on the bus.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent stamps a fresh Event with a random id and the current time.
func NewEvent(eventType, source string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler processes one delivered Event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is satisfied by both the in-process default and the optional
// NATS-backed implementation; the gateway never branches on which is active.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler EventHandler) (Subscription, error)
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)
	Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error)
	Close()
	IsConnected() bool
}

// Subjects used across the gateway. Kept centralized so producers and the
// gateway's frame translator agree on naming.
const (
	SubjectSessionPrefix = "session."
	SubjectThreadPrefix  = "thread."
	SubjectTeamsPrefix   = "teams."
	SubjectPTYPrefix     = "pty."
	SubjectRPCPrefix     = "rpc."
)
