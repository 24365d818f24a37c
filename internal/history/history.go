package history

import (
	"context"
	"time"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventStart     EventType = "start"
	EventStop      EventType = "stop"
	EventHeartbeat EventType = "heartbeat"
	EventError     EventType = "error"
	EventReconcile EventType = "reconcile"
)

// Event is one connector lifecycle event fanned out to sinks.
type Event struct {
	Type        EventType `json:"type"`
	ConnectorID string    `json:"connector_id"`
	PID         int       `json:"pid"`
	State       string    `json:"state"`
	Code        string    `json:"code,omitempty"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Sink receives lifecycle events. Implementations must be safe for
// concurrent use; delivery is best-effort and never blocks a transition.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
