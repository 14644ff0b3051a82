package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"bilancio/internal/core"
)

// EventType identifies one of the events published on the exchange.
type EventType string

const (
	// EventMutationRecorded is emitted after every accepted mutation,
	// whether it went straight to the remote or into the sync queue.
	EventMutationRecorded EventType = "mutation_recorded"

	// EventSyncCompleted is emitted after a reconciliation pass drained
	// the queue and the remote confirmed the merged snapshot.
	EventSyncCompleted EventType = "sync_completed"
)

// Event is the wire format shared by all published messages. Fields that do
// not apply to the event type are left zero.
type Event struct {
	Type      EventType       `json:"type"`
	Scope     string          `json:"scope"`
	Timestamp time.Time       `json:"timestamp"`

	// MutationRecorded
	ActionKind core.ActionKind `json:"actionKind,omitempty"`
	Entity     core.EntityKind `json:"entity,omitempty"`
	EntityID   string          `json:"entityId,omitempty"`
	Queued     bool            `json:"queued,omitempty"`

	// SyncCompleted
	Actions    int   `json:"actions,omitempty"`
	DurationMS int64 `json:"durationMs,omitempty"`
}

// NewMutationRecorded builds the event for one accepted mutation. queued
// reports whether the mutation landed in the sync queue instead of the remote.
func NewMutationRecorded(scope string, kind core.ActionKind, entity core.EntityKind, entityID string, queued bool) *Event {
	return &Event{
		Type:       EventMutationRecorded,
		Scope:      scope,
		Timestamp:  time.Now().UTC(),
		ActionKind: kind,
		Entity:     entity,
		EntityID:   entityID,
		Queued:     queued,
	}
}

// NewSyncCompleted builds the event for one finished reconciliation pass.
func NewSyncCompleted(scope string, actions int, took time.Duration) *Event {
	return &Event{
		Type:       EventSyncCompleted,
		Scope:      scope,
		Timestamp:  time.Now().UTC(),
		Actions:    actions,
		DurationMS: took.Milliseconds(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and checks it carries a known type.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventMutationRecorded, EventSyncCompleted:
		return &e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}
