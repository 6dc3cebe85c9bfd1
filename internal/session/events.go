package session

import (
	"time"

	"github.com/google/uuid"
)

// State is the session lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// EventType discriminates events on the session stream.
type EventType string

const (
	// EventEntityChange carries the changed attributes of one entity.
	EventEntityChange EventType = "entity_change"

	// EventSessionState announces a session state transition.
	EventSessionState EventType = "session_state"
)

// Event is a single occurrence on the session's outbound stream.
// Events are emitted in the order they happen; consumers that keep up
// observe every attribute change in sequence.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	// EntityID and Attributes are set for entity_change events.
	// Attributes holds only the attributes that changed.
	EntityID   string         `json:"entity_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`

	// State is set for session_state events.
	State State `json:"state,omitempty"`
}

func newEntityChangeEvent(entityID string, changed map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventEntityChange,
		Time:       time.Now(),
		EntityID:   entityID,
		Attributes: changed,
	}
}

func newStateEvent(state State) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  EventSessionState,
		Time:  time.Now(),
		State: state,
	}
}
