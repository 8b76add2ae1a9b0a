package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventExecutionAppended is published after a record is written to the
	// execution log. Payload: models.ExecutionRecord.
	EventExecutionAppended EventType = "execution_appended"

	// EventBotStateChanged is published when the registry marks a bot running
	// or finished. Payload: map with "bot", "status".
	EventBotStateChanged EventType = "bot_state_changed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe registers handler and returns an id for Unsubscribe
	Subscribe(eventType EventType, handler EventHandler) (string, error)

	Unsubscribe(eventType EventType, subscriptionID string) error

	// Publish delivers the event to every subscriber asynchronously
	Publish(ctx context.Context, event Event) error

	Close() error
}
