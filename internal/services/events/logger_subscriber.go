package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/interfaces"
	"github.com/ternarybob/ev0/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		var bot, status string
		switch payload := event.Payload.(type) {
		case models.ExecutionRecord:
			bot, status = payload.BotID, payload.Status
		case map[string]interface{}:
			bot, _ = payload["bot"].(string)
			status, _ = payload["status"].(string)
		}

		logEvent := logger.Debug().
			Str("event_type", string(event.Type))
		if bot != "" {
			logEvent = logEvent.Str("bot", bot)
		}
		if status != "" {
			logEvent = logEvent.Str("status", status)
		}
		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every event type and
// returns the subscription id per type.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) (map[interfaces.EventType]string, error) {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventExecutionAppended,
		interfaces.EventBotStateChanged,
	}

	ids := make(map[interfaces.EventType]string, len(eventTypes))
	for _, eventType := range eventTypes {
		id, err := eventService.Subscribe(eventType, subscriber)
		if err != nil {
			return ids, fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
		ids[eventType] = id
	}

	logger.Debug().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return ids, nil
}
