package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/interfaces"
)

type subscription struct {
	id      string
	handler interfaces.EventHandler
}

// Service implements EventService interface with pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]subscription
	mu          sync.RWMutex
	wg          sync.WaitGroup
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[interfaces.EventType][]subscription),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	id := uuid.New().String()

	s.mu.Lock()
	s.subscribers[eventType] = append(s.subscribers[eventType], subscription{id: id, handler: handler})
	count := len(s.subscribers[eventType])
	s.mu.Unlock()

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Str("subscription_id", id).
		Int("subscriber_count", count).
		Msg("Event handler subscribed")

	return id, nil
}

// Unsubscribe removes a handler from an event type
func (s *Service) Unsubscribe(eventType interfaces.EventType, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == subscriptionID {
			s.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			s.logger.Debug().
				Str("event_type", string(eventType)).
				Str("subscription_id", subscriptionID).
				Msg("Event handler unsubscribed")
			return nil
		}
	}

	return fmt.Errorf("subscription %s not found for event type: %s", subscriptionID, eventType)
}

func (s *Service) handlers(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.subscribers[eventType]
	handlers := make([]interfaces.EventHandler, len(subs))
	for i, sub := range subs {
		handlers[i] = sub.handler
	}
	return handlers
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlers(event.Type)
	if len(handlers) == 0 {
		s.logger.Debug().
			Str("event_type", string(event.Type)).
			Msg("No subscribers for event")
		return nil
	}

	s.logger.Debug().
		Str("event_type", string(event.Type)).
		Int("subscriber_count", len(handlers)).
		Msg("Publishing event")

	for _, handler := range handlers {
		s.wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer s.wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		}(handler)
	}

	return nil
}

// Close drops every subscriber and waits for in-flight async handlers.
func (s *Service) Close() error {
	s.mu.Lock()
	s.subscribers = make(map[interfaces.EventType][]subscription)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug().Msg("Event service closed")
	return nil
}
