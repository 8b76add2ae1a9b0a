package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/interfaces"
	"github.com/ternarybob/ev0/internal/models"
)

func TestNewLoggerSubscriber(t *testing.T) {
	subscriber := NewLoggerSubscriber(arbor.NewNoOpLogger())
	ctx := context.Background()

	payloads := []interface{}{
		models.NewExecutionRecord("cash", "Cash", models.StatusSuccess, time.Now()),
		map[string]interface{}{"bot": "bank", "status": models.StatusRunning},
		nil,
	}
	for _, payload := range payloads {
		err := subscriber(ctx, interfaces.Event{Type: interfaces.EventExecutionAppended, Payload: payload})
		assert.NoError(t, err)
	}
}

func TestSubscribeLoggerToAllEvents(t *testing.T) {
	svc := NewService(arbor.NewNoOpLogger())
	defer svc.Close()

	ids, err := SubscribeLoggerToAllEvents(svc, arbor.NewNoOpLogger())
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[interfaces.EventExecutionAppended])
	assert.NotEmpty(t, ids[interfaces.EventBotStateChanged])

	for eventType, id := range ids {
		assert.NoError(t, svc.Unsubscribe(eventType, id))
	}
}
