package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/models"
	"github.com/ternarybob/ev0/internal/services/events"
	"github.com/ternarybob/ev0/internal/services/executions"
	"github.com/ternarybob/ev0/internal/storage/jsonfile"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_Hello(t *testing.T) {
	h := NewWebSocketHandler(nil, arbor.NewNoOpLogger())
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	msg := readMessage(t, conn)

	assert.Equal(t, "hello", msg.Type)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, h.serverInstanceID, payload["server_instance_id"])
}

func TestWebSocket_BroadcastsAppendedRecords(t *testing.T) {
	logger := arbor.NewNoOpLogger()
	eventService := events.NewService(logger)
	defer eventService.Close()

	h := NewWebSocketHandler(eventService, logger)
	defer h.Close()

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	const clients = 3
	conns := make([]*websocket.Conn, clients)
	for i := range conns {
		conns[i] = dial(t, server)
		assert.Equal(t, "hello", readMessage(t, conns[i]).Type)
	}
	require.Eventually(t, func() bool { return h.ClientCount() == clients }, 2*time.Second, 10*time.Millisecond)

	store := jsonfile.NewExecutionLogStore(logger, t.TempDir()+"/execution-history.json")
	service := executions.NewService(store, eventService, logger)
	require.NoError(t, service.Append(t.Context(), models.ExecutionRecord{BotID: "cash", Status: models.StatusSuccess}))

	for _, conn := range conns {
		msg := readMessage(t, conn)
		assert.Equal(t, "execution_appended", msg.Type)
		payload, ok := msg.Payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "cash", payload["botId"])
		assert.Equal(t, "success", payload["status"])
	}
}

func TestWebSocket_DisconnectRemovesClient(t *testing.T) {
	h := NewWebSocketHandler(nil, arbor.NewNoOpLogger())
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
