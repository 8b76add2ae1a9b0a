package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/models"
)

type mockStatusProvider struct {
	mock.Mock
}

func (m *mockStatusProvider) Status(ctx context.Context) (map[string]models.ExecutionRecord, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(map[string]models.ExecutionRecord)
	return status, args.Error(1)
}

func TestStatusHandler_NewestPerBot(t *testing.T) {
	service := newExecutionService(t)
	logs := NewLogsHandler(service, arbor.NewNoOpLogger())
	for _, body := range []string{
		`{"botId":"cash","status":"running"}`,
		`{"botId":"bank","status":"success"}`,
		`{"botId":"cash","status":"error"}`,
	} {
		require.Equal(t, http.StatusOK, post(t, logs, body).Code)
	}

	h := NewStatusHandler(service, arbor.NewNoOpLogger())
	rec := httptest.NewRecorder()
	h.GetStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]models.ExecutionRecord
	decodeBody(t, rec, &status)
	require.Len(t, status, 2)
	assert.Equal(t, "error", status["cash"].Status)
	assert.Equal(t, "success", status["bank"].Status)
}

func TestStatusHandler_EmptyLog(t *testing.T) {
	h := NewStatusHandler(newExecutionService(t), arbor.NewNoOpLogger())
	rec := httptest.NewRecorder()
	h.GetStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestStatusHandler_Failure(t *testing.T) {
	provider := &mockStatusProvider{}
	provider.On("Status", mock.Anything).Return(nil, errors.New("read failed"))

	h := NewStatusHandler(provider, arbor.NewNoOpLogger())
	rec := httptest.NewRecorder()
	h.GetStatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"read failed"}`, rec.Body.String())
	provider.AssertExpectations(t)
}
