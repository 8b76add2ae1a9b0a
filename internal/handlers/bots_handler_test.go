package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
	"github.com/ternarybob/ev0/internal/services/registry"
	"github.com/ternarybob/ev0/internal/services/runner"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Start(ctx context.Context, key string) error { return m.Called(ctx, key).Error(0) }
func (m *mockRunner) Stop(key string) error                       { return m.Called(key).Error(0) }
func (m *mockRunner) Enabled() bool                               { return m.Called().Bool(0) }
func (m *mockRunner) Running(key string) bool                     { return m.Called(key).Bool(0) }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(common.DefaultBots(), nil, arbor.NewNoOpLogger())
	require.NoError(t, err)
	return reg
}

func TestBotsHandler_List(t *testing.T) {
	h := NewBotsHandler(newTestRegistry(t), nil, nil, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/bots", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var bots []map[string]interface{}
	decodeBody(t, rec, &bots)
	require.Len(t, bots, 5)
	assert.Equal(t, "oliveyoung", bots[0]["key"])
	assert.Equal(t, "idle", bots[0]["status"])
	assert.NotEmpty(t, bots[0]["next_run"])
	assert.Nil(t, bots[3]["next_run"], "bank has no cron expression")
}

func TestBotsHandler_Get(t *testing.T) {
	h := NewBotsHandler(newTestRegistry(t), nil, nil, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/bots/cash", nil), "cash")
	require.Equal(t, http.StatusOK, rec.Code)

	var bot map[string]interface{}
	decodeBody(t, rec, &bot)
	assert.Equal(t, "Cash balance check", bot["name"])

	rec = httptest.NewRecorder()
	h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/bots/nope", nil), "nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBotsHandler_RunDisabled(t *testing.T) {
	h := NewBotsHandler(newTestRegistry(t), runner.Disabled{}, nil, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	h.RunHandler(rec, httptest.NewRequest(http.MethodPost, "/api/bots/cash/run", nil), "cash")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBotsHandler_RunAndStop(t *testing.T) {
	run := &mockRunner{}
	run.On("Start", mock.Anything, "cash").Return(nil)
	run.On("Start", mock.Anything, "bank").Return(registry.ErrAlreadyRunning)
	run.On("Stop", "cash").Return(nil)
	run.On("Stop", "card").Return(runner.ErrNotRunning)

	h := NewBotsHandler(newTestRegistry(t), run, nil, arbor.NewNoOpLogger())

	cases := []struct {
		handler func(http.ResponseWriter, *http.Request, string)
		key     string
		code    int
	}{
		{h.RunHandler, "cash", http.StatusAccepted},
		{h.RunHandler, "bank", http.StatusConflict},
		{h.StopHandler, "cash", http.StatusAccepted},
		{h.StopHandler, "card", http.StatusConflict},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		c.handler(rec, httptest.NewRequest(http.MethodPost, "/api/bots/"+c.key, nil), c.key)
		assert.Equal(t, c.code, rec.Code, c.key)
	}

	run.AssertExpectations(t)
}
