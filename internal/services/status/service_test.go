package status

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/models"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ReadAll(ctx context.Context) ([]models.ExecutionRecord, error) {
	args := m.Called(ctx)
	if records, ok := args.Get(0).([]models.ExecutionRecord); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func rec(botID, status string, t int) models.ExecutionRecord {
	r := models.ExecutionRecord{BotID: botID, Status: status}
	_ = r.Set("t", t)
	return r
}

func TestProject_FirstSeenWins(t *testing.T) {
	records := []models.ExecutionRecord{
		rec("a", "success", 2),
		rec("b", "error", 2),
		rec("a", "running", 1),
	}

	projection := Project(records)

	require.Len(t, projection, 2)
	assert.Equal(t, records[0], projection["a"])
	assert.Equal(t, records[1], projection["b"])
}

func TestProject_Empty(t *testing.T) {
	projection := Project(nil)
	assert.NotNil(t, projection)
	assert.Empty(t, projection)

	projection = Project([]models.ExecutionRecord{})
	assert.Empty(t, projection)
}

func TestProject_MissingBotIDSharesOneBucket(t *testing.T) {
	records := []models.ExecutionRecord{
		rec("", "success", 3),
		rec("a", "success", 2),
		rec("", "error", 1),
	}

	projection := Project(records)

	require.Len(t, projection, 2)
	assert.Equal(t, records[0], projection[""])
}

func TestService_GetStatus(t *testing.T) {
	reader := new(mockReader)
	reader.On("ReadAll", mock.Anything).Return([]models.ExecutionRecord{
		rec("a", "success", 2),
		rec("a", "running", 1),
	}, nil)

	svc := NewService(reader, arbor.NewNoOpLogger())
	projection, err := svc.GetStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "success", projection["a"].Status)
	reader.AssertExpectations(t)
}

func TestService_GetStatusPropagatesErrors(t *testing.T) {
	reader := new(mockReader)
	boom := errors.New("disk on fire")
	reader.On("ReadAll", mock.Anything).Return(nil, boom)

	svc := NewService(reader, arbor.NewNoOpLogger())
	_, err := svc.GetStatus(context.Background())

	assert.ErrorIs(t, err, boom)
}
