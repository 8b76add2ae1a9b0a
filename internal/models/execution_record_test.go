package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRecord_PreservesExtraFields(t *testing.T) {
	input := `{"botId":"cash","botName":"Cash balance","status":"success","timestamp":"2025-01-11T08:00:00Z","duration":3.2,"details":{"accounts":[1,2]}}`

	var r ExecutionRecord
	require.NoError(t, json.Unmarshal([]byte(input), &r))

	assert.Equal(t, "cash", r.BotID)
	assert.Equal(t, "Cash balance", r.BotName)
	assert.Equal(t, "success", r.Status)
	assert.Equal(t, json.RawMessage(`3.2`), r.Extra["duration"])
	assert.Equal(t, json.RawMessage(`{"accounts":[1,2]}`), r.Extra["details"])

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestExecutionRecord_NonStringTypedFieldStaysInExtra(t *testing.T) {
	var r ExecutionRecord
	require.NoError(t, json.Unmarshal([]byte(`{"botId":42,"status":"error"}`), &r))

	assert.Empty(t, r.BotID)
	assert.Equal(t, json.RawMessage(`42`), r.Extra["botId"])

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"botId":42,"status":"error"}`, string(out))
}

func TestExecutionRecord_RejectsNonObject(t *testing.T) {
	var r ExecutionRecord
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
	assert.Error(t, json.Unmarshal([]byte(`null`), &r))
}

func TestExecutionRecord_CompactsNestedValues(t *testing.T) {
	var r ExecutionRecord
	require.NoError(t, json.Unmarshal([]byte("{\"botId\":\"a\",\"meta\":{\n  \"x\": 1\n}}"), &r))
	assert.Equal(t, json.RawMessage(`{"x":1}`), r.Extra["meta"])
}

func TestNewExecutionRecord_Timestamp(t *testing.T) {
	at := time.Date(2025, 1, 11, 8, 0, 0, 0, time.FixedZone("KST", 9*3600))
	r := NewExecutionRecord("card", "Card download", StatusRunning, at)

	ts, ok := r.Timestamp()
	require.True(t, ok)
	assert.True(t, at.Equal(ts))

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"botId":"card","botName":"Card download","status":"running","timestamp":"2025-01-11T08:00:00+09:00"}`, string(out))
}

func TestExecutionRecord_TimestampMissingOrInvalid(t *testing.T) {
	r := ExecutionRecord{BotID: "a"}
	_, ok := r.Timestamp()
	assert.False(t, ok)

	require.NoError(t, r.Set("timestamp", "yesterday"))
	_, ok = r.Timestamp()
	assert.False(t, ok)
}

func TestExecutionRecord_SetRoutesTypedKeys(t *testing.T) {
	var r ExecutionRecord
	require.NoError(t, r.Set("botId", "bank"))
	require.NoError(t, r.Set("status", "running"))
	require.NoError(t, r.Set("attempt", 2))

	assert.Equal(t, "bank", r.BotID)
	assert.Equal(t, "running", r.Status)
	assert.Len(t, r.Extra, 1)
}

func TestExecutionRecord_EmptyAndNullTypedKeysRoundTrip(t *testing.T) {
	input := `{"botId":"a","botName":"","status":null}`

	var r ExecutionRecord
	require.NoError(t, json.Unmarshal([]byte(input), &r))
	assert.Equal(t, "a", r.BotID)
	assert.Empty(t, r.BotName)
	assert.Empty(t, r.Status)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))

	// A later string value replaces the kept raw value.
	require.NoError(t, r.Set("status", "success"))
	out, err = json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"botId":"a","botName":"","status":"success"}`, string(out))
}
