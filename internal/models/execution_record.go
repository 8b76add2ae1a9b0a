package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Execution status tokens written by the runner. The store itself does not
// enforce an enum; producers may send any string.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
	StatusIdle    = "idle"
)

// ExecutionRecord is one entry in the execution log.
//
// BotID, BotName and Status are typed because the status projection and the
// chat agent read them. Every other field the producer attached is kept in
// Extra as compact raw JSON and written back verbatim.
type ExecutionRecord struct {
	BotID   string `json:"botId" validate:"required"`
	BotName string `json:"botName,omitempty"`
	Status  string `json:"status,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// NewExecutionRecord creates a record stamped with an RFC3339 timestamp field.
func NewExecutionRecord(botID, botName, status string, at time.Time) ExecutionRecord {
	r := ExecutionRecord{
		BotID:   botID,
		BotName: botName,
		Status:  status,
	}
	_ = r.Set("timestamp", at.Format(time.RFC3339))
	return r
}

// Set stores a field. A non-empty string under a typed key (botId, botName,
// status) goes to its field; any other value for a typed key clears the field
// and is kept in Extra as given.
func (r *ExecutionRecord) Set(key string, value interface{}) error {
	if typed := r.typedField(key); typed != nil {
		if s, ok := value.(string); ok && s != "" {
			*typed = s
			delete(r.Extra, key)
			return nil
		}
		*typed = ""
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode field %s: %w", key, err)
	}
	if r.Extra == nil {
		r.Extra = make(map[string]json.RawMessage)
	}
	r.Extra[key] = raw
	return nil
}

func (r *ExecutionRecord) typedField(key string) *string {
	switch key {
	case "botId":
		return &r.BotID
	case "botName":
		return &r.BotName
	case "status":
		return &r.Status
	}
	return nil
}

// Get decodes an extra field into out. Returns false if the field is absent.
func (r ExecutionRecord) Get(key string, out interface{}) (bool, error) {
	raw, ok := r.Extra[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("failed to decode field %s: %w", key, err)
	}
	return true, nil
}

// Timestamp returns the producer's "timestamp" field parsed as RFC3339.
func (r ExecutionRecord) Timestamp() (time.Time, bool) {
	var s string
	if ok, err := r.Get("timestamp", &s); !ok || err != nil || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MarshalJSON merges the typed fields into the extra bag.
func (r ExecutionRecord) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(r.Extra)+3)
	for k, v := range r.Extra {
		fields[k] = v
	}

	typed := []struct {
		key   string
		value string
	}{
		{"botId", r.BotID},
		{"botName", r.BotName},
		{"status", r.Status},
	}
	for _, f := range typed {
		if f.value == "" {
			continue
		}
		raw, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		fields[f.key] = raw
	}

	return json.Marshal(fields)
}

// UnmarshalJSON reads any JSON object. Typed keys whose value is not a
// non-empty string ("", null, numbers) stay in Extra so they are written back
// as sent.
func (r *ExecutionRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("execution record must be a JSON object")
	}

	*r = ExecutionRecord{}
	for key, raw := range fields {
		if typed := r.typedField(key); typed != nil {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				*typed = s
				continue
			}
		}

		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return err
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = json.RawMessage(compact.Bytes())
	}
	return nil
}
