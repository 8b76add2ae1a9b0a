package common

import (
	"github.com/google/uuid"
)

// NewRequestID generates a correlation id for an HTTP request.
// Format: req_<uuid>
func NewRequestID() string {
	return "req_" + uuid.New().String()
}

// NewRunID identifies one bot execution started by the runner.
func NewRunID() string {
	return "run_" + uuid.New().String()
}
