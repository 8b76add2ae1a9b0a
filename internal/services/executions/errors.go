package executions

import "fmt"

// ValidationError reports a record that cannot be appended.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid execution record: %s %s", e.Field, e.Reason)
}
