package jsonfile

import "fmt"

// IOError reports a file-system failure while reading or writing the log file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("execution log %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CorruptStoreError reports that the log file exists but is not a JSON array
// of records.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("execution log %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }
