package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/models"
)

// MaxRecords is the number of records kept in the log file. Older records are
// dropped from the tail on append.
const MaxRecords = 1000

const lockRetryDelay = 25 * time.Millisecond

var utf8BOM = []byte("\xef\xbb\xbf")

// ExecutionLogStore persists execution records as a pretty-printed JSON array,
// newest first.
type ExecutionLogStore struct {
	path       string
	maxRecords int
	logger     arbor.ILogger

	mu       sync.Mutex
	fileLock *flock.Flock
}

// Option configures an ExecutionLogStore.
type Option func(*ExecutionLogStore)

// WithMaxRecords overrides MaxRecords. Values below 1 are ignored.
func WithMaxRecords(n int) Option {
	return func(s *ExecutionLogStore) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// NewExecutionLogStore creates a store backed by path. The file and its
// directory are created on first append.
func NewExecutionLogStore(logger arbor.ILogger, path string, opts ...Option) *ExecutionLogStore {
	s := &ExecutionLogStore{
		path:       path,
		maxRecords: MaxRecords,
		logger:     logger,
		fileLock:   flock.New(path + ".lock"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *ExecutionLogStore) Path() string {
	return s.path
}

// ReadAll returns every record, newest first. A missing file is an empty log.
func (s *ExecutionLogStore) ReadAll(ctx context.Context) ([]models.ExecutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

// ReadByKey returns the records whose botId equals key, keeping log order.
func (s *ExecutionLogStore) ReadByKey(ctx context.Context, key string) ([]models.ExecutionRecord, error) {
	records, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.ExecutionRecord, 0)
	for _, record := range records {
		if record.BotID == key {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

// Append inserts record at the head of the log and truncates the tail to the
// configured capacity. The read-modify-write runs under an in-process mutex
// and an advisory lock on <path>.lock.
func (s *ExecutionLogStore) Append(ctx context.Context, record models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}

	locked, err := s.fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return &IOError{Op: "lock", Path: s.fileLock.Path(), Err: err}
	}
	if !locked {
		return &IOError{Op: "lock", Path: s.fileLock.Path(), Err: errors.New("lock not acquired")}
	}
	defer func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Warn().Err(err).Str("path", s.fileLock.Path()).Msg("Failed to release execution log lock")
		}
	}()

	records, err := s.read()
	if err != nil {
		return err
	}

	records = append([]models.ExecutionRecord{record}, records...)
	if len(records) > s.maxRecords {
		records = records[:s.maxRecords]
	}

	if err := s.write(records); err != nil {
		return err
	}

	s.logger.Debug().
		Str("bot_id", record.BotID).
		Str("status", record.Status).
		Int("records", len(records)).
		Msg("Execution record appended")
	return nil
}

func (s *ExecutionLogStore) read() ([]models.ExecutionRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.ExecutionRecord{}, nil
		}
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}

	records, err := decode(data)
	if err != nil {
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}
	return records, nil
}

// decode parses a JSON array of records after stripping one leading BOM.
func decode(data []byte) ([]models.ExecutionRecord, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var records []models.ExecutionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.ExecutionRecord{}
	}
	return records, nil
}

func (s *ExecutionLogStore) ensureDir() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

// write replaces the log file through a temp file in the same directory.
func (s *ExecutionLogStore) write(records []models.ExecutionRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution log: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
