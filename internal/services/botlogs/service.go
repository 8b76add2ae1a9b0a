package botlogs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ternarybob/arbor"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"

	// Files of earlier days are no longer written, so their lines are cached.
	pastLogCacheSize = 64
)

var (
	// ErrNoLogToday is returned by Tail when the bot has not logged anything today.
	ErrNoLogToday  = errors.New("no log file for today")
	ErrInvalidDate = errors.New("invalid log date, expected YYYY-MM-DD")
)

// Service writes and reads the per-bot daily text logs
// ({botKey}_{YYYY-MM-DD}.log).
type Service struct {
	logsDir  string
	location *time.Location
	now      func() time.Time
	logger   arbor.ILogger
	mu       sync.Mutex
	past     *lru.Cache[string, []string]
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(logsDir string, location *time.Location, logger arbor.ILogger, opts ...Option) *Service {
	if location == nil {
		location = time.UTC
	}
	// lru.New only fails for a non-positive size
	past, _ := lru.New[string, []string](pastLogCacheSize)
	s := &Service{
		logsDir:  logsDir,
		location: location,
		now:      time.Now,
		logger:   logger,
		past:     past,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current date in the configured zone as YYYY-MM-DD.
func (s *Service) Today() string {
	return s.now().In(s.location).Format(dateLayout)
}

// FilePath returns the log file of botKey for date (YYYY-MM-DD).
func (s *Service) FilePath(botKey, date string) string {
	// Base() keeps keys from escaping the log directory
	return filepath.Join(s.logsDir, filepath.Base(botKey)+"_"+date+".log")
}

// Write appends "[timestamp] [LEVEL] message" to today's log of botKey.
func (s *Service) Write(botKey string, level Level, message string) error {
	if level == "" {
		level = LevelInfo
	}
	now := s.now().In(s.location)
	line := fmt.Sprintf("[%s] [%s] %s\n", now.Format(timestampLayout), strings.ToUpper(string(level)), message)
	path := s.FilePath(botKey, now.Format(dateLayout))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create bot log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open bot log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to write bot log: %w", err)
	}

	s.logger.Info().Str("bot", botKey).Str("level", string(level)).Msg(message)
	return nil
}

// Tail returns the last n lines of today's log of botKey.
func (s *Service) Tail(botKey string, n int) ([]string, error) {
	return s.TailDate(botKey, s.Today(), n)
}

// TailDate returns the last n lines of the log of botKey for date.
func (s *Service) TailDate(botKey, date string, n int) ([]string, error) {
	lines, err := s.readLines(botKey, date)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}

func (s *Service) readLines(botKey, date string) ([]string, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	path := s.FilePath(botKey, date)
	if rel, err := filepath.Rel(s.logsDir, path); err != nil || rel != filepath.Base(path) {
		return nil, fmt.Errorf("bot log %s is outside %s", path, s.logsDir)
	}
	cacheable := date < s.Today()
	if cacheable {
		if lines, ok := s.past.Get(path); ok {
			return lines, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoLogToday
		}
		return nil, fmt.Errorf("failed to read bot log: %w", err)
	}

	lines := []string{}
	if content := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n")); content != "" {
		lines = strings.Split(content, "\n")
	}
	if cacheable {
		s.past.Add(path, lines)
	}
	return lines, nil
}

// Entries returns the last n lines of a log parsed into entries.
func (s *Service) Entries(botKey, date string, n int) ([]LogEntry, error) {
	lines, err := s.TailDate(botKey, date, n)
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseLogLine(line))
	}
	return entries, nil
}

// ListLogFiles returns the bot log files in the directory, newest first.
// A missing directory yields an empty list.
func (s *Service) ListLogFiles() ([]LogFile, error) {
	entries, err := os.ReadDir(s.logsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []LogFile{}, nil
		}
		return nil, fmt.Errorf("failed to read logs directory: %w", err)
	}

	files := make([]LogFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		botKey, date, ok := splitFileName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFile{
			Name:    entry.Name(),
			BotKey:  botKey,
			Date:    date,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Date != files[j].Date {
			return files[i].Date > files[j].Date
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// splitFileName parses "{botKey}_{YYYY-MM-DD}.log".
func splitFileName(name string) (botKey, date string, ok bool) {
	base := strings.TrimSuffix(name, ".log")
	idx := strings.LastIndex(base, "_")
	if idx <= 0 {
		return "", "", false
	}
	date = base[idx+1:]
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", "", false
	}
	return base[:idx], date, true
}

// parseLogLine splits "[ts] [LEVEL] message". Lines in another shape are kept
// whole as the message.
func parseLogLine(line string) LogEntry {
	entry := LogEntry{Raw: line, Message: line}

	ts, rest, ok := cutBracket(line)
	if !ok {
		return entry
	}
	level, rest, ok := cutBracket(strings.TrimLeft(rest, " "))
	if !ok {
		return entry
	}

	entry.Timestamp = ts
	entry.Level = level
	entry.Message = strings.TrimLeft(rest, " ")
	return entry
}

func cutBracket(s string) (inner, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	end := strings.Index(s, "]")
	if end < 0 {
		return "", s, false
	}
	return s[1:end], s[end+1:], true
}
