package botlogs

import "time"

// Level is the bracketed level written into a bot log line.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// LogEntry represents a parsed line of a bot log file
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Raw       string `json:"raw"`
}

// LogFile represents a log file on disk
type LogFile struct {
	Name    string    `json:"name"`
	BotKey  string    `json:"bot_key"`
	Date    string    `json:"date"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
