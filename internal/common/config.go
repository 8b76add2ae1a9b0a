package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Asia/Seoul must resolve on hosts without zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment" json:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server" json:"server"`
	Storage     StorageConfig `toml:"storage" json:"storage"`
	Logging     LoggingConfig `toml:"logging" json:"logging"`
	Chat        ChatConfig    `toml:"chat" json:"chat"`
	Runner      RunnerConfig  `toml:"runner" json:"runner"`
	TimeZone    string        `toml:"timezone" json:"timezone"` // Zone used for bot log dates and chat timestamps
	Bots        []BotConfig   `toml:"bots" json:"bots" validate:"dive"`
}

type ServerConfig struct {
	Port int    `toml:"port" json:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" json:"host"`
}

// StorageConfig locates the persisted state.
type StorageConfig struct {
	LogPath    string `toml:"log_path" json:"log_path" validate:"required"`       // JSON array of execution records
	BotLogDir  string `toml:"bot_log_dir" json:"bot_log_dir" validate:"required"` // {botKey}_{YYYY-MM-DD}.log files
	MaxRecords int    `toml:"max_records" json:"max_records" validate:"min=1"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" json:"level"`   // "debug", "info", "warn", "error"
	Output     []string `toml:"output" json:"output"` // "stdout", "file"
	Dir        string   `toml:"dir" json:"dir"`       // Directory for the application log file
	TimeFormat string   `toml:"time_format" json:"time_format"`
}

// ChatConfig configures the chat-command agent.
type ChatConfig struct {
	Enabled        bool   `toml:"enabled" json:"enabled"`
	Token          string `toml:"token" json:"-"`
	ChatID         string `toml:"chat_id" json:"chat_id"` // The only chat whose commands are answered
	PollTimeout    int    `toml:"poll_timeout" json:"poll_timeout"`
	RateLimit      string `toml:"rate_limit" json:"rate_limit"` // Minimum interval between outbound messages
	TailLines      int    `toml:"tail_lines" json:"tail_lines" validate:"min=1"`
	AnnounceOnBoot bool   `toml:"announce_on_boot" json:"announce_on_boot"`
}

// RunnerConfig configures local script execution for /run and /stop.
type RunnerConfig struct {
	Enabled     bool   `toml:"enabled" json:"enabled"` // Disabled in hosted deployments
	BaseDir     string `toml:"base_dir" json:"base_dir"`
	Interpreter string `toml:"interpreter" json:"interpreter"`
}

// BotConfig defines one automation bot.
type BotConfig struct {
	Key      string `toml:"key" json:"key" validate:"required"`
	Name     string `toml:"name" json:"name" validate:"required"`
	Category string `toml:"category" json:"category"`
	Path     string `toml:"path" json:"path"`
	Script   string `toml:"script" json:"script"`
	Schedule string `toml:"schedule" json:"schedule"`   // Human-readable schedule shown in /status
	Cron     string `toml:"cron" json:"cron,omitempty"` // Optional cron expression for next-run
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 3001,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			LogPath:    "./data/logs/execution-history.json",
			BotLogDir:  "./data/logs",
			MaxRecords: 1000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			Dir:        "./logs",
			TimeFormat: "15:04:05",
		},
		Chat: ChatConfig{
			Enabled:        true,
			PollTimeout:    60,
			RateLimit:      "50ms",
			TailLines:      15,
			AnnounceOnBoot: true,
		},
		Runner: RunnerConfig{
			Enabled:     false,
			BaseDir:     ".",
			Interpreter: "node",
		},
		TimeZone: "Asia/Seoul",
		Bots:     DefaultBots(),
	}
}

// DefaultBots returns the bots known out of the box.
func DefaultBots() []BotConfig {
	return []BotConfig{
		{Key: "oliveyoung", Name: "Olive Young scraper", Category: "EV2", Path: "EV2-Boosting/oliveyoung-scraper", Script: "oliveyoung_orchestrator.js", Schedule: "daily 08:00", Cron: "0 8 * * *"},
		{Key: "accounting", Name: "Accounting voucher automation", Category: "EV3", Path: "EV3-Managing/accounting-bot", Script: "upload-vouchers.js", Schedule: "daily 09:00", Cron: "0 9 * * *"},
		{Key: "cash", Name: "Cash balance check", Category: "EV3", Path: "EV3-Managing/cash-bot", Script: "run-cash-balance-bot.js", Schedule: "daily 08:00", Cron: "0 8 * * *"},
		{Key: "bank", Name: "Bank transaction download", Category: "EV3", Path: "EV3-Managing/accounting-bot", Script: "download-bank-labeling.js", Schedule: "with accounting bot"},
		{Key: "card", Name: "Card purchase download", Category: "EV3", Path: "EV3-Managing/accounting-bot", Script: "download-card-purchase.js", Schedule: "with accounting bot"},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier ones. A file that sets [[bots]] replaces the default bot list.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		var probe struct {
			Bots []BotConfig `toml:"bots"`
		}
		if err := toml.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
		if len(probe.Bots) > 0 {
			config.Bots = nil
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// EV0_* variables win over the unprefixed names kept for existing deployments.
func applyEnvOverrides(config *Config) {
	if env := firstEnv("EV0_ENV", "NODE_ENV", "GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := firstEnv("EV0_SERVER_PORT", "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("EV0_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if logPath := firstEnv("EV0_LOG_PATH", "LOG_PATH"); logPath != "" {
		config.Storage.LogPath = logPath
	}
	if logDir := firstEnv("EV0_BOT_LOG_DIR", "LOG_DIR"); logDir != "" {
		config.Storage.BotLogDir = logDir
	}
	if maxRecords := os.Getenv("EV0_MAX_RECORDS"); maxRecords != "" {
		if n, err := strconv.Atoi(maxRecords); err == nil {
			config.Storage.MaxRecords = n
		}
	}

	if level := os.Getenv("EV0_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("EV0_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if token := firstEnv("EV0_CHAT_TOKEN", "TELEGRAM_BOT_TOKEN_EV0"); token != "" {
		config.Chat.Token = token
	}
	if chatID := firstEnv("EV0_CHAT_ID", "TELEGRAM_CHAT_ID"); chatID != "" {
		config.Chat.ChatID = chatID
	}
	if enabled := os.Getenv("EV0_CHAT_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Chat.Enabled = b
		}
	}

	if enabled := os.Getenv("EV0_RUNNER_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Runner.Enabled = b
		}
	}
	if baseDir := firstEnv("EV0_RUNNER_BASE_DIR", "EV_BASE_DIR"); baseDir != "" {
		config.Runner.BaseDir = baseDir
	}

	if tz := os.Getenv("EV0_TIMEZONE"); tz != "" {
		config.TimeZone = tz
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host, logPath string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if logPath != "" {
		config.Storage.LogPath = logPath
	}
}

// Validate checks field constraints, bot keys and cron expressions.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Bots))
	for _, bot := range c.Bots {
		if seen[bot.Key] {
			return fmt.Errorf("invalid configuration: duplicate bot key %q", bot.Key)
		}
		seen[bot.Key] = true

		if bot.Cron != "" {
			if _, err := cron.ParseStandard(bot.Cron); err != nil {
				return fmt.Errorf("invalid configuration: bot %q cron %q: %w", bot.Key, bot.Cron, err)
			}
		}
	}

	if c.Chat.RateLimit != "" {
		if _, err := time.ParseDuration(c.Chat.RateLimit); err != nil {
			return fmt.Errorf("invalid configuration: chat.rate_limit: %w", err)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid configuration: timezone: %w", err)
	}
	return nil
}

// Location resolves TimeZone. An empty value means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// ChatRateInterval returns the parsed chat rate limit, zero when unset.
func (c *Config) ChatRateInterval() time.Duration {
	d, err := time.ParseDuration(c.Chat.RateLimit)
	if err != nil {
		return 0
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
