package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Multiple --config flags supported
	serverPort  int
	serverHost  string
	logPath     string
	envFile     string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "ev0",
	Short: "EV automation bot monitor",
	Long: `ev0 keeps the execution history of the EV automation bots, serves it over HTTP
and answers chat commands for status, logs and manual runs.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runServe,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flags.IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	flags.StringVar(&serverHost, "host", "", "Server host (overrides config)")
	flags.StringVar(&logPath, "log-path", "", "Execution history file (overrides config)")
	flags.StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")

	rootCmd.AddCommand(serveCmd, versionCmd, statusCmd, appendCmd)
}

// loadConfig runs the startup sequence shared by every command:
// 1. Load .env (existing environment wins)
// 2. Load config (defaults -> file1 -> file2 -> ... -> env)
// 3. Apply CLI overrides (highest priority)
// 4. Initialize logger
func loadConfig(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("ev0.toml"); err == nil {
			configFiles = append(configFiles, "ev0.toml")
		} else if _, err := os.Stat("deployments/local/ev0.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/ev0.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration %v: %w", configFiles, err)
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost, logPath)
	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.InitLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_path", config.Storage.LogPath).
		Str("bot_log_dir", config.Storage.BotLogDir).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Bool("chat_enabled", config.Chat.Enabled).
		Bool("runner_enabled", config.Runner.Enabled).
		Msg("Resolved configuration (sanitized)")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
