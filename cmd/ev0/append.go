package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/ev0/internal/models"
	"github.com/ternarybob/ev0/internal/services/executions"
	"github.com/ternarybob/ev0/internal/storage"
)

var (
	appendBot    string
	appendName   string
	appendStatus string
	appendFields []string
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append an execution record to the history file",
	Long: `Appends one record, the same as POST /api/logs, for bots that run on hosts
without network access to the server. Extra fields are given as key=value.`,
	RunE: runAppend,
}

func init() {
	appendCmd.Flags().StringVar(&appendBot, "bot", "", "Bot id (required)")
	appendCmd.Flags().StringVar(&appendName, "name", "", "Bot display name")
	appendCmd.Flags().StringVar(&appendStatus, "status", models.StatusSuccess, "Execution status")
	appendCmd.Flags().StringArrayVar(&appendFields, "field", nil, "Extra field as key=value (repeatable)")
	_ = appendCmd.MarkFlagRequired("bot")
}

func runAppend(cmd *cobra.Command, args []string) error {
	record := models.NewExecutionRecord(appendBot, appendName, appendStatus, time.Now().In(configLocation()))
	for _, field := range appendFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --field %q, expected key=value", field)
		}
		if err := record.Set(key, value); err != nil {
			return err
		}
	}

	service := executions.NewService(storage.NewExecutionLogStore(logger, config), nil, logger)
	if err := service.Append(cmd.Context(), record); err != nil {
		return err
	}

	logger.Info().Str("bot", appendBot).Str("status", record.Status).Msg("Execution record appended")
	return nil
}

func configLocation() *time.Location {
	loc, err := config.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}
