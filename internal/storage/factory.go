package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
	"github.com/ternarybob/ev0/internal/storage/jsonfile"
)

// NewExecutionLogStore creates the execution-log store described by the
// [storage] section.
func NewExecutionLogStore(logger arbor.ILogger, config *common.Config) *jsonfile.ExecutionLogStore {
	logger.Debug().
		Str("path", config.Storage.LogPath).
		Int("max_records", config.Storage.MaxRecords).
		Msg("Execution log store configured")

	return jsonfile.NewExecutionLogStore(logger, config.Storage.LogPath, jsonfile.WithMaxRecords(config.Storage.MaxRecords))
}
