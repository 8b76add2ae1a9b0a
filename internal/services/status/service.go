package status

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/models"
)

// RecordReader is the read side of the execution log.
type RecordReader interface {
	ReadAll(ctx context.Context) ([]models.ExecutionRecord, error)
}

// Project maps each botId to its newest record. Records are expected
// newest-first, so the first record seen for an id wins.
//
// Records without a botId all share the "" key; only the first of them is kept.
func Project(records []models.ExecutionRecord) map[string]models.ExecutionRecord {
	projection := make(map[string]models.ExecutionRecord)
	for _, record := range records {
		if _, seen := projection[record.BotID]; seen {
			continue
		}
		projection[record.BotID] = record
	}
	return projection
}

// Service derives the current status of every bot from the execution log.
type Service struct {
	reader RecordReader
	logger arbor.ILogger
}

// NewService creates a new status Service
func NewService(reader RecordReader, logger arbor.ILogger) *Service {
	return &Service{
		reader: reader,
		logger: logger,
	}
}

// GetStatus returns the latest record per bot.
func (s *Service) GetStatus(ctx context.Context) (map[string]models.ExecutionRecord, error) {
	records, err := s.reader.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	projection := Project(records)
	s.logger.Debug().
		Int("records", len(records)).
		Int("bots", len(projection)).
		Msg("Status projected from execution log")
	return projection, nil
}
