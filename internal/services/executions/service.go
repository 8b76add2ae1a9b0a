package executions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/interfaces"
	"github.com/ternarybob/ev0/internal/models"
	"github.com/ternarybob/ev0/internal/services/status"
)

// Store is the persistence contract of the execution log.
type Store interface {
	ReadAll(ctx context.Context) ([]models.ExecutionRecord, error)
	ReadByKey(ctx context.Context, key string) ([]models.ExecutionRecord, error)
	Append(ctx context.Context, record models.ExecutionRecord) error
}

// Service is the application entry point for reading and appending execution
// records.
type Service struct {
	store    Store
	status   *status.Service
	events   interfaces.EventService
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a new execution Service. events may be nil.
func NewService(store Store, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		store:    store,
		status:   status.NewService(store, logger),
		events:   events,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// List returns the full log, newest first.
func (s *Service) List(ctx context.Context) ([]models.ExecutionRecord, error) {
	return s.store.ReadAll(ctx)
}

// ListByBot returns the log entries of one bot, newest first.
func (s *Service) ListByBot(ctx context.Context, botID string) ([]models.ExecutionRecord, error) {
	return s.store.ReadByKey(ctx, botID)
}

// Status returns the newest record per bot.
func (s *Service) Status(ctx context.Context) (map[string]models.ExecutionRecord, error) {
	return s.status.GetStatus(ctx)
}

// Append validates and stores record, then publishes EventExecutionAppended.
func (s *Service) Append(ctx context.Context, record models.ExecutionRecord) error {
	if err := s.Validate(record); err != nil {
		return err
	}

	if err := s.store.Append(ctx, record); err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}

	s.logger.Info().
		Str("bot_id", record.BotID).
		Str("bot_name", record.BotName).
		Str("status", record.Status).
		Msg(fmt.Sprintf("Log added: %s - %s", record.BotName, record.Status))

	if s.events != nil {
		event := interfaces.Event{
			Type:    interfaces.EventExecutionAppended,
			Payload: record,
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("bot_id", record.BotID).Msg("Failed to publish execution event")
		}
	}
	return nil
}

// Validate checks the fields the status projection depends on.
func (s *Service) Validate(record models.ExecutionRecord) error {
	record.BotID = strings.TrimSpace(record.BotID)
	if err := s.validate.Struct(record); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: jsonFieldName(fe.Field()), Reason: "is " + fe.Tag()}
		}
		return &ValidationError{Field: "record", Reason: err.Error()}
	}
	return nil
}

func jsonFieldName(field string) string {
	switch field {
	case "BotID":
		return "botId"
	case "BotName":
		return "botName"
	case "Status":
		return "status"
	}
	return field
}
