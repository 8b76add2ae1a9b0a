package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
	"github.com/ternarybob/ev0/internal/handlers"
	"github.com/ternarybob/ev0/internal/interfaces"
	"github.com/ternarybob/ev0/internal/models"
	"github.com/ternarybob/ev0/internal/services/botlogs"
	"github.com/ternarybob/ev0/internal/services/chat"
	"github.com/ternarybob/ev0/internal/services/events"
	"github.com/ternarybob/ev0/internal/services/executions"
	"github.com/ternarybob/ev0/internal/services/registry"
	"github.com/ternarybob/ev0/internal/services/runner"
	"github.com/ternarybob/ev0/internal/storage"
	"github.com/ternarybob/ev0/internal/storage/jsonfile"
)

const runnerShutdownTimeout = 10 * time.Second

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	Location  *time.Location
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Execution log
	Store            *jsonfile.ExecutionLogStore
	ExecutionService *executions.Service

	// Event-driven services
	EventService interfaces.EventService

	// Bots
	Registry      *registry.Registry
	Runner        runner.Runner
	BotLogService *botlogs.Service

	// Chat agent (nil when disabled or not configured)
	Dispatcher *chat.Dispatcher
	Telegram   *chat.Telegram

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	LogsHandler    *handlers.LogsHandler
	StatusHandler  *handlers.StatusHandler
	BotsHandler    *handlers.BotsHandler
	BotLogsHandler *handlers.BotLogsHandler
	WSHandler      *handlers.WebSocketHandler

	registrySubscription string
	mirrorMu             sync.Mutex
	loggerSubscriptions  map[interfaces.EventType]string
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", cfg.TimeZone, err)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Location: location,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	if err := app.initServices(); err != nil {
		app.cancelCtx()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("log_path", cfg.Storage.LogPath).
		Str("bot_log_dir", cfg.Storage.BotLogDir).
		Int("bots", len(cfg.Bots)).
		Bool("runner_enabled", app.Runner.Enabled()).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	subs, err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}
	a.loggerSubscriptions = subs

	a.Store = storage.NewExecutionLogStore(a.Logger, a.Config)
	a.ExecutionService = executions.NewService(a.Store, a.EventService, a.Logger)
	a.BotLogService = botlogs.NewService(a.Config.Storage.BotLogDir, a.Location, a.Logger)

	reg, err := registry.New(a.Config.Bots, a.EventService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create bot registry: %w", err)
	}
	a.Registry = reg

	// Seed bot state from the execution log, then keep it current.
	if projection, err := a.ExecutionService.Status(a.ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to read execution log - bot state starts idle")
	} else {
		a.Registry.SyncFromProjection(projection)
	}

	id, err := a.EventService.Subscribe(interfaces.EventExecutionAppended, a.onExecutionAppended)
	if err != nil {
		return fmt.Errorf("failed to subscribe bot registry: %w", err)
	}
	a.registrySubscription = id

	if a.Config.Runner.Enabled {
		a.Runner = runner.NewLocal(a.Registry, a.ExecutionService, a.BotLogService, a.Config.Runner.BaseDir, a.Config.Runner.Interpreter, a.Logger)
		a.Logger.Info().Str("base_dir", a.Config.Runner.BaseDir).Msg("Local bot runner enabled")
	} else {
		a.Runner = runner.Disabled{}
	}

	return nil
}

// onExecutionAppended mirrors records reported over HTTP into the registry.
// Handlers run concurrently, so the bot's newest record is re-read from the
// log under mirrorMu: the last state applied always comes from the latest read.
// Runs owned by the local runner keep the state the runner set.
func (a *App) onExecutionAppended(ctx context.Context, event interfaces.Event) error {
	record, ok := event.Payload.(models.ExecutionRecord)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if _, known := a.Registry.Get(record.BotID); !known {
		return nil
	}

	a.mirrorMu.Lock()
	defer a.mirrorMu.Unlock()

	if a.Runner != nil && a.Runner.Running(record.BotID) {
		return nil
	}

	records, err := a.ExecutionService.ListByBot(a.ctx, record.BotID)
	if err != nil {
		return fmt.Errorf("failed to refresh bot state: %w", err)
	}
	if len(records) > 0 {
		a.Registry.SyncFromProjection(map[string]models.ExecutionRecord{record.BotID: records[0]})
	}
	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Config.Environment, a.Logger)
	a.LogsHandler = handlers.NewLogsHandler(a.ExecutionService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.ExecutionService, a.Logger)
	a.BotsHandler = handlers.NewBotsHandler(a.Registry, a.Runner, a.Location, a.Logger)
	a.BotLogsHandler = handlers.NewBotLogsHandler(a.BotLogService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
}

// StartChat connects the chat agent and starts polling in the background.
// A missing token or chat id, or a failed connection, leaves the HTTP API
// running without the agent.
func (a *App) StartChat() {
	cfg := a.Config.Chat
	if !cfg.Enabled {
		a.Logger.Info().Msg("Chat agent disabled")
		return
	}
	if cfg.Token == "" || cfg.ChatID == "" {
		a.Logger.Warn().
			Bool("token_set", cfg.Token != "").
			Bool("chat_id_set", cfg.ChatID != "").
			Msg("Chat agent not configured - set TELEGRAM_BOT_TOKEN_EV0 and TELEGRAM_CHAT_ID")
		return
	}

	telegram, err := chat.NewTelegram(chat.TelegramConfig{
		Token:       cfg.Token,
		PollTimeout: cfg.PollTimeout,
	}, a.Logger)
	if err != nil {
		a.Logger.Error().Err(err).Msg("Failed to start chat agent")
		return
	}

	a.Telegram = telegram
	a.Dispatcher = a.newDispatcher(chat.NewRateLimitedSender(telegram, a.Config.ChatRateInterval()))

	common.SafeGo(a.Logger, "telegram:poll", func() {
		a.Telegram.Poll(a.ctx, a.Dispatcher.Handle)
	})

	if cfg.AnnounceOnBoot {
		common.SafeGo(a.Logger, "telegram:announce", func() {
			if err := a.Dispatcher.Announce(a.ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("Failed to send startup message")
			}
		})
	}
}

func (a *App) newDispatcher(sender chat.Sender) *chat.Dispatcher {
	return chat.NewDispatcher(a.Registry, a.Runner, a.BotLogService, sender, chat.Config{
		ChatID:      a.Config.Chat.ChatID,
		TailLines:   a.Config.Chat.TailLines,
		Environment: a.Config.Environment,
		Location:    a.Location,
	}, a.Logger)
}

// Close stops background work. Runs still in progress are stopped and their
// final records written.
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if local, ok := a.Runner.(*runner.Local); ok {
		ctx, cancel := context.WithTimeout(context.Background(), runnerShutdownTimeout)
		if err := local.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Bot runs did not finish before shutdown")
		}
		cancel()
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.EventService != nil {
		if a.registrySubscription != "" {
			_ = a.EventService.Unsubscribe(interfaces.EventExecutionAppended, a.registrySubscription)
		}
		for eventType, id := range a.loggerSubscriptions {
			_ = a.EventService.Unsubscribe(eventType, id)
		}
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
