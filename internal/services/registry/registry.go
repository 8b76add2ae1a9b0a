package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
	"github.com/ternarybob/ev0/internal/interfaces"
	"github.com/ternarybob/ev0/internal/models"
)

var (
	ErrUnknownBot     = errors.New("unknown bot")
	ErrAlreadyRunning = errors.New("bot is already running")
)

// Bot is a bot definition together with its runtime state.
type Bot struct {
	common.BotConfig
	Status  string     `json:"status"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

type entry struct {
	bot      Bot
	schedule cron.Schedule
}

// Registry holds the known bots and their runtime state. It is created once
// by the app and handed to the components that need it.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	events  interfaces.EventService
	logger  arbor.ILogger
}

// New builds a registry from bot definitions. events may be nil.
func New(defs []common.BotConfig, events interfaces.EventService, logger arbor.ILogger) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]*entry, len(defs)),
		events:  events,
		logger:  logger,
	}

	for _, def := range defs {
		if def.Key == "" {
			return nil, fmt.Errorf("bot definition without key")
		}
		if _, exists := r.entries[def.Key]; exists {
			return nil, fmt.Errorf("duplicate bot key: %s", def.Key)
		}

		e := &entry{bot: Bot{BotConfig: def, Status: models.StatusIdle}}
		if def.Cron != "" {
			schedule, err := cron.ParseStandard(def.Cron)
			if err != nil {
				return nil, fmt.Errorf("invalid cron expression for bot %s: %w", def.Key, err)
			}
			e.schedule = schedule
		}

		r.entries[def.Key] = e
		r.order = append(r.order, def.Key)
	}

	logger.Debug().Int("bots", len(r.order)).Msg("Bot registry initialized")
	return r, nil
}

// Get returns a copy of the bot registered under key.
func (r *Registry) Get(key string) (Bot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return Bot{}, false
	}
	return copyBot(e.bot), true
}

// List returns every bot in definition order.
func (r *Registry) List() []Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bots := make([]Bot, 0, len(r.order))
	for _, key := range r.order {
		bots = append(bots, copyBot(r.entries[key].bot))
	}
	return bots
}

// Keys returns the bot keys in definition order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Categories returns the distinct categories in order of first appearance.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var categories []string
	for _, key := range r.order {
		c := r.entries[key].bot.Category
		if !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}
	return categories
}

// ByCategory returns the bots of one category in definition order.
func (r *Registry) ByCategory(category string) []Bot {
	var bots []Bot
	for _, bot := range r.List() {
		if bot.Category == category {
			bots = append(bots, bot)
		}
	}
	return bots
}

// MarkRunning records that a run of key started at.
func (r *Registry) MarkRunning(key string, at time.Time) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBot, key)
	}
	if e.bot.Status == models.StatusRunning {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	e.bot.Status = models.StatusRunning
	e.bot.LastRun = &at
	r.mu.Unlock()

	r.publish(key, models.StatusRunning)
	return nil
}

// MarkFinished records the final status of the current run of key.
func (r *Registry) MarkFinished(key, status string) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBot, key)
	}
	e.bot.Status = status
	r.mu.Unlock()

	r.publish(key, status)
	return nil
}

// NextRun returns the next scheduled run after now, if the bot has a cron
// expression.
func (r *Registry) NextRun(key string, now time.Time) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok || e.schedule == nil {
		return time.Time{}, false
	}
	return e.schedule.Next(now), true
}

// SyncFromProjection seeds status and last run from the newest execution
// record of each bot, so state survives restarts.
func (r *Registry) SyncFromProjection(projection map[string]models.ExecutionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	synced := 0
	for key, e := range r.entries {
		record, ok := projection[key]
		if !ok {
			continue
		}
		if record.Status != "" {
			e.bot.Status = record.Status
		}
		if ts, ok := record.Timestamp(); ok {
			e.bot.LastRun = &ts
		}
		synced++
	}

	r.logger.Debug().Int("synced", synced).Msg("Bot registry synced from execution log")
}

func (r *Registry) publish(key, status string) {
	if r.events == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventBotStateChanged,
		Payload: map[string]interface{}{
			"bot":       key,
			"status":    status,
			"timestamp": time.Now(),
		},
	}
	if err := r.events.Publish(context.Background(), event); err != nil {
		r.logger.Warn().Err(err).Str("bot", key).Msg("Failed to publish bot state change")
	}
}

func copyBot(b Bot) Bot {
	if b.LastRun != nil {
		t := *b.LastRun
		b.LastRun = &t
	}
	return b
}
