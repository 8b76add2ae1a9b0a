package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/ev0/internal/models"
	"github.com/ternarybob/ev0/internal/services/botlogs"
	"github.com/ternarybob/ev0/internal/services/registry"
	"github.com/ternarybob/ev0/internal/services/runner"
)

const rule = "━━━━━━━━━━━━━━━━━━━━"

func statusEmoji(status string) string {
	switch status {
	case models.StatusRunning:
		return "🔄"
	case models.StatusError:
		return "❌"
	case models.StatusSuccess:
		return "✅"
	default:
		return "⏸️"
	}
}

func (d *Dispatcher) help() string {
	var b strings.Builder
	b.WriteString("🤖 EV System Agent\n\n")
	b.WriteString(rule + "\n📋 Commands\n" + rule + "\n\n")
	b.WriteString("/status : status of every bot\n")
	b.WriteString("/run [bot] : start a bot\n")
	b.WriteString("/stop [bot] : stop a running bot\n")
	b.WriteString("/log [bot] : recent log lines\n")
	b.WriteString("/list : available bots\n")
	b.WriteString("/help : this help\n\n")
	b.WriteString(rule + "\n📦 Bots\n" + rule + "\n\n")

	bots := d.registry.List()
	for _, bot := range bots {
		fmt.Fprintf(&b, "• %s : %s\n", bot.Key, bot.Name)
	}

	if len(bots) > 0 {
		b.WriteString("\n" + rule + "\n💡 Examples\n" + rule + "\n\n")
		fmt.Fprintf(&b, "/run %s\n/log %s", bots[0].Key, bots[len(bots)-1].Key)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) status() string {
	now := d.now()

	var b strings.Builder
	b.WriteString("📊 EV System status\n")
	b.WriteString("🕐 " + d.formatTime(now) + "\n")
	b.WriteString(rule + "\n\n")

	for _, category := range d.registry.Categories() {
		label := category
		if label == "" {
			label = "Other"
		}
		b.WriteString("📦 " + label + "\n\n")

		for _, bot := range d.registry.ByCategory(category) {
			lastRun := "none"
			if bot.LastRun != nil {
				lastRun = d.formatTime(*bot.LastRun)
			}
			fmt.Fprintf(&b, "%s %s\n", statusEmoji(bot.Status), bot.Name)
			if bot.Schedule != "" {
				fmt.Fprintf(&b, "   Schedule: %s\n", bot.Schedule)
			}
			fmt.Fprintf(&b, "   Last run: %s\n", lastRun)
			if next, ok := d.registry.NextRun(bot.Key, now.In(d.config.Location)); ok {
				fmt.Fprintf(&b, "   Next run: %s\n", d.formatTime(next))
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) list() string {
	var b strings.Builder
	b.WriteString("📦 Available bots\n\n")
	for _, bot := range d.registry.List() {
		fmt.Fprintf(&b, "• %s : %s\n", bot.Key, bot.Name)
	}
	b.WriteString("\n💡 Usage: /run <bot>")
	return b.String()
}

func (d *Dispatcher) run(ctx context.Context, key string) string {
	if key == "" {
		return "❓ Enter the bot to run.\nExample: /run " + d.exampleKey()
	}

	bot, ok := d.registry.Get(key)
	if !ok {
		return fmt.Sprintf("❌ Unknown bot: %s\n\nAvailable: %s", key, strings.Join(d.registry.Keys(), ", "))
	}
	if !d.runner.Enabled() {
		if bot.Status == models.StatusRunning {
			return fmt.Sprintf("⚠️ %s is already running.", bot.Name)
		}
		return "⚠️ Bot execution is restricted on this server.\nRun it from a local environment."
	}

	// A running status read back from the log may be stale; the runner
	// decides whether a run is really in progress.
	if err := d.runner.Start(ctx, key); err != nil {
		switch {
		case errors.Is(err, registry.ErrAlreadyRunning):
			return fmt.Sprintf("⚠️ %s is already running.", bot.Name)
		case errors.Is(err, runner.ErrExecutionDisabled):
			return "⚠️ Bot execution is restricted on this server.\nRun it from a local environment."
		}
		d.logger.Error().Err(err).Str("bot", key).Msg("Failed to start bot from chat")
		return fmt.Sprintf("❌ Failed to start %s: %s", bot.Name, err.Error())
	}
	return fmt.Sprintf("🚀 %s started.\nUse /log %s to follow it.", bot.Name, key)
}

func (d *Dispatcher) stop(key string) string {
	if !d.runner.Enabled() {
		return "⚠️ Stopping bots is restricted on this server."
	}
	if key == "" {
		return "❓ Enter the bot to stop.\nExample: /stop " + d.exampleKey()
	}

	bot, ok := d.registry.Get(key)
	if !ok {
		return "❌ Unknown bot: " + key
	}

	if err := d.runner.Stop(key); err != nil {
		if errors.Is(err, runner.ErrNotRunning) {
			return fmt.Sprintf("ℹ️ %s is not running.", bot.Name)
		}
		d.logger.Error().Err(err).Str("bot", key).Msg("Failed to stop bot from chat")
		return fmt.Sprintf("❌ Failed to stop %s: %s", bot.Name, err.Error())
	}
	return fmt.Sprintf("⏹️ Stopping %s.", bot.Name)
}

func (d *Dispatcher) log(key string) string {
	if key == "" {
		return "❓ Enter the bot whose log to show.\nExample: /log " + d.exampleKey()
	}

	bot, ok := d.registry.Get(key)
	if !ok {
		return "❌ Unknown bot: " + key
	}

	lines, err := d.logs.Tail(key, d.config.TailLines)
	if err != nil {
		if errors.Is(err, botlogs.ErrNoLogToday) {
			return fmt.Sprintf("📋 %s: no log today", bot.Name)
		}
		d.logger.Warn().Err(err).Str("bot", key).Msg("Failed to read bot log")
		return "❌ Failed to read log: " + err.Error()
	}
	if len(lines) == 0 {
		return fmt.Sprintf("📋 %s: no log today", bot.Name)
	}
	return fmt.Sprintf("📋 %s recent log\n\n%s", bot.Name, strings.Join(lines, "\n"))
}

func (d *Dispatcher) exampleKey() string {
	if keys := d.registry.Keys(); len(keys) > 0 {
		return keys[0]
	}
	return "bot"
}
