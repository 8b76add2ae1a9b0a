package chat

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/services/registry"
	"github.com/ternarybob/ev0/internal/services/runner"
)

// DefaultTailLines is the number of bot log lines returned by /log.
const DefaultTailLines = 15

const displayLayout = "2006-01-02 15:04:05"

// Message is an inbound chat message.
type Message struct {
	ChatID string
	Text   string
}

// Sender delivers a reply to a chat.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// LogTailer reads the tail of today's log of a bot.
type LogTailer interface {
	Tail(botKey string, n int) ([]string, error)
}

// Config configures a Dispatcher.
type Config struct {
	ChatID      string // Only this chat is answered
	TailLines   int
	Environment string
	Location    *time.Location
}

// Dispatcher answers slash commands from the authorized chat.
type Dispatcher struct {
	registry *registry.Registry
	runner   runner.Runner
	logs     LogTailer
	sender   Sender
	config   Config
	now      func() time.Time
	logger   arbor.ILogger
}

func NewDispatcher(reg *registry.Registry, run runner.Runner, logs LogTailer, sender Sender, config Config, logger arbor.ILogger) *Dispatcher {
	if config.TailLines <= 0 {
		config.TailLines = DefaultTailLines
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if run == nil {
		run = runner.Disabled{}
	}
	return &Dispatcher{
		registry: reg,
		runner:   run,
		logs:     logs,
		sender:   sender,
		config:   config,
		now:      time.Now,
		logger:   logger,
	}
}

// Handle answers one message. Messages from other chats and plain text are
// ignored.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) error {
	if d.config.ChatID == "" || msg.ChatID != d.config.ChatID {
		d.logger.Debug().Str("chat_id", msg.ChatID).Msg("Ignoring message from unauthorized chat")
		return nil
	}

	command, args, ok := ParseCommand(msg.Text)
	if !ok {
		return nil
	}

	d.logger.Info().Str("command", command).Str("args", args).Msg("Chat command received")

	var reply string
	switch command {
	case "start", "help":
		reply = d.help()
	case "status":
		reply = d.status()
	case "list":
		reply = d.list()
	case "run":
		reply = d.run(ctx, args)
	case "stop":
		reply = d.stop(args)
	case "log":
		reply = d.log(args)
	default:
		reply = "❓ Unknown command.\nSee /help for usage."
	}

	return d.reply(ctx, reply)
}

// Announce sends the startup message to the authorized chat.
func (d *Dispatcher) Announce(ctx context.Context) error {
	if d.config.ChatID == "" {
		return nil
	}

	text := "🤖 EV0 Agent started"
	if d.config.Environment != "" {
		text += " (" + d.config.Environment + ")"
	}
	text += "\n\n🕐 " + d.formatTime(d.now()) + "\n📱 /help for usage"
	return d.reply(ctx, text)
}

func (d *Dispatcher) reply(ctx context.Context, text string) error {
	if err := d.sender.Send(ctx, d.config.ChatID, text); err != nil {
		d.logger.Error().Err(err).Str("chat_id", d.config.ChatID).Msg("Failed to send chat reply")
		return err
	}
	return nil
}

func (d *Dispatcher) formatTime(t time.Time) string {
	return t.In(d.config.Location).Format(displayLayout)
}

// ParseCommand splits "/cmd@botname args" into its command and trimmed
// arguments. ok is false for text that is not a command.
func ParseCommand(text string) (command, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", false
	}

	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	command, _, _ = strings.Cut(head, "@")
	if command == "" {
		return "", "", false
	}
	return strings.ToLower(command), strings.TrimSpace(rest), true
}
