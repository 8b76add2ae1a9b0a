package chat

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
)

// maxMessageRunes is the Telegram limit for one text message.
const maxMessageRunes = 4096

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token       string
	Endpoint    string // Defaults to tgbotapi.APIEndpoint
	PollTimeout int    // Long-poll timeout in seconds
	HTTPClient  *http.Client
}

// Telegram receives commands by long polling and sends replies through the
// Bot API. It implements Sender.
type Telegram struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	logger      arbor.ILogger
}

// NewTelegram authenticates the token against the Bot API.
func NewTelegram(config TelegramConfig, logger arbor.ILogger) (*Telegram, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("telegram token is not set")
	}
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	_ = tgbotapi.SetLogger(botLogger{logger: logger})

	api, err := tgbotapi.NewBotAPIWithClient(config.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	logger.Info().Str("bot", api.Self.UserName).Msg("Telegram bot authorized")
	return &Telegram{api: api, pollTimeout: config.PollTimeout, logger: logger}, nil
}

// Send posts text to chatID, truncated to the Telegram message limit.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	if _, err := t.api.Send(tgbotapi.NewMessage(id, truncate(text, maxMessageRunes))); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// Poll feeds every inbound message to handle until ctx is cancelled.
// Polling errors are logged by the client and retried.
func (t *Telegram) Poll(ctx context.Context, handle func(context.Context, Message) error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)

	t.logger.Info().Int("timeout", t.pollTimeout).Msg("Telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.logger.Info().Msg("Telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.dispatch(ctx, handle, Message{
				ChatID: strconv.FormatInt(update.Message.Chat.ID, 10),
				Text:   update.Message.Text,
			})
		}
	}
}

func (t *Telegram) dispatch(ctx context.Context, handle func(context.Context, Message) error, msg Message) {
	defer common.Recover(t.logger, "telegram:dispatch")

	if err := handle(ctx, msg); err != nil {
		t.logger.Warn().Err(err).Str("chat_id", msg.ChatID).Msg("Chat command failed")
	}
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}

// botLogger routes the client's own messages (polling errors) to arbor.
type botLogger struct {
	logger arbor.ILogger
}

func (l botLogger) Println(v ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprint(v...))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprintf(format, v...))
}
