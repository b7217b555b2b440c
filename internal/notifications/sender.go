package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"gopkg.in/telebot.v3"
)

// Sender delivers a notification over one transport.
type Sender interface {
	Deliver(ctx context.Context, n Notification) error
}

// --------------------------------------------------------------------------
// Log sender
// --------------------------------------------------------------------------

// LogSender writes notifications to the log. Used when no transport is
// configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Deliver(_ context.Context, n Notification) error {
	s.logger.Info("Notification (log only)",
		"topic", n.Topic, "title", n.Title, "body", n.Body, "key", n.Key.String())
	return nil
}

// --------------------------------------------------------------------------
// Push gateway
// --------------------------------------------------------------------------

// PushSender posts notifications to an HTTP push gateway, one topic per
// queue. Nil-safe: when not configured, Deliver is a no-op.
type PushSender struct {
	client *resty.Client
	url    string
}

type pushPayload struct {
	Topic string            `json:"topic"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// NewPushSender returns nil if url is empty.
func NewPushSender(url, apiKey string, timeout time.Duration) *PushSender {
	if url == "" {
		return nil
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &PushSender{client: client, url: url}
}

func (s *PushSender) Deliver(ctx context.Context, n Notification) error {
	if s == nil {
		return nil
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(pushPayload{Topic: "queue_" + n.Topic, Title: n.Title, Body: n.Body, Data: n.Data}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("push gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// --------------------------------------------------------------------------
// Telegram channel
// --------------------------------------------------------------------------

type channelRecipient string

func (c channelRecipient) Recipient() string { return string(c) }

// TelegramSender posts notifications to a Telegram channel. It never polls
// for updates. Nil-safe like PushSender.
type TelegramSender struct {
	bot     *telebot.Bot
	channel telebot.Recipient
}

// NewTelegramSender returns nil, nil if token or channel is empty.
func NewTelegramSender(token, channel string) (*TelegramSender, error) {
	if token == "" || channel == "" {
		return nil, nil
	}
	bot, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot, channel: channelRecipient(channel)}, nil
}

func (s *TelegramSender) Deliver(_ context.Context, n Notification) error {
	if s == nil {
		return nil
	}
	if _, err := s.bot.Send(s.channel, telegramText(n), &telebot.SendOptions{ParseMode: telebot.ModeHTML}); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// telegramText renders n as Telegram HTML. Scraped text is escaped.
func telegramText(n Notification) string {
	body := html.EscapeString(n.Body)
	if n.Title == "" {
		return body
	}
	return "<b>" + html.EscapeString(n.Title) + "</b>\n" + body
}

// --------------------------------------------------------------------------
// Fan-out
// --------------------------------------------------------------------------

// MultiSender delivers to every sender and joins their errors.
type MultiSender []Sender

func (m MultiSender) Deliver(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildSender assembles the configured transports. With none configured it
// falls back to logging.
func BuildSender(pushURL, pushKey, telegramToken, telegramChannel string, timeout time.Duration, logger *slog.Logger) (Sender, error) {
	var senders MultiSender
	if push := NewPushSender(pushURL, pushKey, timeout); push != nil {
		senders = append(senders, push)
	}
	tg, err := NewTelegramSender(telegramToken, telegramChannel)
	if err != nil {
		return nil, err
	}
	if tg != nil {
		senders = append(senders, tg)
	}
	if len(senders) == 0 {
		logger.Warn("No notification transport configured, logging only")
		return NewLogSender(logger), nil
	}
	return senders, nil
}
