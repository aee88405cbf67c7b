package channels

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram/bot"
	"github.com/slack-go/slack"
)

// TelegramConfig names the bot token a real TelegramMessages adapter would
// dial with. Left unpopulated by default — chief has no Telegram account
// configured out of the box.
type TelegramConfig struct {
	BotToken string
}

// TelegramMessages is a MessagesAdapter backed by go-telegram/bot. It
// constructs a client lazily on first Send so an empty token never
// attempts a network dial; this documents the wiring boundary described in
// the channels package doc without requiring live credentials to build or
// test the rest of chief.
type TelegramMessages struct {
	cfg    TelegramConfig
	client *tgbotapi.Bot
}

// NewTelegramMessages builds a TelegramMessages adapter for cfg.
func NewTelegramMessages(cfg TelegramConfig) *TelegramMessages {
	return &TelegramMessages{cfg: cfg}
}

func (t *TelegramMessages) ensureClient() error {
	if t.client != nil {
		return nil
	}
	if t.cfg.BotToken == "" {
		return fmt.Errorf("telegram: no bot token configured")
	}
	client, err := tgbotapi.New(t.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("telegram: construct client: %w", err)
	}
	t.client = client
	return nil
}

// Send delivers body to a chat id encoded in to.
func (t *TelegramMessages) Send(ctx context.Context, to, body string) error {
	if err := t.ensureClient(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: %q is not a numeric chat id: %w", to, err)
	}
	_, err = t.client.SendMessage(ctx, &tgbotapi.SendMessageParams{ChatID: chatID, Text: body})
	return err
}

// SlackConfig names the bot token a real SlackMessages adapter would dial
// with.
type SlackConfig struct {
	BotToken string
}

// SlackMessages is a MessagesAdapter backed by slack-go/slack, following
// the same lazy-client, no-token-no-dial shape as TelegramMessages.
type SlackMessages struct {
	cfg    SlackConfig
	client *slack.Client
}

// NewSlackMessages builds a SlackMessages adapter for cfg.
func NewSlackMessages(cfg SlackConfig) *SlackMessages {
	return &SlackMessages{cfg: cfg}
}

func (s *SlackMessages) ensureClient() error {
	if s.client != nil {
		return nil
	}
	if s.cfg.BotToken == "" {
		return fmt.Errorf("slack: no bot token configured")
	}
	s.client = slack.New(s.cfg.BotToken)
	return nil
}

// Send posts body to a Slack channel or user id.
func (s *SlackMessages) Send(ctx context.Context, to, body string) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	_, _, err := s.client.PostMessageContext(ctx, to, slack.MsgOptionText(body, false))
	return err
}
