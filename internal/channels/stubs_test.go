package channels

import (
	"context"
	"testing"
	"time"
)

func TestTelegramMessages_Send_NoTokenConfigured(t *testing.T) {
	adapter := NewTelegramMessages(TelegramConfig{})
	if err := adapter.Send(context.Background(), "12345", "hello"); err == nil {
		t.Error("Send with no bot token configured should return an error")
	}
}

func TestTelegramMessages_Send_NonNumericChatID(t *testing.T) {
	adapter := NewTelegramMessages(TelegramConfig{BotToken: "fake-token"})
	if err := adapter.Send(context.Background(), "not-a-chat-id", "hello"); err == nil {
		t.Error("Send with a non-numeric chat id should return an error")
	}
}

func TestSlackMessages_Send_NoTokenConfigured(t *testing.T) {
	adapter := NewSlackMessages(SlackConfig{})
	if err := adapter.Send(context.Background(), "#general", "hello"); err == nil {
		t.Error("Send with no bot token configured should return an error")
	}
}

func TestNoopAdapters_NeverError(t *testing.T) {
	ctx := context.Background()

	if _, err := (NoopCalendar{}).EventsNear(ctx, time.Now(), 0); err != nil {
		t.Errorf("NoopCalendar.EventsNear returned an error: %v", err)
	}
	if err := (NoopEmail{}).Send(ctx, "acct", []string{"a@example.com"}, "subj", "body"); err != nil {
		t.Errorf("NoopEmail.Send returned an error: %v", err)
	}
	if _, err := (NoopContacts{}).Search(ctx, "jordan"); err != nil {
		t.Errorf("NoopContacts.Search returned an error: %v", err)
	}
	if err := (NoopMessages{}).Send(ctx, "someone", "body"); err != nil {
		t.Errorf("NoopMessages.Send returned an error: %v", err)
	}
}
