// Package channels defines the capability-interface boundary between
// chief's core scheduling/notification logic and the external providers
// (calendar, email, contacts, messaging) that spec.md places out of scope
// for this module. Each interface is intentionally narrow — exactly what
// internal/mission's heartbeat loop and internal/notify's send path need —
// and ships with a noop implementation so the core builds and runs with no
// provider configured.
//
// This is also the wiring point for the chat-provider SDKs in the
// dependency stack (go-telegram/bot, slack-go/slack): their MessagesAdapter
// implementations live in stubs.go and are constructed only when an
// escalation channel is configured; the default configuration uses none.
package channels

import (
	"context"
	"time"
)

// CalendarEvent is a minimal calendar event, enough for the heartbeat
// loop's proximity classification (spec.md §4.6 "calendar-aware wakes").
type CalendarEvent struct {
	ID      string
	Title   string
	Start   time.Time
	End     time.Time
	AllDay  bool
}

// CalendarAdapter looks up events near a point in time. Implementations
// wrap a concrete provider (Google Calendar, CalDAV, Apple Calendar); the
// scheduler only ever sees this interface.
type CalendarAdapter interface {
	EventsNear(ctx context.Context, at time.Time, window time.Duration) ([]CalendarEvent, error)
}

// NoopCalendar always reports no events, the default when no calendar
// provider is configured; PRE_EVENT/POST_EVENT/SUPPRESS classification then
// degrades to plain HEARTBEAT wakes.
type NoopCalendar struct{}

func (NoopCalendar) EventsNear(context.Context, time.Time, time.Duration) ([]CalendarEvent, error) {
	return nil, nil
}

// EmailAdapter sends outbound mail through whatever provider is configured.
type EmailAdapter interface {
	Send(ctx context.Context, account string, recipients []string, subject, body string) error
}

// NoopEmail accepts and discards every send: Send returns nil and nothing
// leaves the process.
type NoopEmail struct{}

func (NoopEmail) Send(context.Context, string, []string, string, string) error {
	return nil
}

// Contact is a minimal address-book entry.
type Contact struct {
	ID     string
	Name   string
	Emails []string
	Phones []string
}

// ContactsAdapter resolves a free-text query to contacts, used when a
// worker or duty prompt needs to disambiguate "email Jordan" into an
// address.
type ContactsAdapter interface {
	Search(ctx context.Context, query string) ([]Contact, error)
}

// NoopContacts always returns no matches.
type NoopContacts struct{}

func (NoopContacts) Search(context.Context, string) ([]Contact, error) { return nil, nil }

// MessagesAdapter sends a message through an external chat surface
// (iMessage/Telegram/Slack/Discord), independent of chief's own tmux-based
// conversation streams.
type MessagesAdapter interface {
	Send(ctx context.Context, to, body string) error
}

// NoopMessages drops every send.
type NoopMessages struct{}

func (NoopMessages) Send(context.Context, string, string) error { return nil }
