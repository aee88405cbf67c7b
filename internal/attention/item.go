// Package attention is the operator-facing view over worker attention
// state: the in-memory, concurrency-safe feed that Chief's channels poll
// to decide what needs a human's (or Chief's) eyes right now.
//
// Grounded on the teacher's internal/attention package (a multi-channel
// inbox aggregator), adapted from "message/email/ticket across channels"
// to "completed/clarifying/alerting worker across domains" — the shape
// spec.md's worker attention fields actually describe.
package attention

import (
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

// Priority levels for attention items, derived from a worker's severity.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// priorityForSeverity maps a worker's severity to a feed priority.
func priorityForSeverity(s models.Severity) Priority {
	switch s {
	case models.SeverityCritical:
		return PriorityCritical
	case models.SeverityHigh:
		return PriorityHigh
	case models.SeverityLow:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Status represents the state of an attention item within the feed. This
// is feed-local bookkeeping (viewed/handled-in-this-process), separate
// from the worker row's own durable status in internal/storage.
type Status string

const (
	StatusNew     Status = "new"
	StatusViewed  Status = "viewed"
	StatusSnoozed Status = "snoozed"
	StatusHandled Status = "handled"
)

// Item is a single worker result, clarification request, alert, or
// followup surfaced for attention.
type Item struct {
	ID             string               `json:"id"` // worker id
	ShortID        string               `json:"short_id"`
	Kind           models.AttentionKind `json:"kind"`
	Domain         string               `json:"domain"`
	Title          string               `json:"title"`
	Data           string               `json:"data,omitempty"`
	ConversationID string               `json:"conversation_id"`
	Priority       Priority             `json:"priority"`
	Status         Status               `json:"status"`

	ReceivedAt   time.Time  `json:"received_at"` // worker's completed_at
	ViewedAt     *time.Time `json:"viewed_at,omitempty"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	HandledAt    *time.Time `json:"handled_at,omitempty"`
}

// IsActive reports whether the item still requires attention right now.
func (i *Item) IsActive() bool {
	switch i.Status {
	case StatusNew, StatusViewed:
		return true
	case StatusSnoozed:
		return i.SnoozedUntil != nil && time.Now().After(*i.SnoozedUntil)
	default:
		return false
	}
}

// SetViewed marks the item as viewed.
func (i *Item) SetViewed() {
	now := time.Now()
	i.ViewedAt = &now
	if i.Status == StatusNew {
		i.Status = StatusViewed
	}
}

// SetHandled marks the item as handled (acknowledged).
func (i *Item) SetHandled() {
	now := time.Now()
	i.HandledAt = &now
	i.Status = StatusHandled
}

// Snooze postpones the item until the given time.
func (i *Item) Snooze(until time.Time) {
	i.SnoozedUntil = &until
	i.Status = StatusSnoozed
}

// Unsnooze brings a snoozed item back to active status.
func (i *Item) Unsnooze() {
	i.SnoozedUntil = nil
	if i.ViewedAt != nil {
		i.Status = StatusViewed
	} else {
		i.Status = StatusNew
	}
}

// ItemFromWorker converts a completed worker row awaiting notification
// into a feed item.
func ItemFromWorker(w *models.Worker) *Item {
	title := w.AttentionTitle
	if title == "" {
		title = w.ReportSummary
	}
	if title == "" {
		title = w.TaskType
	}
	receivedAt := w.CreatedAt
	if w.CompletedAt != nil {
		receivedAt = *w.CompletedAt
	}
	return &Item{
		ID:             w.ID,
		ShortID:        w.ShortID,
		Kind:           w.AttentionKind,
		Domain:         w.AttentionDomain,
		Title:          title,
		Data:           string(w.AttentionData),
		ConversationID: w.ConversationID,
		Priority:       priorityForSeverity(w.Severity),
		Status:         StatusNew,
		ReceivedAt:     receivedAt,
	}
}
