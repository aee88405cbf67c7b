package models

import (
	"encoding/json"
	"time"
)

// WorkerStatus is the lifecycle state of a queued background LLM task.
type WorkerStatus string

const (
	WorkerPending                WorkerStatus = "pending"
	WorkerRunning                WorkerStatus = "running"
	WorkerComplete               WorkerStatus = "complete"
	WorkerFailed                 WorkerStatus = "failed"
	WorkerSnoozed                WorkerStatus = "snoozed"
	WorkerCancelled              WorkerStatus = "cancelled"
	WorkerAwaitingClarification  WorkerStatus = "awaiting_clarification"
	WorkerClarificationAnswered  WorkerStatus = "clarification_answered"
)

// Terminal reports whether the worker has reached a final resting state.
func (s WorkerStatus) Terminal() bool {
	switch s {
	case WorkerComplete, WorkerFailed, WorkerCancelled, WorkerSnoozed:
		return true
	default:
		return false
	}
}

// AttentionKind classifies what a completed worker wants eyes on.
type AttentionKind string

const (
	AttentionResult        AttentionKind = "result"
	AttentionClarification AttentionKind = "clarification"
	AttentionAlert         AttentionKind = "alert"
	AttentionFollowup      AttentionKind = "followup"
)

// AttentionKindForStatus maps a final report status to its attention kind,
// per the report tool contract in spec.md §4.7.
func AttentionKindForStatus(status string) AttentionKind {
	switch status {
	case "complete":
		return AttentionResult
	case "needs_clarification":
		return AttentionClarification
	case "failed":
		return AttentionAlert
	default:
		return AttentionFollowup
	}
}

// Severity of an attention item, low to high.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// MaxLiveOutputChars is the cap on a worker's rolling live-output buffer.
const MaxLiveOutputChars = 50_000

// TruncationMarker is inserted when live output is truncated from the head.
const TruncationMarker = "...[truncated]...\n"

// Worker is a queued LLM invocation belonging to a conversation, run
// in-process (not a separate session window), reporting back through a tool.
type Worker struct {
	ID      string `json:"id"`
	ShortID string `json:"short_id"` // first 8 chars of ID

	TaskType       string          `json:"task_type"`
	Params         json.RawMessage `json:"params,omitempty"`
	SpawnedBy      string          `json:"spawned_by_session"`
	ConversationID string          `json:"conversation_id"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	ExecuteAt      *time.Time      `json:"execute_at,omitempty"`
	SpawnShortID   string          `json:"spawn_short_id,omitempty"`

	Status WorkerStatus `json:"status"`

	ReportMD      string `json:"report_md,omitempty"`
	ReportSummary string `json:"report_summary,omitempty"`
	LiveOutput    string `json:"live_output,omitempty"`

	AttentionKind  AttentionKind   `json:"attention_kind,omitempty"`
	AttentionTitle string          `json:"attention_title,omitempty"`
	AttentionDomain string         `json:"attention_domain,omitempty"`
	AttentionData  json.RawMessage `json:"attention_data,omitempty"`
	Severity       Severity        `json:"severity,omitempty"`
	NotifyAfter    *time.Time      `json:"notify_after,omitempty"`

	ClarificationSessionID string     `json:"clarification_session_id,omitempty"`
	ClarificationAnswer    string     `json:"clarification_answer,omitempty"`
	ClarificationAnsweredAt *time.Time `json:"clarification_answered_at,omitempty"`

	HasDependentChildren bool       `json:"has_dependent_children"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	LastError            string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ShortIDOf returns the canonical 8-char short id for a full worker id.
func ShortIDOf(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ReadyToRun reports whether a pending worker's dependencies (by id) have
// all completed successfully, and its scheduled execute_at (if any) has
// passed.
func (w *Worker) ReadyToRun(now time.Time, dependsComplete bool) bool {
	if w == nil || w.Status != WorkerPending {
		return false
	}
	if w.ExecuteAt != nil && now.Before(*w.ExecuteAt) {
		return false
	}
	if len(w.DependsOn) > 0 && !dependsComplete {
		return false
	}
	return true
}

// ConversationNotification records that worker w has already been announced
// to conversation c, guaranteeing at-most-once delivery even across session
// resets (primary key is the pair, not the session id).
type ConversationNotification struct {
	ConversationID string    `json:"conversation_id"`
	WorkerID       string    `json:"worker_id"`
	NotifiedAt     time.Time `json:"notified_at"`
}
