// Package convstream is the conversation stream C8: a server-sent-event
// multiplexer scoped to a conversation_id rather than a single session, so
// a consumer never has to reconnect across a handoff or mode transition.
//
// Grounded on internal/mcp/transport_http.go's events/stopChan/wg
// goroutine-loop shape, generalized from a single MCP server connection to
// a transcript tailer plus periodic activity/context/meta/task polling.
package convstream

import "time"

// EventType names one of the SSE event kinds this package emits.
type EventType string

const (
	EventConnected        EventType = "connected"
	EventTranscript        EventType = "transcript"
	EventActivity          EventType = "activity"
	EventContextWarning    EventType = "context_warning"
	EventTasks             EventType = "tasks"
	EventSessionMeta       EventType = "session_meta"
	EventSessionBoundary   EventType = "session_boundary"
	EventConversationEnded EventType = "conversation_ended"
)

// Event is one item delivered to a stream consumer.
type Event struct {
	Type           EventType  `json:"type"`
	Timestamp      time.Time  `json:"timestamp"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Transcript     any        `json:"event,omitempty"`
	Activity       *Activity       `json:"data,omitempty"`
	Warning        *ContextWarning `json:"warning,omitempty"`
	Meta           *SessionMeta    `json:"meta,omitempty"`
	Boundary       *Boundary  `json:"boundary,omitempty"`
	Tasks          []Task     `json:"items,omitempty"`
	OldSessionID   string     `json:"old_session_id,omitempty"`
	NewSessionID   string     `json:"new_session_id,omitempty"`
	LastSessionID  string     `json:"last_session_id,omitempty"`
}

// Activity is the { is_thinking, active_task, ... } shape polled off the
// tmux pane every StatusInterval.
type Activity struct {
	IsThinking bool    `json:"is_thinking"`
	ActiveTask string  `json:"active_task,omitempty"`
	LastTask   string  `json:"last_task,omitempty"`
	Elapsed    string  `json:"elapsed_time,omitempty"`
	TokenCount string  `json:"token_count,omitempty"`
}

// ContextWarning mirrors spec.md §4.8's context_warning payload.
type ContextWarning struct {
	PercentRemaining int  `json:"percent_remaining"`
	PercentUsed      int  `json:"percent_used"`
	ShouldWarn       bool `json:"should_warn"`
	ShouldForceReset bool `json:"should_force_reset"`
}

// SessionMeta is the { model, cost_usd } shape.
type SessionMeta struct {
	Model  string  `json:"model,omitempty"`
	CostUSD float64 `json:"cost_usd"`
}

// BoundaryType classifies why the watched session changed.
type BoundaryType string

const (
	BoundaryReset          BoundaryType = "reset"
	BoundarySummarizer     BoundaryType = "summarizer"
	BoundaryModeTransition BoundaryType = "mode_transition"
)

// Boundary describes one session_boundary event's payload.
type Boundary struct {
	OldSessionID string
	NewSessionID string
	Type         BoundaryType
	PrevMode     string
	Mode         string
	NewRole      string
	NewMode      string
}

// Task is one entry of the agent's internal todo list snapshot.
type Task struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Subject     string   `json:"subject,omitempty"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	ActiveForm  string   `json:"activeForm,omitempty"`
	BlockedBy   []string `json:"blockedBy,omitempty"`
}
