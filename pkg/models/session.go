// Package models holds the plain data structures shared across chief's
// storage, session manager, schedulers and stream layers. Structs carry no
// behavior beyond small derived helpers; persistence lives in internal/storage
// and internal/sessionmgr.
package models

import "time"

// Role identifies the kind of agent a session runs.
type Role string

const (
	RoleChief      Role = "chief"
	RoleBuilder    Role = "builder"
	RoleDeepWork   Role = "deep_work"
	RoleProject    Role = "project"
	RoleIdea       Role = "idea"
	RoleWriter     Role = "writer"
	RoleResearcher Role = "researcher"
	RoleCurator    Role = "curator"
	RoleWorker     Role = "worker"
)

// Mode identifies the operating mode a session was spawned with.
type Mode string

const (
	ModeInteractive   Mode = "interactive"
	ModeBackground    Mode = "background"
	ModeMission       Mode = "mission"
	ModePreparation   Mode = "preparation"
	ModeImplementation Mode = "implementation"
	ModeVerification  Mode = "verification"
)

// SpecialistWorkspace reports whether a mode requires its own Desktop
// workspace folder (plan.md/progress.md and an optional copied spec).
func (m Mode) SpecialistWorkspace() bool {
	switch m {
	case ModePreparation, ModeImplementation, ModeVerification:
		return true
	default:
		return false
	}
}

// State is a session's current liveness/activity state.
type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateToolActive State = "tool_active"
	StateEnded      State = "ended"
)

// EndReason records why a session was terminated. The zero value means the
// session is still running.
type EndReason string

const (
	EndReasonExit          EndReason = "exit"
	EndReasonForceReset    EndReason = "force_reset"
	EndReasonDutyReset     EndReason = "duty_reset"
	EndReasonOrphanCleanup EndReason = "orphan_cleanup"
	EndReasonTimeout       EndReason = "timeout"
	EndReasonCrash         EndReason = "crash"
	EndReasonError         EndReason = "error"
)

// ChiefConversationID is the literal, eternal conversation id for the Chief.
const ChiefConversationID = "chief"

// Session is a single agent process instance running in one multiplexer
// window.
type Session struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`

	Role        Role   `json:"role"`
	Mode        Mode   `json:"mode"`
	WindowName  string `json:"window_name"`
	PaneID      string `json:"pane_id,omitempty"`
	WorkingDir  string `json:"working_dir"`
	Transcript  string `json:"transcript_path,omitempty"`
	Description string `json:"description,omitempty"`
	StatusText  string `json:"status_text,omitempty"`
	State       State  `json:"state"`

	MissionExecutionID string `json:"mission_execution_id,omitempty"`
	SpecPath           string `json:"spec_path,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	EndReason  EndReason  `json:"end_reason,omitempty"`
}

// Active reports whether the session has not yet ended.
func (s *Session) Active() bool {
	return s != nil && s.EndedAt == nil
}

// ConversationSummary is the derived, non-stored view of one logical
// conversation: the sequence of sessions sharing a conversation_id.
type ConversationSummary struct {
	ConversationID  string     `json:"conversation_id"`
	SessionCount    int        `json:"session_count"`
	FirstStartedAt  time.Time  `json:"first_started_at"`
	LastStartedAt   time.Time  `json:"last_started_at"`
	ActiveSessionID string     `json:"active_session_id,omitempty"`
}

// HandoffReason identifies why a session cycled to its successor.
type HandoffReason string

const (
	HandoffReasonContextLow     HandoffReason = "context_low"
	HandoffReasonChiefCycle     HandoffReason = "chief_cycle"
	HandoffReasonDutyReset      HandoffReason = "duty_reset"
	HandoffReasonForceReset     HandoffReason = "force_reset"
	HandoffReasonMissionExecute HandoffReason = "mission_execution"
)

// HandoffStatus tracks progress of a handoff in flight.
type HandoffStatus string

const (
	HandoffExecuting HandoffStatus = "executing"
	HandoffComplete  HandoffStatus = "complete"
	HandoffFailed    HandoffStatus = "failed"
)

// Handoff is an explicit record of one session cycling to its successor.
type Handoff struct {
	ID                string        `json:"id"`
	PredecessorID     string        `json:"predecessor_session_id"`
	Role              Role          `json:"role"`
	Mode              Mode          `json:"mode"`
	Pane              string        `json:"pane,omitempty"`
	DocumentPath      string        `json:"handoff_document_path,omitempty"`
	Reason            HandoffReason `json:"reason"`
	Status            HandoffStatus `json:"status"`
	RequestedAt       time.Time     `json:"requested_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	NewSessionID      string        `json:"new_session_id,omitempty"`
	Error             string        `json:"error,omitempty"`
}
