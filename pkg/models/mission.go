package models

import "time"

// MissionSource identifies who owns a mission definition.
type MissionSource string

const (
	MissionSourceCoreDefault MissionSource = "core_default"
	MissionSourceCustomApp   MissionSource = "custom_app"
	MissionSourceUser        MissionSource = "user"
)

// ScheduleType identifies how a mission or duty is scheduled.
type ScheduleType string

const (
	ScheduleTime ScheduleType = "time"
	ScheduleCron ScheduleType = "cron"
	ScheduleNone ScheduleType = ""
)

// Weekday is a day index used by schedule_days: Monday is 0, Sunday is 6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// TriggerType identifies event-driven mission triggers.
type TriggerType string

const (
	TriggerNone  TriggerType = ""
	TriggerEvent TriggerType = "event"
)

// ExecutionStatus is the lifecycle state of one mission or duty run.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionTimeout   ExecutionStatus = "timeout"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// terminalStatusForEndReason maps a session's end reason to the terminal
// status an orphaned mission/duty execution linked to it should adopt.
// Grounded in spec.md §4.4 cleanup_orphan_mission_executions and §9 open
// question (2): only an explicit EndReasonTimeout maps to ExecutionTimeout;
// there is no independent timeout inference from wall-clock elapsed time.
func terminalStatusForEndReason(reason EndReason) ExecutionStatus {
	switch reason {
	case EndReasonExit:
		return ExecutionCompleted
	case EndReasonTimeout:
		return ExecutionTimeout
	case EndReasonCrash, EndReasonError:
		return ExecutionFailed
	default:
		return ExecutionCancelled
	}
}

// TerminalStatusForEndReason is the exported form used by the session
// manager's orphan-mission-execution cleanup.
func TerminalStatusForEndReason(reason EndReason) ExecutionStatus {
	return terminalStatusForEndReason(reason)
}

// Mission is a scheduled or triggered job that launches a specialist
// session. Role MUST NOT be RoleChief — Chief work is Duty work.
type Mission struct {
	ID          string        `json:"id"`
	Slug        string        `json:"slug"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Source      MissionSource `json:"source"`
	OwningApp   string        `json:"owning_app_slug,omitempty"`

	PromptFile   string `json:"prompt_file,omitempty"`
	PromptInline string `json:"prompt_inline,omitempty"`

	ScheduleType ScheduleType `json:"schedule_type"`
	ScheduleTime string       `json:"schedule_time,omitempty"` // HH:MM local
	ScheduleDays []Weekday    `json:"schedule_days,omitempty"`
	ScheduleCron string       `json:"schedule_cron,omitempty"`

	TriggerType   TriggerType    `json:"trigger_type,omitempty"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`

	TimeoutMinutes int  `json:"timeout_minutes"`
	Role           Role `json:"role"`
	Mode           Mode `json:"mode"`

	Enabled    bool            `json:"enabled"`
	NextRun    *time.Time      `json:"next_run,omitempty"` // UTC
	LastRun    *time.Time      `json:"last_run,omitempty"`
	LastStatus ExecutionStatus `json:"last_status,omitempty"`
}

// Recurring reports whether the mission should be rescheduled after it runs.
func (m *Mission) Recurring() bool {
	return m != nil && m.ScheduleType != ScheduleNone
}

// MissionExecution is a per-run record of one mission dispatch.
type MissionExecution struct {
	ID            string          `json:"id"`
	MissionID     string          `json:"mission_id"`
	Slug          string          `json:"slug"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	Status        ExecutionStatus `json:"status"`
	SessionID     string          `json:"session_id,omitempty"`
	OutputSummary string          `json:"output_summary,omitempty"`
	Error         string          `json:"error,omitempty"`
	DurationSecs  float64         `json:"duration_seconds,omitempty"`
}

// Duty has the same shape as Mission but is always Chief-targeted, always
// core-provided, never user-editable, and has no NextRun — due-ness is
// computed from LastRun + ScheduleTime on every check (self-healing).
type Duty struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	PromptFile     string `json:"prompt_file,omitempty"`
	ScheduleTime   string `json:"schedule_time"` // HH:MM local
	TimeoutMinutes int    `json:"timeout_minutes"`

	Enabled    bool            `json:"enabled"`
	LastRun    *time.Time      `json:"last_run,omitempty"`
	LastStatus ExecutionStatus `json:"last_status,omitempty"`
}

// DutyExecution is a per-run record of one duty dispatch.
type DutyExecution struct {
	ID            string          `json:"id"`
	DutySlug      string          `json:"duty_slug"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	Status        ExecutionStatus `json:"status"`
	SessionID     string          `json:"session_id,omitempty"`
	CatchUp       bool            `json:"catch_up"`
	GapDays       int             `json:"gap_days,omitempty"`
	OutputSummary string          `json:"output_summary,omitempty"`
	Error         string          `json:"error,omitempty"`
}
