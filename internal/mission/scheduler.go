// Package mission is the mission scheduler C6: spawns specialist sessions
// for due missions (time-of-day, weekday-set, or 5-field cron schedules),
// tracks their execution, and runs Chief's calendar-aware heartbeat loop.
//
// Grounded on _examples/original_source/.engine/src/loops/scheduler.py
// (MissionScheduler), generalizing its Pacific-only wall clock to an
// injected location and its Python calendar lookup to internal/channels'
// CalendarAdapter interface. Cron-type schedules use
// github.com/robfig/cron/v3 directly (see DESIGN.md for why the teacher's
// internal/cron package was not reused).
package mission

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexus-chief/chief/internal/channels"
	"github.com/nexus-chief/chief/internal/eventbus"
	"github.com/nexus-chief/chief/internal/sessionmgr"
	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/pkg/models"
)

// PollInterval matches the original 30-second mission/heartbeat cadence.
const PollInterval = 30 * time.Second

// HeartbeatInterval is the minimum gap between HEARTBEAT-type wakes.
const HeartbeatInterval = 15 * time.Minute

// Active hours during which the heartbeat loop is allowed to wake Chief.
const (
	HeartbeatStartHour = 7
	HeartbeatEndHour   = 23
)

// FocusKeywords mark a calendar event as a focus block that suppresses
// wakes entirely while it is in progress.
var FocusKeywords = []string{"DS&A", "Focus", "Leetcode", "Recovery", "Interview", "Mock"}

const (
	preEventMinMinutes  = 5
	preEventMaxMinutes  = 10
	postEventMaxMinutes = 5
)

// WakeType classifies a heartbeat wake per the calendar-proximity rules.
type WakeType string

const (
	WakeSuppress  WakeType = "SUPPRESS"
	WakePreEvent  WakeType = "PRE_EVENT"
	WakePostEvent WakeType = "POST_EVENT"
	WakeHeartbeat WakeType = "HEARTBEAT"
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// Scheduler dispatches due missions and runs Chief's heartbeat loop.
type Scheduler struct {
	store    *storage.Store
	sessions *sessionmgr.Manager
	bus      *eventbus.Bus
	calendar channels.CalendarAdapter
	log      *slog.Logger
	now      Clock
	location *time.Location

	runningExecutionID string
	lastHeartbeat       time.Time
	lastPreEventAlert    string
	lastPostEventAlert   string
}

// Config wires a Scheduler's dependencies.
type Config struct {
	Store    *storage.Store
	Sessions *sessionmgr.Manager
	Bus      *eventbus.Bus
	Calendar channels.CalendarAdapter // defaults to channels.NoopCalendar{}
	Location *time.Location
	Now      Clock
}

// New builds a Scheduler.
func New(cfg Config, log *slog.Logger) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cal := cfg.Calendar
	if cal == nil {
		cal = channels.NoopCalendar{}
	}
	return &Scheduler{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		bus:      cfg.Bus,
		calendar: cal,
		log:      log.With("component", "mission"),
		now:      now,
		location: loc,
	}
}

func newExecutionID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// ComputeNextRun returns the next UTC dispatch time for a mission's
// schedule, evaluated relative to after (normally "now").
func (s *Scheduler) ComputeNextRun(m *models.Mission, after time.Time) (*time.Time, error) {
	switch m.ScheduleType {
	case models.ScheduleNone:
		return nil, nil
	case models.ScheduleCron:
		sched, err := cron.ParseStandard(m.ScheduleCron)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", m.ScheduleCron, err)
		}
		next := sched.Next(after.In(s.location))
		nextUTC := next.UTC()
		return &nextUTC, nil
	case models.ScheduleTime:
		return s.nextTimeOfDay(m, after)
	default:
		return nil, fmt.Errorf("unknown schedule type %q", m.ScheduleType)
	}
}

func (s *Scheduler) nextTimeOfDay(m *models.Mission, after time.Time) (*time.Time, error) {
	local := after.In(s.location)
	hour, minute := parseHHMM(m.ScheduleTime)

	allowedDays := weekdaySet(m.ScheduleDays)

	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, s.location)
	for i := 0; i < 8; i++ {
		day := candidate.AddDate(0, 0, i)
		if !local.Before(candidate) && i == 0 {
			// today's slot already passed; keep scanning forward
		}
		slot := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, s.location)
		if slot.Before(local) || slot.Equal(local) {
			continue
		}
		if len(allowedDays) > 0 && !allowedDays[models.Weekday((int(slot.Weekday())+6)%7)] {
			continue
		}
		nextUTC := slot.UTC()
		return &nextUTC, nil
	}
	return nil, fmt.Errorf("no eligible weekday found for mission %s within a week", m.Slug)
}

func weekdaySet(days []models.Weekday) map[models.Weekday]bool {
	if len(days) == 0 {
		return nil
	}
	set := make(map[models.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}

func parseHHMM(hhmm string) (hour, minute int) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	fmt.Sscanf(parts[0], "%d", &hour)
	fmt.Sscanf(parts[1], "%d", &minute)
	return
}

// CheckAndDispatch executes at most one due mission per call, matching the
// original "only execute one at a time per tick" behavior.
func (s *Scheduler) CheckAndDispatch(ctx context.Context) error {
	if s.runningExecutionID != "" {
		return nil
	}
	due, err := s.store.ListDueMissions(ctx, timeToStr(s.now()))
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}
	return s.dispatch(ctx, due[0])
}

func (s *Scheduler) dispatch(ctx context.Context, m *models.Mission) error {
	execID := newExecutionID()
	s.runningExecutionID = execID
	defer func() { s.runningExecutionID = "" }()

	exec := &models.MissionExecution{
		ID:        execID,
		MissionID: m.ID,
		Slug:      m.Slug,
		StartedAt: s.now(),
		Status:    models.ExecutionRunning,
	}
	if err := s.store.CreateMissionExecution(ctx, exec); err != nil {
		return fmt.Errorf("record mission execution: %w", err)
	}

	prompt := m.PromptInline
	if prompt == "" && m.PromptFile != "" {
		prompt = fmt.Sprintf("Read %s for instructions.", m.PromptFile)
	}

	s.bus.Publish(eventbus.TopicMissionStarted, map[string]any{"slug": m.Slug, "execution_id": execID})

	result := s.sessions.Spawn(ctx, sessionmgr.SpawnRequest{
		Role:               m.Role,
		Mode:               models.ModeMission,
		Description:        m.Name,
		InitialTask:        prompt,
		MissionExecutionID: execID,
	})

	status := models.ExecutionRunning
	errMsg := ""
	if !result.Success() {
		status = models.ExecutionFailed
		errMsg = result.Error
	}

	if m.Recurring() {
		next, err := s.ComputeNextRun(m, s.now())
		if err != nil {
			s.log.Warn("compute next run failed", "mission", m.Slug, "error", err)
		} else {
			var nextStr *string
			if next != nil {
				v := timeToStr(*next)
				nextStr = &v
			}
			_ = s.store.UpdateMissionNextRun(ctx, m.ID, nextStr)
		}
	} else {
		_ = s.store.UpdateMissionNextRun(ctx, m.ID, nil)
	}
	_ = s.store.RecordMissionRun(ctx, m.ID, timeToStr(s.now()), status)

	if status == models.ExecutionFailed {
		_ = s.store.CompleteMissionExecution(ctx, execID, status, "", errMsg, timeToStr(s.now()), 0)
		s.bus.Publish(eventbus.TopicMissionFinished, map[string]any{"slug": m.Slug, "status": status})
		return nil
	}

	_ = result // completion is recorded by sessionmgr.CleanupOrphanMissionExecutions once the spawned session ends, from that session's end reason.
	return nil
}

func timeToStr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
