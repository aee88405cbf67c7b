// Package duty is the duty scheduler C5: self-healing, fixed-time-of-day
// scheduling of Chief's own in-context work (memory consolidation, morning
// prep). Duties interrupt Chief's eternal conversation via force reset,
// run blocking, and leave no next_run state of their own — due-ness is
// always recomputed from schedule_time plus last_run.
//
// Grounded on _examples/original_source/.engine/src/loops/duty_scheduler.py.
package duty

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexus-chief/chief/internal/eventbus"
	"github.com/nexus-chief/chief/internal/sessionmgr"
	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/pkg/models"
)

// PollInterval is how often the scheduler checks for due duties, matching
// the original implementation's 30-second cadence.
const PollInterval = 30 * time.Second

// WarningDelay is how long the scheduler waits after warning a running
// Chief before force-killing it, giving Chief time to save state.
const WarningDelay = 2 * time.Minute

// Clock abstracts time.Now (in the configured local zone) for tests.
type Clock func() time.Time

// Scheduler runs duties due against schedule_time, self-healing across
// restarts and missed wall-clock windows.
type Scheduler struct {
	store    *storage.Store
	sessions *sessionmgr.Manager
	bus      *eventbus.Bus
	log      *slog.Logger
	now      Clock
	location *time.Location

	runningSlug string
}

// Config wires a Scheduler's dependencies.
type Config struct {
	Store    *storage.Store
	Sessions *sessionmgr.Manager
	Bus      *eventbus.Bus
	Location *time.Location // defaults to UTC
	Now      Clock          // defaults to time.Now
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
	return &Scheduler{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		bus:      cfg.Bus,
		log:      log.With("component", "duty"),
		now:      now,
		location: loc,
	}
}

// Gap describes how far behind schedule a duty has fallen.
type Gap struct {
	Days    int
	LastRun *time.Time
}

// calculateGap mirrors the Python _calculate_gap: a non-negative count
// of whole days between the most recently expected scheduled occurrence
// and the duty's last successful run.
func (s *Scheduler) calculateGap(d *models.Duty) Gap {
	nowLocal := s.now().In(s.location)
	hour, minute := parseScheduleTime(d.ScheduleTime)
	todayScheduled := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), hour, minute, 0, 0, s.location)

	if d.LastRun == nil {
		return Gap{Days: 999}
	}
	lastRunLocal := d.LastRun.In(s.location)

	var expectedDate time.Time
	if !nowLocal.Before(todayScheduled) {
		expectedDate = todayScheduled
	} else {
		expectedDate = todayScheduled.AddDate(0, 0, -1)
	}

	gapDays := int(dateOnly(expectedDate).Sub(dateOnly(lastRunLocal)).Hours() / 24)
	if gapDays < 0 {
		gapDays = 0
	}
	return Gap{Days: gapDays, LastRun: d.LastRun}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseScheduleTime(hhmm string) (hour, minute int) {
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		return 6, 0
	}
	return hour, minute
}

// ShouldRun reports whether duty d is due right now: the scheduled time of
// day has passed today, and either it has never run or its last run
// predates today's scheduled moment.
func (s *Scheduler) ShouldRun(d *models.Duty) bool {
	nowLocal := s.now().In(s.location)
	hour, minute := parseScheduleTime(d.ScheduleTime)
	todayScheduled := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), hour, minute, 0, 0, s.location)

	if nowLocal.Before(todayScheduled) {
		return false
	}
	if d.LastRun == nil {
		return true
	}
	return d.LastRun.In(s.location).Before(todayScheduled)
}

// Run polls once for due duties and executes the first one found,
// matching the Python "only execute one at a time" behavior — the next
// poll picks up whichever duty is still due.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runningSlug != "" {
		return nil
	}
	duties, err := s.store.ListDuties(ctx)
	if err != nil {
		return err
	}
	for _, d := range duties {
		if s.ShouldRun(d) {
			gap := s.calculateGap(d)
			s.executeDuty(ctx, d, gap.Days > 0, gap)
			return nil
		}
	}
	return nil
}

// RunSlug executes the named duty immediately regardless of ShouldRun,
// for manual invocation (e.g. the `chief duty run <slug>` CLI command).
func (s *Scheduler) RunSlug(ctx context.Context, slug string) error {
	d, err := s.store.GetDutyBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("duty run: %w", err)
	}
	gap := s.calculateGap(d)
	s.executeDuty(ctx, d, gap.Days > 0, gap)
	return nil
}

// CatchUp runs once at startup, executing any duty whose gap indicates it
// was missed while the process was down.
func (s *Scheduler) CatchUp(ctx context.Context) error {
	duties, err := s.store.ListDuties(ctx)
	if err != nil {
		return err
	}
	for _, d := range duties {
		if !s.ShouldRun(d) {
			continue
		}
		gap := s.calculateGap(d)
		if gap.Days <= 0 {
			continue
		}
		s.log.Warn("duty catch-up", "duty", d.Slug, "gap_days", gap.Days)
		s.executeDuty(ctx, d, true, gap)
	}
	return nil
}

func newExecutionID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

func (s *Scheduler) executeDuty(ctx context.Context, d *models.Duty, catchUp bool, gap Gap) {
	s.runningSlug = d.Slug
	defer func() { s.runningSlug = "" }()

	execID := newExecutionID()
	exec := &models.DutyExecution{
		ID:        execID,
		DutySlug:  d.Slug,
		StartedAt: s.now(),
		Status:    models.ExecutionRunning,
		CatchUp:   catchUp,
		GapDays:   gap.Days,
	}
	if err := s.store.CreateDutyExecution(ctx, exec); err != nil {
		s.log.Error("record duty execution failed", "duty", d.Slug, "error", err)
		return
	}

	initialTask := s.buildPrompt(d, catchUp, gap)

	success := s.executeWithReset(ctx, d, execID, initialTask)

	status := models.ExecutionCompleted
	if !success {
		status = models.ExecutionFailed
	}
	_ = s.store.RecordDutyRun(ctx, d.Slug, timeToStr(s.now()), status)
	_ = s.store.CompleteDutyExecution(ctx, execID, status, "", "", timeToStr(s.now()))
	s.bus.Publish(eventbus.TopicDutyCompleted, map[string]any{"slug": d.Slug, "status": status})
}

func (s *Scheduler) buildPrompt(d *models.Duty, catchUp bool, gap Gap) string {
	if catchUp && gap.Days > 0 {
		lastRun := "never"
		if gap.LastRun != nil {
			lastRun = gap.LastRun.Format(time.RFC3339)
		}
		return fmt.Sprintf("[DUTY - CATCH-UP MODE]\n\nDuty: %s\nLast ran: %s (%d days ago)\nThe system was offline; those days cannot be recovered.\n\nRead %s for instructions. Adapt to catch-up mode as described there.",
			d.Name, lastRun, gap.Days, d.PromptFile)
	}
	return fmt.Sprintf("[DUTY]\n\nDuty: %s\nRead %s for instructions.", d.Name, d.PromptFile)
}

// executeWithReset force-resets Chief (warning first if it is currently
// running) and polls every 10 seconds, up to the duty's timeout, until the
// new Chief session ends; it reports success only for an exit end reason.
func (s *Scheduler) executeWithReset(ctx context.Context, d *models.Duty, execID, initialTask string) bool {
	warningSent := s.sessions.SendToChief(ctx, fmt.Sprintf("[SYSTEM WARNING] A scheduled duty (%s) requires Chief to reset in 2 minutes. Save any in-progress state now.", d.Name))
	if warningSent {
		select {
		case <-time.After(WarningDelay):
		case <-ctx.Done():
			return false
		}
	}

	result := s.sessions.ResetChief(ctx, "")
	if !result.Success() {
		s.log.Error("duty chief reset failed", "duty", d.Slug, "error", result.Error)
		return false
	}
	if err := s.sessions.SendMessage(ctx, result.Session.ID, initialTask); err != nil {
		s.log.Error("duty prompt injection failed", "duty", d.Slug, "error", err)
	}

	deadline := s.now().Add(time.Duration(d.TimeoutMinutes) * time.Minute)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Second):
		}
		if s.now().After(deadline) {
			s.log.Warn("duty timed out", "duty", d.Slug, "timeout_minutes", d.TimeoutMinutes)
			return false
		}
		sess, err := s.sessions.GetSession(ctx, result.Session.ID)
		if err == nil && !sess.Active() {
			return sess.EndReason == models.EndReasonExit
		}
	}
}

func timeToStr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
