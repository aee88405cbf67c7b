package duty

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func schedulerAt(t *testing.T, now time.Time) *Scheduler {
	t.Helper()
	return New(Config{Location: time.UTC, Now: func() time.Time { return now }}, discardLogger())
}

func TestShouldRun_NotYetScheduledToday(t *testing.T) {
	now := time.Date(2026, 7, 31, 5, 0, 0, 0, time.UTC)
	s := schedulerAt(t, now)
	d := &models.Duty{ScheduleTime: "06:00"}

	if s.ShouldRun(d) {
		t.Error("ShouldRun = true before today's scheduled time has passed")
	}
}

func TestShouldRun_NeverRun(t *testing.T) {
	now := time.Date(2026, 7, 31, 7, 0, 0, 0, time.UTC)
	s := schedulerAt(t, now)
	d := &models.Duty{ScheduleTime: "06:00"}

	if !s.ShouldRun(d) {
		t.Error("ShouldRun = false for a duty that has never run, past its scheduled time")
	}
}

func TestShouldRun_AlreadyRanTodayAfterScheduledTime(t *testing.T) {
	now := time.Date(2026, 7, 31, 7, 0, 0, 0, time.UTC)
	lastRun := time.Date(2026, 7, 31, 6, 30, 0, 0, time.UTC)
	s := schedulerAt(t, now)
	d := &models.Duty{ScheduleTime: "06:00", LastRun: &lastRun}

	if s.ShouldRun(d) {
		t.Error("ShouldRun = true for a duty already run after today's scheduled moment")
	}
}

func TestCalculateGap_NeverRunIsAlwaysOverdue(t *testing.T) {
	now := time.Date(2026, 7, 31, 7, 0, 0, 0, time.UTC)
	s := schedulerAt(t, now)
	d := &models.Duty{ScheduleTime: "06:00"}

	if gap := s.calculateGap(d); gap.Days != 999 {
		t.Errorf("calculateGap(never run).Days = %d, want 999", gap.Days)
	}
}

func TestCalculateGap_TwoMissedDays(t *testing.T) {
	now := time.Date(2026, 7, 31, 7, 0, 0, 0, time.UTC)
	lastRun := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)
	s := schedulerAt(t, now)
	d := &models.Duty{ScheduleTime: "06:00", LastRun: &lastRun}

	if gap := s.calculateGap(d); gap.Days != 2 {
		t.Errorf("calculateGap.Days = %d, want 2", gap.Days)
	}
}

func TestCalculateGap_RanOnExpectedDayIsZero(t *testing.T) {
	now := time.Date(2026, 7, 31, 7, 0, 0, 0, time.UTC)
	lastRun := time.Date(2026, 7, 31, 6, 5, 0, 0, time.UTC)
	s := schedulerAt(t, now)
	d := &models.Duty{ScheduleTime: "06:00", LastRun: &lastRun}

	if gap := s.calculateGap(d); gap.Days != 0 {
		t.Errorf("calculateGap.Days = %d, want 0", gap.Days)
	}
}

func TestBuildPrompt_CatchUpVsNormal(t *testing.T) {
	s := schedulerAt(t, time.Date(2026, 7, 31, 7, 0, 0, 0, time.UTC))
	d := &models.Duty{Name: "morning-prep", PromptFile: "duties/morning-prep.md"}

	normal := s.buildPrompt(d, false, Gap{})
	if len(normal) == 0 {
		t.Fatal("buildPrompt returned empty string")
	}

	lastRun := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)
	catchUp := s.buildPrompt(d, true, Gap{Days: 2, LastRun: &lastRun})
	if catchUp == normal {
		t.Error("catch-up prompt should differ from the normal prompt")
	}
}
