package mission

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

func schedulerAt(t *testing.T) *Scheduler {
	t.Helper()
	return New(Config{Location: time.UTC}, discardLogger())
}

func TestComputeNextRun_ScheduleNone(t *testing.T) {
	s := schedulerAt(t)
	m := &models.Mission{ScheduleType: models.ScheduleNone}

	next, err := s.ComputeNextRun(m, time.Now())
	if err != nil {
		t.Fatalf("ComputeNextRun: %v", err)
	}
	if next != nil {
		t.Errorf("ComputeNextRun(none) = %v, want nil", next)
	}
}

func TestComputeNextRun_Cron(t *testing.T) {
	s := schedulerAt(t)
	m := &models.Mission{ScheduleType: models.ScheduleCron, ScheduleCron: "0 9 * * *"}
	after := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)

	next, err := s.ComputeNextRun(m, after)
	if err != nil {
		t.Fatalf("ComputeNextRun: %v", err)
	}
	want := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("ComputeNextRun(cron) = %v, want %v", next, want)
	}
}

func TestComputeNextRun_Cron_InvalidExpression(t *testing.T) {
	s := schedulerAt(t)
	m := &models.Mission{ScheduleType: models.ScheduleCron, ScheduleCron: "not a cron"}

	if _, err := s.ComputeNextRun(m, time.Now()); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestComputeNextRun_TimeOfDay_NextDayWhenPassed(t *testing.T) {
	s := schedulerAt(t)
	m := &models.Mission{ScheduleType: models.ScheduleTime, ScheduleTime: "09:00"}
	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC) // Friday, after 09:00

	next, err := s.ComputeNextRun(m, after)
	if err != nil {
		t.Fatalf("ComputeNextRun: %v", err)
	}
	want := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("ComputeNextRun(time-of-day, passed) = %v, want %v", next, want)
	}
}

func TestComputeNextRun_TimeOfDay_RestrictedToWeekdays(t *testing.T) {
	s := schedulerAt(t)
	// 2026-07-31 is a Friday; restrict to Monday only.
	m := &models.Mission{
		ScheduleType: models.ScheduleTime,
		ScheduleTime: "09:00",
		ScheduleDays: []models.Weekday{models.Monday},
	}
	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	next, err := s.ComputeNextRun(m, after)
	if err != nil {
		t.Fatalf("ComputeNextRun: %v", err)
	}
	if next.Weekday() != time.Monday {
		t.Errorf("ComputeNextRun(weekday-restricted) = %v, want a Monday", next)
	}
}
