package storage

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

func TestMission_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)

	m := &models.Mission{
		ID:             "m-1",
		Slug:           "morning-digest",
		Name:           "Morning digest",
		Source:         models.MissionSourceCoreDefault,
		ScheduleType:   models.ScheduleTime,
		ScheduleTime:   "09:00",
		ScheduleDays:   []models.Weekday{models.Monday, models.Wednesday, models.Friday},
		TimeoutMinutes: 30,
		Role:           models.RoleChief,
		Mode:           models.ModeMission,
		Enabled:        true,
	}
	if err := store.CreateMission(ctx, m); err != nil {
		t.Fatalf("CreateMission: %v", err)
	}

	got, err := store.GetMissionBySlug(ctx, "morning-digest")
	if err != nil {
		t.Fatalf("GetMissionBySlug: %v", err)
	}
	if got.Name != m.Name || got.ScheduleType != models.ScheduleTime || got.ScheduleTime != "09:00" {
		t.Errorf("GetMissionBySlug round-trip mismatch: %+v", got)
	}
	if len(got.ScheduleDays) != 3 || got.ScheduleDays[1] != models.Wednesday {
		t.Errorf("ScheduleDays round-trip = %v", got.ScheduleDays)
	}
	if !got.Enabled {
		t.Error("Enabled round-trip lost true value")
	}
}

func TestMission_GetMissionBySlug_NotFound(t *testing.T) {
	store := newMemStore(t)
	if _, err := store.GetMissionBySlug(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("GetMissionBySlug(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMission_ListDueMissions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := &models.Mission{ID: "m-due", Slug: "due", Name: "Due", Source: models.MissionSourceUser, ScheduleType: models.ScheduleCron, ScheduleCron: "0 9 * * *", Role: models.RoleChief, Mode: models.ModeMission, Enabled: true, NextRun: &past}
	notDue := &models.Mission{ID: "m-future", Slug: "future", Name: "Future", Source: models.MissionSourceUser, ScheduleType: models.ScheduleCron, ScheduleCron: "0 9 * * *", Role: models.RoleChief, Mode: models.ModeMission, Enabled: true, NextRun: &future}
	disabled := &models.Mission{ID: "m-disabled", Slug: "disabled", Name: "Disabled", Source: models.MissionSourceUser, ScheduleType: models.ScheduleCron, ScheduleCron: "0 9 * * *", Role: models.RoleChief, Mode: models.ModeMission, Enabled: false, NextRun: &past}
	for _, m := range []*models.Mission{due, notDue, disabled} {
		if err := store.CreateMission(ctx, m); err != nil {
			t.Fatalf("CreateMission(%s): %v", m.Slug, err)
		}
	}

	got, err := store.ListDueMissions(ctx, timeToStr(now))
	if err != nil {
		t.Fatalf("ListDueMissions: %v", err)
	}
	if len(got) != 1 || got[0].Slug != "due" {
		t.Fatalf("ListDueMissions = %v, want only 'due'", got)
	}
}

func TestMission_UpdateNextRunAndRecordRun(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	m := &models.Mission{ID: "m-1", Slug: "s", Name: "S", Source: models.MissionSourceUser, ScheduleType: models.ScheduleCron, ScheduleCron: "0 9 * * *", Role: models.RoleChief, Mode: models.ModeMission, Enabled: true}
	if err := store.CreateMission(ctx, m); err != nil {
		t.Fatalf("CreateMission: %v", err)
	}

	next := timeToStr(time.Now().Add(24 * time.Hour))
	if err := store.UpdateMissionNextRun(ctx, "m-1", &next); err != nil {
		t.Fatalf("UpdateMissionNextRun: %v", err)
	}
	if err := store.RecordMissionRun(ctx, "m-1", timeToStr(time.Now()), models.ExecutionCompleted); err != nil {
		t.Fatalf("RecordMissionRun: %v", err)
	}

	got, err := store.GetMissionBySlug(ctx, "s")
	if err != nil {
		t.Fatalf("GetMissionBySlug: %v", err)
	}
	if got.NextRun == nil {
		t.Fatal("NextRun still nil after UpdateMissionNextRun")
	}
	if got.LastStatus != models.ExecutionCompleted {
		t.Errorf("LastStatus = %q, want completed", got.LastStatus)
	}
}

func TestMission_OrphanMissionExecutions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	sess := &models.Session{ID: "sess-1", ConversationID: "conv-a", Role: models.RoleWorker, Mode: models.ModeMission, WindowName: "w", WorkingDir: "/tmp", State: models.StateEnded, CreatedAt: now, LastSeenAt: now}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := store.EndSession(ctx, "sess-1", models.EndReasonCrash, now); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	exec := &models.MissionExecution{ID: "exec-1", MissionID: "m-1", Slug: "s", StartedAt: now, Status: models.ExecutionRunning, SessionID: "sess-1"}
	if err := store.CreateMissionExecution(ctx, exec); err != nil {
		t.Fatalf("CreateMissionExecution: %v", err)
	}

	orphans, err := store.OrphanMissionExecutions(ctx)
	if err != nil {
		t.Fatalf("OrphanMissionExecutions: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != "exec-1" {
		t.Fatalf("OrphanMissionExecutions = %v, want [exec-1]", orphans)
	}
}

func TestDuty_ListEnabledOnly(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)

	enabled := &models.Duty{ID: "d-1", Slug: "morning-prep", Name: "Morning prep", ScheduleTime: "06:00", TimeoutMinutes: 30, Enabled: true}
	disabled := &models.Duty{ID: "d-2", Slug: "evening-wrap", Name: "Evening wrap", ScheduleTime: "20:00", TimeoutMinutes: 30, Enabled: false}
	if err := insertDuty(ctx, store, enabled); err != nil {
		t.Fatalf("insertDuty(enabled): %v", err)
	}
	if err := insertDuty(ctx, store, disabled); err != nil {
		t.Fatalf("insertDuty(disabled): %v", err)
	}

	got, err := store.ListDuties(ctx)
	if err != nil {
		t.Fatalf("ListDuties: %v", err)
	}
	if len(got) != 1 || got[0].Slug != "morning-prep" {
		t.Fatalf("ListDuties = %v, want only morning-prep", got)
	}
}

func TestDuty_GetBySlugAndRecordRun(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	d := &models.Duty{ID: "d-1", Slug: "morning-prep", Name: "Morning prep", ScheduleTime: "06:00", TimeoutMinutes: 30, Enabled: true}
	if err := insertDuty(ctx, store, d); err != nil {
		t.Fatalf("insertDuty: %v", err)
	}

	if err := store.RecordDutyRun(ctx, "morning-prep", timeToStr(time.Now()), models.ExecutionCompleted); err != nil {
		t.Fatalf("RecordDutyRun: %v", err)
	}

	got, err := store.GetDutyBySlug(ctx, "morning-prep")
	if err != nil {
		t.Fatalf("GetDutyBySlug: %v", err)
	}
	if got.LastRun == nil || got.LastStatus != models.ExecutionCompleted {
		t.Errorf("GetDutyBySlug after RecordDutyRun = %+v", got)
	}
}

func TestDuty_GetBySlug_NotFound(t *testing.T) {
	store := newMemStore(t)
	if _, err := store.GetDutyBySlug(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("GetDutyBySlug(missing) error = %v, want ErrNotFound", err)
	}
}

// insertDuty writes a duty row directly; there is no exported CreateDuty
// because duties are seeded from config, not created at runtime.
func insertDuty(ctx context.Context, s *Store, d *models.Duty) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duties (id, slug, name, description, prompt_file, schedule_time, timeout_minutes, enabled, last_run, last_status)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Slug, d.Name, nullStr(d.Description), nullStr(d.PromptFile), d.ScheduleTime, d.TimeoutMinutes, boolToInt(d.Enabled), nullableTimeToStr(d.LastRun), nullStr(string(d.LastStatus)))
	return err
}
