package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nexus-chief/chief/pkg/models"
)

const missionColumns = `id, slug, name, description, source, owning_app_slug, prompt_file, prompt_inline,
	schedule_type, schedule_time, schedule_days, schedule_cron, trigger_type, trigger_config,
	timeout_minutes, role, mode, enabled, next_run, last_run, last_status`

func scanMission(scanner interface{ Scan(...any) error }) (*models.Mission, error) {
	var (
		m                                                                  models.Mission
		description, owningApp, promptFile, promptInline                  sql.NullString
		scheduleTime, scheduleDays, scheduleCron, triggerType, triggerCfg  sql.NullString
		nextRun, lastRun, lastStatus                                       sql.NullString
		source, scheduleType, role, mode                                  string
		enabled                                                           int
	)
	if err := scanner.Scan(
		&m.ID, &m.Slug, &m.Name, &description, &source, &owningApp, &promptFile, &promptInline,
		&scheduleType, &scheduleTime, &scheduleDays, &scheduleCron, &triggerType, &triggerCfg,
		&m.TimeoutMinutes, &role, &mode, &enabled, &nextRun, &lastRun, &lastStatus,
	); err != nil {
		return nil, err
	}
	m.Description = description.String
	m.Source = models.MissionSource(source)
	m.OwningApp = owningApp.String
	m.PromptFile = promptFile.String
	m.PromptInline = promptInline.String
	m.ScheduleType = models.ScheduleType(scheduleType)
	m.ScheduleTime = scheduleTime.String
	if scheduleDays.Valid && scheduleDays.String != "" {
		_ = json.Unmarshal([]byte(scheduleDays.String), &m.ScheduleDays)
	}
	m.ScheduleCron = scheduleCron.String
	m.TriggerType = models.TriggerType(triggerType.String)
	if triggerCfg.Valid && triggerCfg.String != "" {
		_ = json.Unmarshal([]byte(triggerCfg.String), &m.TriggerConfig)
	}
	m.Role = models.Role(role)
	m.Mode = models.Mode(mode)
	m.Enabled = enabled != 0
	if nextRun.Valid {
		t := strToTime(nextRun.String)
		m.NextRun = &t
	}
	if lastRun.Valid {
		t := strToTime(lastRun.String)
		m.LastRun = &t
	}
	m.LastStatus = models.ExecutionStatus(lastStatus.String)
	return &m, nil
}

func (s *Store) CreateMission(ctx context.Context, m *models.Mission) error {
	days, _ := json.Marshal(m.ScheduleDays)
	cfg, _ := json.Marshal(m.TriggerConfig)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO missions (id, slug, name, description, source, owning_app_slug, prompt_file, prompt_inline,
			schedule_type, schedule_time, schedule_days, schedule_cron, trigger_type, trigger_config,
			timeout_minutes, role, mode, enabled, next_run, last_run, last_status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Slug, m.Name, nullStr(m.Description), string(m.Source), nullStr(m.OwningApp), nullStr(m.PromptFile), nullStr(m.PromptInline),
		string(m.ScheduleType), nullStr(m.ScheduleTime), string(days), nullStr(m.ScheduleCron), nullStr(string(m.TriggerType)), nullStr(string(cfg)),
		m.TimeoutMinutes, string(m.Role), string(m.Mode), boolToInt(m.Enabled), nullableTimeToStr(m.NextRun), nullableTimeToStr(m.LastRun), nullStr(string(m.LastStatus)),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) GetMissionBySlug(ctx context.Context, slug string) (*models.Mission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE slug = ?`, slug)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *Store) ListMissions(ctx context.Context) ([]*models.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListDueMissions returns enabled missions whose next_run is at or before now.
func (s *Store) ListDueMissions(ctx context.Context, now string) ([]*models.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE enabled = 1 AND next_run IS NOT NULL AND next_run <= ? ORDER BY next_run`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMissionNextRun(ctx context.Context, id string, nextRun *string) error {
	var v sql.NullString
	if nextRun != nil {
		v = sql.NullString{String: *nextRun, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE missions SET next_run = ? WHERE id = ?`, v, id)
	return err
}

func (s *Store) RecordMissionRun(ctx context.Context, id, lastRun string, status models.ExecutionStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE missions SET last_run = ?, last_status = ? WHERE id = ?`, lastRun, string(status), id)
	return err
}

func (s *Store) CreateMissionExecution(ctx context.Context, e *models.MissionExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mission_executions (id, mission_id, slug, started_at, ended_at, status, session_id, output_summary, error, duration_secs)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.MissionID, e.Slug, timeToStr(e.StartedAt), nullableTimeToStr(e.EndedAt), string(e.Status), nullStr(e.SessionID), nullStr(e.OutputSummary), nullStr(e.Error), e.DurationSecs)
	return err
}

func (s *Store) CompleteMissionExecution(ctx context.Context, id string, status models.ExecutionStatus, summary, errMsg string, endedAt string, durationSecs float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE mission_executions SET status = ?, ended_at = ?, output_summary = ?, error = ?, duration_secs = ? WHERE id = ?`,
		string(status), endedAt, nullStr(summary), nullStr(errMsg), durationSecs, id)
	return err
}

// OrphanMissionExecutions returns executions still marked running whose
// session has ended, for cleanup_orphan_mission_executions. An execution
// with no session_id of its own is linked to the most recently created
// session whose mission_execution_id names it.
func (s *Store) OrphanMissionExecutions(ctx context.Context) ([]*models.MissionExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT me.id, me.mission_id, me.slug, me.started_at, me.ended_at, me.status, s.id, me.output_summary, me.error, me.duration_secs
		FROM mission_executions me
		JOIN sessions s ON s.id = COALESCE(me.session_id,
			(SELECT l.id FROM sessions l WHERE l.mission_execution_id = me.id ORDER BY l.created_at DESC LIMIT 1))
		WHERE me.status = 'running' AND s.ended_at IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.MissionExecution
	for rows.Next() {
		var (
			e                                           models.MissionExecution
			endedAt, sessionID, summary, errMsg         sql.NullString
			startedAt, status                           string
		)
		if err := rows.Scan(&e.ID, &e.MissionID, &e.Slug, &startedAt, &endedAt, &status, &sessionID, &summary, &errMsg, &e.DurationSecs); err != nil {
			return nil, err
		}
		e.StartedAt = strToTime(startedAt)
		e.EndedAt = strToNullableTime(endedAt)
		e.Status = models.ExecutionStatus(status)
		e.SessionID = sessionID.String
		e.OutputSummary = summary.String
		e.Error = errMsg.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

// --- Duties ---

const dutyColumns = `id, slug, name, description, prompt_file, schedule_time, timeout_minutes, enabled, last_run, last_status`

func scanDuty(scanner interface{ Scan(...any) error }) (*models.Duty, error) {
	var (
		d                                  models.Duty
		description, promptFile           sql.NullString
		lastRun, lastStatus               sql.NullString
		enabled                           int
	)
	if err := scanner.Scan(&d.ID, &d.Slug, &d.Name, &description, &promptFile, &d.ScheduleTime, &d.TimeoutMinutes, &enabled, &lastRun, &lastStatus); err != nil {
		return nil, err
	}
	d.Description = description.String
	d.PromptFile = promptFile.String
	d.Enabled = enabled != 0
	if lastRun.Valid {
		t := strToTime(lastRun.String)
		d.LastRun = &t
	}
	d.LastStatus = models.ExecutionStatus(lastStatus.String)
	return &d, nil
}

func (s *Store) ListDuties(ctx context.Context) ([]*models.Duty, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+dutyColumns+` FROM duties WHERE enabled = 1 ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Duty
	for rows.Next() {
		d, err := scanDuty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDutyBySlug(ctx context.Context, slug string) (*models.Duty, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dutyColumns+` FROM duties WHERE slug = ?`, slug)
	d, err := scanDuty(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *Store) RecordDutyRun(ctx context.Context, slug string, lastRun string, status models.ExecutionStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE duties SET last_run = ?, last_status = ? WHERE slug = ?`, lastRun, string(status), slug)
	return err
}

func (s *Store) CreateDutyExecution(ctx context.Context, e *models.DutyExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO duty_executions (id, duty_slug, started_at, ended_at, status, session_id, catch_up, gap_days, output_summary, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.DutySlug, timeToStr(e.StartedAt), nullableTimeToStr(e.EndedAt), string(e.Status), nullStr(e.SessionID), boolToInt(e.CatchUp), e.GapDays, nullStr(e.OutputSummary), nullStr(e.Error))
	return err
}

func (s *Store) CompleteDutyExecution(ctx context.Context, id string, status models.ExecutionStatus, summary, errMsg, endedAt string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE duty_executions SET status = ?, ended_at = ?, output_summary = ?, error = ? WHERE id = ?`,
		string(status), endedAt, nullStr(summary), nullStr(errMsg), id)
	return err
}
