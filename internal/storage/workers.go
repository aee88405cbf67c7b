package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nexus-chief/chief/pkg/models"
)

const workerColumns = `id, short_id, task_type, params, spawned_by_session, conversation_id, depends_on, execute_at,
	spawn_short_id, status, report_md, report_summary, live_output, attention_kind, attention_title,
	attention_domain, attention_data, severity, notify_after, clarification_session_id, clarification_answer,
	clarification_answered_at, has_dependent_children, completed_at, last_error, created_at`

func scanWorker(scanner interface{ Scan(...any) error }) (*models.Worker, error) {
	var (
		w                                                                      models.Worker
		params, dependsOn, executeAt, spawnShortID                            sql.NullString
		reportMD, reportSummary, liveOutput                                   sql.NullString
		attentionKind, attentionTitle, attentionDomain, attentionData         sql.NullString
		severity, notifyAfter                                                 sql.NullString
		clarSessionID, clarAnswer, clarAnsweredAt, completedAt, lastError     sql.NullString
		status, createdAt                                                     string
		hasDependentChildren                                                  int
	)
	if err := scanner.Scan(
		&w.ID, &w.ShortID, &w.TaskType, &params, &w.SpawnedBy, &w.ConversationID, &dependsOn, &executeAt,
		&spawnShortID, &status, &reportMD, &reportSummary, &liveOutput, &attentionKind, &attentionTitle,
		&attentionDomain, &attentionData, &severity, &notifyAfter, &clarSessionID, &clarAnswer,
		&clarAnsweredAt, &hasDependentChildren, &completedAt, &lastError, &createdAt,
	); err != nil {
		return nil, err
	}
	if params.Valid {
		w.Params = json.RawMessage(params.String)
	}
	if dependsOn.Valid && dependsOn.String != "" {
		_ = json.Unmarshal([]byte(dependsOn.String), &w.DependsOn)
	}
	if executeAt.Valid {
		t := strToTime(executeAt.String)
		w.ExecuteAt = &t
	}
	w.SpawnShortID = spawnShortID.String
	w.Status = models.WorkerStatus(status)
	w.ReportMD = reportMD.String
	w.ReportSummary = reportSummary.String
	w.LiveOutput = liveOutput.String
	w.AttentionKind = models.AttentionKind(attentionKind.String)
	w.AttentionTitle = attentionTitle.String
	w.AttentionDomain = attentionDomain.String
	if attentionData.Valid {
		w.AttentionData = json.RawMessage(attentionData.String)
	}
	w.Severity = models.Severity(severity.String)
	if notifyAfter.Valid {
		t := strToTime(notifyAfter.String)
		w.NotifyAfter = &t
	}
	w.ClarificationSessionID = clarSessionID.String
	w.ClarificationAnswer = clarAnswer.String
	if clarAnsweredAt.Valid {
		t := strToTime(clarAnsweredAt.String)
		w.ClarificationAnsweredAt = &t
	}
	w.HasDependentChildren = hasDependentChildren != 0
	if completedAt.Valid {
		t := strToTime(completedAt.String)
		w.CompletedAt = &t
	}
	w.LastError = lastError.String
	w.CreatedAt = strToTime(createdAt)
	return &w, nil
}

func (s *Store) CreateWorker(ctx context.Context, w *models.Worker) error {
	dependsOn, _ := json.Marshal(w.DependsOn)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (id, short_id, task_type, params, spawned_by_session, conversation_id, depends_on,
			execute_at, spawn_short_id, status, report_md, report_summary, live_output, attention_kind,
			attention_title, attention_domain, attention_data, severity, notify_after, clarification_session_id,
			clarification_answer, clarification_answered_at, has_dependent_children, completed_at, last_error, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.ShortID, w.TaskType, nullStr(string(w.Params)), nullStr(w.SpawnedBy), w.ConversationID, string(dependsOn),
		nullableTimeToStr(w.ExecuteAt), nullStr(w.SpawnShortID), string(w.Status), nullStr(w.ReportMD), nullStr(w.ReportSummary), nullStr(w.LiveOutput),
		nullStr(string(w.AttentionKind)), nullStr(w.AttentionTitle), nullStr(w.AttentionDomain), nullStr(string(w.AttentionData)),
		nullStr(string(w.Severity)), nullableTimeToStr(w.NotifyAfter), nullStr(w.ClarificationSessionID),
		nullStr(w.ClarificationAnswer), nullableTimeToStr(w.ClarificationAnsweredAt), boolToInt(w.HasDependentChildren),
		nullableTimeToStr(w.CompletedAt), nullStr(w.LastError), timeToStr(w.CreatedAt),
	)
	return err
}

func (s *Store) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return w, err
}

// ListPendingWorkers returns pending workers of every conversation, oldest
// first, used by the executor's dependency/schedule readiness scan.
func (s *Store) ListPendingWorkers(ctx context.Context) ([]*models.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) SetWorkerStatus(ctx context.Context, id string, status models.WorkerStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workers SET status = ? WHERE id = ?`, string(status), id)
	return err
}

// AppendLiveOutput replaces a worker's rolling output buffer; the executor
// is responsible for applying the 50KB head-truncation before calling this
// (spec.md §4.7 live output cap).
func (s *Store) AppendLiveOutput(ctx context.Context, id, output string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workers SET live_output = ? WHERE id = ?`, output, id)
	return err
}

// CompleteWorker records a final report and transitions status/attention.
func (s *Store) CompleteWorker(ctx context.Context, w *models.Worker) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workers SET status = ?, report_md = ?, report_summary = ?, attention_kind = ?, attention_title = ?,
			attention_domain = ?, attention_data = ?, severity = ?, notify_after = ?, completed_at = ?, last_error = ?
		WHERE id = ?`,
		string(w.Status), nullStr(w.ReportMD), nullStr(w.ReportSummary), nullStr(string(w.AttentionKind)), nullStr(w.AttentionTitle),
		nullStr(w.AttentionDomain), nullStr(string(w.AttentionData)), nullStr(string(w.Severity)), nullableTimeToStr(w.NotifyAfter),
		nullableTimeToStr(w.CompletedAt), nullStr(w.LastError), w.ID)
	return err
}

// SetWorkerClarification moves a worker into awaiting_clarification and
// records where the question was asked.
func (s *Store) SetWorkerClarification(ctx context.Context, id, sessionID, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workers SET status = ?, clarification_session_id = ?, attention_title = ? WHERE id = ?`,
		string(models.WorkerAwaitingClarification), sessionID, title, id)
	return err
}

// AnswerWorkerClarification records the operator's answer and flips status
// to clarification_answered so the executor resumes the worker.
func (s *Store) AnswerWorkerClarification(ctx context.Context, id, answer string, now string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workers SET status = ?, clarification_answer = ?, clarification_answered_at = ? WHERE id = ?`,
		string(models.WorkerClarificationAnswered), answer, now, id)
	return err
}

// ListAwaitingNotification returns complete workers (of any attention kind)
// for a conversation that have not yet been recorded in
// conversation_notifications — the candidates WakeConversation narrows to
// result-kind workers before announcing.
func (s *Store) ListAwaitingNotification(ctx context.Context, conversationID string) ([]*models.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workerColumns+` FROM workers w
		WHERE w.conversation_id = ? AND w.status = 'complete'
		  AND NOT EXISTS (SELECT 1 FROM conversation_notifications n WHERE n.conversation_id = w.conversation_id AND n.worker_id = w.id)
		ORDER BY w.completed_at`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListAllAwaitingNotification returns complete workers (of any attention
// kind) across every conversation that have not yet been recorded in
// conversation_notifications — the feed-wide view internal/attention polls,
// as distinct from ListAwaitingNotification's single-conversation delta.
func (s *Store) ListAllAwaitingNotification(ctx context.Context) ([]*models.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workerColumns+` FROM workers w
		WHERE w.status = 'complete'
		  AND NOT EXISTS (SELECT 1 FROM conversation_notifications n WHERE n.conversation_id = w.conversation_id AND n.worker_id = w.id)
		ORDER BY w.completed_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// RecordNotification marks a worker as announced to a conversation. The
// composite primary key makes this operation naturally idempotent: a
// duplicate insert for the same pair is ignored without an error, not
// double-counted.
func (s *Store) RecordNotification(ctx context.Context, n *models.ConversationNotification) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO conversation_notifications (conversation_id, worker_id, notified_at) VALUES (?,?,?)`,
		n.ConversationID, n.WorkerID, timeToStr(n.NotifiedAt))
	return err
}
