package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

func timeToStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func strToTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullableTimeToStr(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: timeToStr(*t), Valid: true}
}

func strToNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := strToTime(ns.String)
	return &t
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, conversation_id, parent_session_id, role, mode, window_name,
			pane_id, working_dir, transcript_path, description, status_text,
			state, mission_execution_id, spec_path, created_at, last_seen_at,
			ended_at, end_reason
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.ConversationID, nullStr(sess.ParentSessionID), string(sess.Role), string(sess.Mode), sess.WindowName,
		nullStr(sess.PaneID), sess.WorkingDir, nullStr(sess.Transcript), nullStr(sess.Description), nullStr(sess.StatusText),
		string(sess.State), nullStr(sess.MissionExecutionID), nullStr(sess.SpecPath), timeToStr(sess.CreatedAt), timeToStr(sess.LastSeenAt),
		nullableTimeToStr(sess.EndedAt), nullStr(string(sess.EndReason)),
	)
	return err
}

func nullStr(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func scanSession(scanner interface{ Scan(...any) error }) (*models.Session, error) {
	var (
		sess                                                            models.Session
		parentID, paneID, transcript, description, statusText           sql.NullString
		missionExecID, specPath, endedAt, endReason                     sql.NullString
		createdAt, lastSeenAt                                           string
		role, mode, state                                               string
	)
	if err := scanner.Scan(
		&sess.ID, &sess.ConversationID, &parentID, &role, &mode, &sess.WindowName,
		&paneID, &sess.WorkingDir, &transcript, &description, &statusText,
		&state, &missionExecID, &specPath, &createdAt, &lastSeenAt,
		&endedAt, &endReason,
	); err != nil {
		return nil, err
	}
	sess.ParentSessionID = parentID.String
	sess.PaneID = paneID.String
	sess.Transcript = transcript.String
	sess.Description = description.String
	sess.StatusText = statusText.String
	sess.MissionExecutionID = missionExecID.String
	sess.SpecPath = specPath.String
	sess.Role = models.Role(role)
	sess.Mode = models.Mode(mode)
	sess.State = models.State(state)
	sess.CreatedAt = strToTime(createdAt)
	sess.LastSeenAt = strToTime(lastSeenAt)
	sess.EndedAt = strToNullableTime(endedAt)
	sess.EndReason = models.EndReason(endReason.String)
	return &sess, nil
}

const sessionColumns = `id, conversation_id, parent_session_id, role, mode, window_name,
	pane_id, working_dir, transcript_path, description, status_text,
	state, mission_execution_id, spec_path, created_at, last_seen_at,
	ended_at, end_reason`

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

// GetActiveSessionForConversation returns the single active (ended_at IS
// NULL) session for a conversation, or ErrNotFound if none.
//
// Invariant 1 (spec.md §8), at most one active row per conversation_id, is
// not enforced by the store: if several rows are active, this query returns
// the most recently created one.
func (s *Store) GetActiveSessionForConversation(ctx context.Context, conversationID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE conversation_id = ? AND ended_at IS NULL ORDER BY created_at DESC LIMIT 1`, conversationID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

// GetActiveSessions returns every currently-active session across all
// conversations.
func (s *Store) GetActiveSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE ended_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// FindSessionByPane returns the active session occupying a tmux pane.
func (s *Store) FindSessionByPane(ctx context.Context, pane string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE pane_id = ? AND ended_at IS NULL LIMIT 1`, pane)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sess, err
}

// Heartbeat bumps last_seen_at for a session.
func (s *Store) Heartbeat(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = ? WHERE id = ?`, timeToStr(now), id)
	return err
}

// SetSessionStatus updates the free-text status field.
func (s *Store) SetSessionStatus(ctx context.Context, id, text string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status_text = ? WHERE id = ?`, text, id)
	return err
}

// SetSessionPane records the tmux pane id once known (after window creation).
func (s *Store) SetSessionPane(ctx context.Context, id, pane string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET pane_id = ? WHERE id = ?`, pane, id)
	return err
}

// EndSession sets ended_at/end_reason exactly once (idempotent per spec.md
// §8 property 2): a second call to end the same session is a no-op that
// still returns success, since the WHERE clause only matches unended rows.
func (s *Store) EndSession(ctx context.Context, id string, reason models.EndReason, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`, timeToStr(now), string(reason), id)
	return err
}

// MarkAllChiefEnded ends every currently-active chief session with the given
// reason, used by the force-reset path (spec.md §4.4 step (c)).
func (s *Store) MarkAllChiefEnded(ctx context.Context, reason models.EndReason, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ?, end_reason = ? WHERE conversation_id = ? AND ended_at IS NULL`,
		timeToStr(now), string(reason), models.ChiefConversationID)
	return err
}

// CreateHandoff inserts a new handoff row (status executing).
func (s *Store) CreateHandoff(ctx context.Context, h *models.Handoff) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handoffs (id, predecessor_session_id, role, mode, pane, handoff_document_path, reason, status, requested_at, completed_at, new_session_id, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.PredecessorID, string(h.Role), string(h.Mode), nullStr(h.Pane), nullStr(h.DocumentPath),
		string(h.Reason), string(h.Status), timeToStr(h.RequestedAt), nullableTimeToStr(h.CompletedAt), nullStr(h.NewSessionID), nullStr(h.Error))
	return err
}

// CompleteHandoff finalizes a handoff row with its outcome.
func (s *Store) CompleteHandoff(ctx context.Context, id string, status models.HandoffStatus, newSessionID, errMsg string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE handoffs SET status = ?, completed_at = ?, new_session_id = ?, error = ? WHERE id = ?`,
		string(status), timeToStr(now), nullStr(newSessionID), nullStr(errMsg), id)
	return err
}

// HandoffByPredecessor returns the most recent handoff row issued for a
// predecessor session.
func (s *Store) HandoffByPredecessor(ctx context.Context, predecessorID string) (*models.Handoff, error) {
	var (
		h                                                      models.Handoff
		pane, doc, newSessionID, errMsg, completedAt            sql.NullString
		requestedAt                                             string
		role, mode, reason, status                              string
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, predecessor_session_id, role, mode, pane, handoff_document_path, reason, status, requested_at, completed_at, new_session_id, error
		FROM handoffs WHERE predecessor_session_id = ? ORDER BY requested_at DESC LIMIT 1`, predecessorID)
	if err := row.Scan(&h.ID, &h.PredecessorID, &role, &mode, &pane, &doc, &reason, &status, &requestedAt, &completedAt, &newSessionID, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	h.Role = models.Role(role)
	h.Mode = models.Mode(mode)
	h.Pane = pane.String
	h.DocumentPath = doc.String
	h.Reason = models.HandoffReason(reason)
	h.Status = models.HandoffStatus(status)
	h.RequestedAt = strToTime(requestedAt)
	h.CompletedAt = strToNullableTime(completedAt)
	h.NewSessionID = newSessionID.String
	h.Error = errMsg.String
	return &h, nil
}
