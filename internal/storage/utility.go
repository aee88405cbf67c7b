package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nexus-chief/chief/pkg/models"
)

// --- Priorities ---

func (s *Store) UpsertPriority(ctx context.Context, p *models.Priority) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO priorities (id, date, content, level, completed, position) VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, level = excluded.level,
			completed = excluded.completed, position = excluded.position`,
		p.ID, p.Date, p.Content, string(p.Level), boolToInt(p.Completed), p.Position)
	return err
}

func (s *Store) ListPrioritiesForDate(ctx context.Context, date string) ([]*models.Priority, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, date, content, level, completed, position FROM priorities WHERE date = ? ORDER BY position`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Priority
	for rows.Next() {
		var p models.Priority
		var level string
		var completed int
		if err := rows.Scan(&p.ID, &p.Date, &p.Content, &level, &completed, &p.Position); err != nil {
			return nil, err
		}
		p.Level = models.PriorityLevel(level)
		p.Completed = completed != 0
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Store) SetPriorityCompleted(ctx context.Context, id string, completed bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE priorities SET completed = ? WHERE id = ?`, boolToInt(completed), id)
	return err
}

// --- Timers ---

func (s *Store) CreateTimer(ctx context.Context, t *models.Timer) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO timers (id, label, minutes, started_at, ends_at, session_id) VALUES (?,?,?,?,?,?)`,
		t.ID, nullStr(t.Label), t.Minutes, timeToStr(t.StartedAt), timeToStr(t.EndsAt), nullStr(t.SessionID))
	return err
}

// DueTimers returns timers whose ends_at has passed.
func (s *Store) DueTimers(ctx context.Context, now string) ([]*models.Timer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, minutes, started_at, ends_at, session_id FROM timers WHERE ends_at <= ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Timer
	for rows.Next() {
		var t models.Timer
		var label, sessionID sql.NullString
		var started, ends string
		if err := rows.Scan(&t.ID, &label, &t.Minutes, &started, &ends, &sessionID); err != nil {
			return nil, err
		}
		t.Label = label.String
		t.SessionID = sessionID.String
		t.StartedAt = strToTime(started)
		t.EndsAt = strToTime(ends)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTimer(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id)
	return err
}

// --- Reminders ---

func (s *Store) CreateReminder(ctx context.Context, r *models.Reminder) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO reminders (id, message, remind_at, session_id, created_at) VALUES (?,?,?,?,?)`,
		r.ID, r.Message, timeToStr(r.RemindAt), nullStr(r.SessionID), timeToStr(r.CreatedAt))
	return err
}

func (s *Store) DueReminders(ctx context.Context, now string) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, message, remind_at, session_id, created_at FROM reminders WHERE remind_at <= ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Reminder
	for rows.Next() {
		var r models.Reminder
		var sessionID sql.NullString
		var remindAt, createdAt string
		if err := rows.Scan(&r.ID, &r.Message, &remindAt, &sessionID, &createdAt); err != nil {
			return nil, err
		}
		r.SessionID = sessionID.String
		r.RemindAt = strToTime(remindAt)
		r.CreatedAt = strToTime(createdAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

// --- Email ---

func (s *Store) CreateEmailSendRecord(ctx context.Context, e *models.EmailSendRecord) error {
	recipients, _ := json.Marshal(e.Recipients)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_send_log (id, account, recipients, subject, content, content_hash, status, queued_at,
			send_at, sent_at, hour_bucket, requires_confirmation, confirmed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Account, string(recipients), e.Subject, e.Content, e.ContentHash, string(e.Status), timeToStr(e.QueuedAt),
		nullableTimeToStr(e.SendAt), nullableTimeToStr(e.SentAt), e.HourBucket, boolToInt(e.RequiresConfirm), nullableTimeToStr(e.ConfirmedAt))
	return err
}

// FindEmailByContentHash supports dedupe of repeated send requests within
// the same hour bucket.
func (s *Store) FindEmailByContentHash(ctx context.Context, hash, hourBucket string) (*models.EmailSendRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, account, recipients, subject, content, content_hash, status, queued_at,
		send_at, sent_at, hour_bucket, requires_confirmation, confirmed_at
		FROM email_send_log WHERE content_hash = ? AND hour_bucket = ? LIMIT 1`, hash, hourBucket)
	var (
		e                                             models.EmailSendRecord
		recipients                                    string
		status                                        string
		queuedAt                                      string
		sendAt, sentAt, confirmedAt                   sql.NullString
		requiresConfirm                                int
	)
	if err := row.Scan(&e.ID, &e.Account, &recipients, &e.Subject, &e.Content, &e.ContentHash, &status, &queuedAt,
		&sendAt, &sentAt, &e.HourBucket, &requiresConfirm, &confirmedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(recipients), &e.Recipients)
	e.Status = models.EmailSendStatus(status)
	e.QueuedAt = strToTime(queuedAt)
	e.SendAt = strToNullableTime(sendAt)
	e.SentAt = strToNullableTime(sentAt)
	e.RequiresConfirm = requiresConfirm != 0
	e.ConfirmedAt = strToNullableTime(confirmedAt)
	return &e, nil
}

func (s *Store) MarkEmailSent(ctx context.Context, id, sentAt string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE email_send_log SET status = ?, sent_at = ? WHERE id = ?`, string(models.EmailSent), sentAt, id)
	return err
}

// IncrementEmailRateLimit bumps the counter for an hour bucket and returns
// the new count, used to enforce the per-hour send cap.
func (s *Store) IncrementEmailRateLimit(ctx context.Context, hourBucket string) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_rate_limits (hour_bucket, emails_sent) VALUES (?, 1)
		ON CONFLICT(hour_bucket) DO UPDATE SET emails_sent = emails_sent + 1`, hourBucket)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT emails_sent FROM email_rate_limits WHERE hour_bucket = ?`, hourBucket).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// --- Settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
