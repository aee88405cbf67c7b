package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Transaction runs fn inside a SQL transaction, committing on a nil return
// and rolling back on any error or panic. Grounded on the BeginTx/defer
// Rollback idiom used throughout the example corpus's SQLite backends.
func (s *Store) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Execute runs a statement outside of an explicit caller transaction.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// FetchOne runs query and scans the single resulting row via scan, returning
// ErrNotFound when there are no rows.
func (s *Store) FetchOne(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := scan(row); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// FetchAll runs query and calls scan for each resulting row.
func (s *Store) FetchAll(ctx context.Context, scan func(*sql.Rows) error, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
