// Package storage is the embedded SQL store C1: a thin transactional
// wrapper over a write-ahead-logged SQLite database, additive migrations,
// and scoped helpers (execute/fetchone/fetchall/transaction) used by every
// other component to persist sessions, missions, duties and workers.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo required on the always-on host
)

// Sentinel errors surfaced at the storage boundary.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

const defaultBusyTimeout = 5 * time.Second

//go:embed schema.sql
var embeddedSchema string

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Store wraps a single-writer SQLite connection configured for WAL. There
// is no separate read-only pool; chief's traffic is light enough that a single writer handle
// (serialized by SQLite itself plus Go's *sql.DB pooling) is sufficient for
// both schedulers and the session manager.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the embedded database at path, applies the
// schema and any unapplied migrations, and returns a ready Store.
//
// Grounded on the single-writer WAL DSN used across the example corpus's
// SQLite backends (busy_timeout + journal_mode=WAL + synchronous=NORMAL).
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("prepare database path: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path,
		int(defaultBusyTimeout/time.Millisecond),
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single writer connection serializes writes at the pool level and
	// avoids SQLITE_BUSY storms; WAL still lets external readers (e.g. ad
	// hoc inspection tools) proceed concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory store for tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: ":memory:"}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for packages that need bespoke queries
// (e.g. worker live-output updates) without widening this package's surface.
func (s *Store) DB() *sql.DB {
	return s.db
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// migrate applies the base schema once, then any migrations under
// migrations/ whose filename (lexicographically ordered, e.g.
// 001_add_workers.sql) has not yet been recorded in schema_migrations.
// Failure to apply any migration aborts startup without touching later
// ones, per spec.md §7 "Migration failure at startup".
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var baseApplied int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = 'schema.sql'`).Scan(&baseApplied); err != nil {
		return fmt.Errorf("check base schema: %w", err)
	}
	if baseApplied == 0 {
		if err := s.applyStatements(embeddedSchema, "schema.sql"); err != nil {
			return err
		}
	}

	entries, err := embeddedMigrations.ReadDir("migrations")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		contents, err := embeddedMigrations.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := s.applyStatements(string(contents), name); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) applyStatements(script, name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("exec %s: %w", name, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}
