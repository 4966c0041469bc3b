package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragma is a connection setting together with the value SQLite reports
// back once it took effect.
type pragma struct {
	name  string
	set   string
	reads string
}

var pragmas = []pragma{
	{name: "journal_mode", set: "WAL", reads: "wal"},
	{name: "synchronous", set: "NORMAL", reads: "1"},
	{name: "busy_timeout", set: "5000", reads: "5000"},
	{name: "foreign_keys", set: "ON", reads: "1"},
}

// migrations[i] upgrades a journal from user_version i to i+1.
var migrations = []func(*sql.Tx) error{
	// v1: journal read index. UNIQUE(workflow_id, seq) covers it on fresh
	// databases; older journals lack it.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_updates_workflow_seq ON updates(workflow_id, seq)`)
		return err
	},
}

// currentSchemaVersion is the user_version of a fully migrated journal.
var currentSchemaVersion = len(migrations)

// Store is the SQLite-backed update journal. A single connection serializes
// writers; WAL lets other processes read a journal while a run appends to it.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal at path, applying pragmas, the schema and
// any pending migrations. Opening an up-to-date journal changes nothing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return &Store{db: db, now: time.Now}, nil
}

func prepare(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect journal: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.set)); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.name, err)
		}
		if err := checkPragma(db, p.name, p.reads); err != nil {
			return err
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema v%d is newer than supported v%d", version, currentSchemaVersion)
	}

	for v := version; v < currentSchemaVersion; v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			return errors.Join(fmt.Errorf("migrate to v%d: %w", v+1, err), tx.Rollback())
		}
		// PRAGMA takes no bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return errors.Join(fmt.Errorf("record v%d: %w", v+1, err), tx.Rollback())
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit v%d: %w", v+1, err)
		}
	}
	return nil
}

func checkPragma(db *sql.DB, name, want string) error {
	var got string
	if err := db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("pragma %s = %q, want %q", name, got, want)
	}
	return nil
}

// Close releases the connection. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetNow replaces the wall clock used for created_at columns.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

// DB exposes the connection for ad-hoc inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}
