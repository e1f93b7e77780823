// Package sqlite is the local durable store: treatment schedules, logged
// sessions and the offline operation queue live in one SQLite database so
// the dashboard works without any server round-trip.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

// Store owns the database handle shared by the repositories.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	// The modernc driver serializes writes; a single connection avoids
	// SQLITE_BUSY churn under the coordinator's serialized mutations.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for repositories.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the schema when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			pet_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			reminder_times TEXT NOT NULL DEFAULT '',
			medication_name TEXT NOT NULL DEFAULT '',
			target_dosage REAL NOT NULL DEFAULT 0,
			dosage_unit TEXT NOT NULL DEFAULT '',
			strength TEXT NOT NULL DEFAULT '',
			volume_per_session REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_pet ON schedules(pet_id, active)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			pet_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			at TEXT NOT NULL,
			day_key TEXT NOT NULL,
			medication_name TEXT NOT NULL DEFAULT '',
			dosage_given REAL NOT NULL DEFAULT 0,
			dosage_scheduled REAL NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			volume_given REAL NOT NULL DEFAULT 0,
			schedule_id TEXT NOT NULL DEFAULT '',
			scheduled_time TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_pet_day ON sessions(pet_id, day_key)`,
		`CREATE TABLE IF NOT EXISTS queue_operations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite store: %w", err)
		}
	}
	return nil
}

// mapError converts driver errors to the shared persistence sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return persistence.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return persistence.ErrDuplicate
	}
	return err
}
