package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

// SessionRepository implements application.SessionStore and
// application.SummarySource on the local store. The day key is computed in
// the pet's local calendar at write time so date-scoped reads stay cheap.
type SessionRepository struct {
	store *Store
	loc   *time.Location
}

// NewSessionRepository wires a repository on the store.
func NewSessionRepository(store *Store, loc *time.Location) *SessionRepository {
	if loc == nil {
		loc = time.Local
	}
	return &SessionRepository{store: store, loc: loc}
}

const sessionColumns = `id, user_id, pet_id, kind, at, medication_name, dosage_given, dosage_scheduled, completed, volume_given, schedule_id, scheduled_time`

// CreateSession inserts a logged session and returns its id.
func (r *SessionRepository) CreateSession(ctx context.Context, session application.LoggedSession) (string, error) {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, pet_id, kind, at, day_key, medication_name, dosage_given, dosage_scheduled, completed, volume_given, schedule_id, scheduled_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.PetID,
		string(session.Kind),
		session.At.UTC().Format(time.RFC3339Nano),
		application.DayKey(session.At, r.loc),
		session.MedicationName,
		session.DosageGiven,
		session.DosageScheduled,
		boolToInt(session.Completed),
		session.VolumeGiven,
		session.ScheduleID,
		encodeScheduledTime(session.ScheduledTime),
	)
	if err != nil {
		return "", mapError(err)
	}
	return session.ID, nil
}

// UpdateSession replaces the old session with the new one in a single
// transaction, so the pair is atomic from the caller's perspective.
func (r *SessionRepository) UpdateSession(ctx context.Context, oldSession, newSession application.LoggedSession) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session update: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, oldSession.ID)
	if err != nil {
		_ = tx.Rollback()
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return persistence.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, pet_id, kind, at, day_key, medication_name, dosage_given, dosage_scheduled, completed, volume_given, schedule_id, scheduled_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		newSession.ID,
		newSession.UserID,
		newSession.PetID,
		string(newSession.Kind),
		newSession.At.UTC().Format(time.RFC3339Nano),
		application.DayKey(newSession.At, r.loc),
		newSession.MedicationName,
		newSession.DosageGiven,
		newSession.DosageScheduled,
		boolToInt(newSession.Completed),
		newSession.VolumeGiven,
		newSession.ScheduleID,
		encodeScheduledTime(newSession.ScheduledTime),
	)
	if err != nil {
		_ = tx.Rollback()
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session update: %w", err)
	}
	return nil
}

// SessionsOn returns the pet's sessions for one calendar date, oldest first.
func (r *SessionRepository) SessionsOn(ctx context.Context, petID, date string) ([]application.LoggedSession, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE pet_id = ? AND day_key = ?
		ORDER BY at, id`, petID, date)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var sessions []application.LoggedSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanSession(rows *sql.Rows) (application.LoggedSession, error) {
	var (
		s             application.LoggedSession
		kind          string
		at            string
		completed     int
		scheduledTime sql.NullString
	)
	err := rows.Scan(
		&s.ID, &s.UserID, &s.PetID, &kind, &at,
		&s.MedicationName, &s.DosageGiven, &s.DosageScheduled, &completed,
		&s.VolumeGiven, &s.ScheduleID, &scheduledTime,
	)
	if err != nil {
		return application.LoggedSession{}, mapError(err)
	}

	s.Kind = application.TreatmentKind(kind)
	s.Completed = completed != 0
	if s.At, err = parseStoredTime(at); err != nil {
		return application.LoggedSession{}, err
	}
	if scheduledTime.Valid && scheduledTime.String != "" {
		parsed, err := parseStoredTime(scheduledTime.String)
		if err != nil {
			return application.LoggedSession{}, err
		}
		s.ScheduledTime = &parsed
	}
	return s, nil
}

func encodeScheduledTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
