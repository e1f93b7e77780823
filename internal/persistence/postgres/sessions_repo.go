package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

// SessionsRepo implements application.SessionStore and
// application.SummarySource against the backend database.
type SessionsRepo struct {
	db  *sql.DB
	loc *time.Location
}

// NewSessionsRepo wires the repository.
func NewSessionsRepo(db *sql.DB, loc *time.Location) *SessionsRepo {
	if loc == nil {
		loc = time.Local
	}
	return &SessionsRepo{db: db, loc: loc}
}

const sessionColumns = `id, user_id, pet_id, kind, at, medication_name, dosage_given, dosage_scheduled, completed, volume_given, schedule_id, scheduled_time`

// CreateSession inserts a logged session and returns its id.
func (r *SessionsRepo) CreateSession(ctx context.Context, session application.LoggedSession) (string, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, pet_id, kind, at, day_key, medication_name, dosage_given, dosage_scheduled, completed, volume_given, schedule_id, scheduled_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		session.ID,
		session.UserID,
		session.PetID,
		string(session.Kind),
		session.At,
		application.DayKey(session.At, r.loc),
		session.MedicationName,
		session.DosageGiven,
		session.DosageScheduled,
		session.Completed,
		session.VolumeGiven,
		session.ScheduleID,
		session.ScheduledTime,
	)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// UpdateSession replaces the old session with the new one in a single
// transaction.
func (r *SessionsRepo) UpdateSession(ctx context.Context, oldSession, newSession application.LoggedSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session update: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, oldSession.ID)
	if err != nil {
		_ = tx.Rollback()
		return err
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		newSession.ID,
		newSession.UserID,
		newSession.PetID,
		string(newSession.Kind),
		newSession.At,
		application.DayKey(newSession.At, r.loc),
		newSession.MedicationName,
		newSession.DosageGiven,
		newSession.DosageScheduled,
		newSession.Completed,
		newSession.VolumeGiven,
		newSession.ScheduleID,
		newSession.ScheduledTime,
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session update: %w", err)
	}
	return nil
}

// SessionsOn returns the pet's sessions for one calendar date, oldest first.
func (r *SessionsRepo) SessionsOn(ctx context.Context, petID, date string) ([]application.LoggedSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE pet_id = $1 AND day_key = $2
		ORDER BY at, id`, petID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []application.LoggedSession
	for rows.Next() {
		var (
			s             application.LoggedSession
			kind          string
			scheduledTime sql.NullTime
		)
		err := rows.Scan(
			&s.ID, &s.UserID, &s.PetID, &kind, &s.At,
			&s.MedicationName, &s.DosageGiven, &s.DosageScheduled, &s.Completed,
			&s.VolumeGiven, &s.ScheduleID, &scheduledTime,
		)
		if err != nil {
			return nil, err
		}
		s.Kind = application.TreatmentKind(kind)
		if scheduledTime.Valid {
			at := scheduledTime.Time
			s.ScheduledTime = &at
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
