package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

// SchedulesRepo implements application.ScheduleRepository and
// application.ScheduleSource against the backend database.
type SchedulesRepo struct {
	db *sql.DB
}

// NewSchedulesRepo wires the repository.
func NewSchedulesRepo(db *sql.DB) *SchedulesRepo {
	return &SchedulesRepo{db: db}
}

const scheduleColumns = `id, pet_id, kind, active, reminder_times, medication_name, target_dosage, dosage_unit, strength, volume_per_session, created_at, updated_at`

// CreateSchedule inserts a new schedule.
func (r *SchedulesRepo) CreateSchedule(ctx context.Context, schedule application.Schedule) (application.Schedule, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		schedule.ID,
		schedule.PetID,
		string(schedule.Kind),
		schedule.Active,
		encodeReminderTimes(schedule.ReminderTimes),
		schedule.MedicationName,
		schedule.TargetDosage,
		schedule.DosageUnit,
		schedule.Strength,
		schedule.VolumePerSession,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return application.Schedule{}, err
	}
	return schedule, nil
}

// GetSchedule retrieves a schedule by id.
func (r *SchedulesRepo) GetSchedule(ctx context.Context, id string) (application.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

// UpdateSchedule replaces a schedule's mutable fields.
func (r *SchedulesRepo) UpdateSchedule(ctx context.Context, schedule application.Schedule) (application.Schedule, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET
			active = $1, reminder_times = $2, medication_name = $3, target_dosage = $4,
			dosage_unit = $5, strength = $6, volume_per_session = $7, updated_at = $8
		WHERE id = $9`,
		schedule.Active,
		encodeReminderTimes(schedule.ReminderTimes),
		schedule.MedicationName,
		schedule.TargetDosage,
		schedule.DosageUnit,
		schedule.Strength,
		schedule.VolumePerSession,
		schedule.UpdatedAt,
		schedule.ID,
	)
	if err != nil {
		return application.Schedule{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return application.Schedule{}, err
	}
	if affected == 0 {
		return application.Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

// DeleteSchedule removes a schedule by id.
func (r *SchedulesRepo) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListSchedules returns every schedule for the pet, oldest first.
func (r *SchedulesRepo) ListSchedules(ctx context.Context, petID string) ([]application.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE pet_id = $1
		ORDER BY created_at, id`, petID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ActiveFluidSchedule returns the pet's active fluid schedule, nil when none
// exists.
func (r *SchedulesRepo) ActiveFluidSchedule(ctx context.Context, petID string) (*application.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE pet_id = $1 AND kind = $2 AND active
		ORDER BY updated_at DESC
		LIMIT 1`, petID, string(application.TreatmentKindFluid))
	schedule, err := scanSchedule(row)
	if err != nil {
		if err == persistence.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &schedule, nil
}

// ActiveMedicationSchedules returns the pet's active medication schedules.
func (r *SchedulesRepo) ActiveMedicationSchedules(ctx context.Context, petID string) ([]application.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE pet_id = $1 AND kind = $2 AND active
		ORDER BY created_at, id`, petID, string(application.TreatmentKindMedication))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (application.Schedule, error) {
	var (
		s         application.Schedule
		kind      string
		reminders string
	)
	err := row.Scan(
		&s.ID, &s.PetID, &kind, &s.Active, &reminders,
		&s.MedicationName, &s.TargetDosage, &s.DosageUnit, &s.Strength,
		&s.VolumePerSession, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return application.Schedule{}, persistence.ErrNotFound
		}
		return application.Schedule{}, err
	}

	s.Kind = application.TreatmentKind(kind)
	if s.ReminderTimes, err = decodeReminderTimes(reminders); err != nil {
		return application.Schedule{}, &application.DataFormatError{
			Detail: fmt.Sprintf("schedule %s has unreadable reminder times", s.ID),
			Cause:  err,
		}
	}
	return s, nil
}

func collectSchedules(rows *sql.Rows) ([]application.Schedule, error) {
	var schedules []application.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

func encodeReminderTimes(times []application.TimeOfDay) string {
	parts := make([]string, 0, len(times))
	for _, tod := range times {
		parts = append(parts, tod.String())
	}
	return strings.Join(parts, ",")
}

func decodeReminderTimes(encoded string) ([]application.TimeOfDay, error) {
	if encoded == "" {
		return nil, nil
	}
	parts := strings.Split(encoded, ",")
	times := make([]application.TimeOfDay, 0, len(parts))
	for _, part := range parts {
		tod, err := application.ParseTimeOfDay(part)
		if err != nil {
			return nil, err
		}
		times = append(times, tod)
	}
	return times, nil
}
