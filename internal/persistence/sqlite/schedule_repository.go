package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

// ScheduleRepository implements application.ScheduleRepository and
// application.ScheduleSource on the local store.
type ScheduleRepository struct {
	store *Store
}

// NewScheduleRepository wires a repository on the store.
func NewScheduleRepository(store *Store) *ScheduleRepository {
	return &ScheduleRepository{store: store}
}

const scheduleColumns = `id, pet_id, kind, active, reminder_times, medication_name, target_dosage, dosage_unit, strength, volume_per_session, created_at, updated_at`

// CreateSchedule inserts a new schedule.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule application.Schedule) (application.Schedule, error) {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.PetID,
		string(schedule.Kind),
		boolToInt(schedule.Active),
		encodeReminderTimes(schedule.ReminderTimes),
		schedule.MedicationName,
		schedule.TargetDosage,
		schedule.DosageUnit,
		schedule.Strength,
		schedule.VolumePerSession,
		schedule.CreatedAt.UTC().Format(time.RFC3339Nano),
		schedule.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return application.Schedule{}, mapError(err)
	}
	return schedule, nil
}

// GetSchedule retrieves a schedule by id.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (application.Schedule, error) {
	row := r.store.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

// UpdateSchedule replaces a schedule's mutable fields.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule application.Schedule) (application.Schedule, error) {
	result, err := r.store.db.ExecContext(ctx, `
		UPDATE schedules SET
			active = ?, reminder_times = ?, medication_name = ?, target_dosage = ?,
			dosage_unit = ?, strength = ?, volume_per_session = ?, updated_at = ?
		WHERE id = ?`,
		boolToInt(schedule.Active),
		encodeReminderTimes(schedule.ReminderTimes),
		schedule.MedicationName,
		schedule.TargetDosage,
		schedule.DosageUnit,
		schedule.Strength,
		schedule.VolumePerSession,
		schedule.UpdatedAt.UTC().Format(time.RFC3339Nano),
		schedule.ID,
	)
	if err != nil {
		return application.Schedule{}, mapError(err)
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
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.store.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
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
func (r *ScheduleRepository) ListSchedules(ctx context.Context, petID string) ([]application.Schedule, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE pet_id = ?
		ORDER BY created_at, id`, petID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ActiveFluidSchedule returns the pet's active fluid schedule, nil when none
// exists.
func (r *ScheduleRepository) ActiveFluidSchedule(ctx context.Context, petID string) (*application.Schedule, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE pet_id = ? AND kind = ? AND active = 1
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
func (r *ScheduleRepository) ActiveMedicationSchedules(ctx context.Context, petID string) ([]application.Schedule, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE pet_id = ? AND kind = ? AND active = 1
		ORDER BY created_at, id`, petID, string(application.TreatmentKindMedication))
	if err != nil {
		return nil, mapError(err)
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
		active    int
		reminders string
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&s.ID, &s.PetID, &kind, &active, &reminders,
		&s.MedicationName, &s.TargetDosage, &s.DosageUnit, &s.Strength,
		&s.VolumePerSession, &createdAt, &updatedAt,
	)
	if err != nil {
		return application.Schedule{}, mapError(err)
	}

	s.Kind = application.TreatmentKind(kind)
	s.Active = active != 0

	if s.ReminderTimes, err = decodeReminderTimes(reminders); err != nil {
		return application.Schedule{}, &application.DataFormatError{
			Detail: fmt.Sprintf("schedule %s has unreadable reminder times", s.ID),
			Cause:  err,
		}
	}
	if s.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return application.Schedule{}, err
	}
	if s.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return application.Schedule{}, err
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

func parseStoredTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, &application.DataFormatError{Detail: fmt.Sprintf("unreadable timestamp %q", value), Cause: err}
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
