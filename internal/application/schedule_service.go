package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

// ScheduleRepository captures the persistence interactions needed by the
// schedule service.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) (Schedule, error)
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	UpdateSchedule(ctx context.Context, schedule Schedule) (Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	ListSchedules(ctx context.Context, petID string) ([]Schedule, error)
}

// PendingReloader re-reads the schedule snapshot and recomputes the pending
// set. The treatment service satisfies it.
type PendingReloader interface {
	Load(ctx context.Context) error
}

// ScheduleInput is the caller-supplied shape of a schedule write.
type ScheduleInput struct {
	Kind             TreatmentKind
	Active           bool
	ReminderTimes    []TimeOfDay
	MedicationName   string
	TargetDosage     float64
	DosageUnit       string
	Strength         string
	VolumePerSession float64
}

// ScheduleService validates and persists treatment schedule configuration,
// then cascades: reminders are rescheduled for the touched schedule and the
// pending set is reloaded from the updated snapshot.
type ScheduleService struct {
	principal   Principal
	schedules   ScheduleRepository
	notifier    Notifier
	reloader    PendingReloader
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule configuration writes.
func NewScheduleService(principal Principal, schedules ScheduleRepository, notifier Notifier, reloader PendingReloader, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		principal:   principal,
		schedules:   schedules,
		notifier:    notifier,
		reloader:    reloader,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateSchedule validates the input before delegating to persistence.
func (s *ScheduleService) CreateSchedule(ctx context.Context, input ScheduleInput) (Schedule, error) {
	if err := s.checkPreconditions(); err != nil {
		return Schedule{}, err
	}
	if vErr := validateScheduleInput(input); vErr.HasErrors() {
		return Schedule{}, vErr
	}

	now := s.now()
	schedule := Schedule{
		ID:               s.idGenerator(),
		PetID:            s.principal.PetID,
		Kind:             input.Kind,
		Active:           input.Active,
		ReminderTimes:    SortTimesOfDay(input.ReminderTimes),
		MedicationName:   strings.TrimSpace(input.MedicationName),
		TargetDosage:     input.TargetDosage,
		DosageUnit:       strings.TrimSpace(input.DosageUnit),
		Strength:         strings.TrimSpace(input.Strength),
		VolumePerSession: input.VolumePerSession,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	persisted, err := s.schedules.CreateSchedule(ctx, schedule)
	if err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}

	s.cascade(ctx, persisted, "CreateSchedule")
	return persisted, nil
}

// UpdateSchedule applies validation before updating persistence state.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, scheduleID string, input ScheduleInput) (Schedule, error) {
	if err := s.checkPreconditions(); err != nil {
		return Schedule{}, err
	}

	existing, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}

	if input.Kind != existing.Kind {
		vErr := &ValidationError{}
		vErr.add("kind", "treatment kind cannot be changed")
		return Schedule{}, vErr
	}
	if vErr := validateScheduleInput(input); vErr.HasErrors() {
		return Schedule{}, vErr
	}

	updated := existing
	updated.Active = input.Active
	updated.ReminderTimes = SortTimesOfDay(input.ReminderTimes)
	updated.MedicationName = strings.TrimSpace(input.MedicationName)
	updated.TargetDosage = input.TargetDosage
	updated.DosageUnit = strings.TrimSpace(input.DosageUnit)
	updated.Strength = strings.TrimSpace(input.Strength)
	updated.VolumePerSession = input.VolumePerSession
	updated.UpdatedAt = s.now()

	persisted, err := s.schedules.UpdateSchedule(ctx, updated)
	if err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}

	s.cascade(ctx, persisted, "UpdateSchedule")
	return persisted, nil
}

// DeleteSchedule removes a schedule and cancels its reminders.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, scheduleID string) error {
	if err := s.checkPreconditions(); err != nil {
		return err
	}

	existing, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return mapScheduleRepoError(err)
	}

	if err := s.schedules.DeleteSchedule(ctx, scheduleID); err != nil {
		return mapScheduleRepoError(err)
	}

	existing.Active = false
	s.cascade(ctx, existing, "DeleteSchedule")
	return nil
}

// ListSchedules enumerates the pet's schedules.
func (s *ScheduleService) ListSchedules(ctx context.Context) ([]Schedule, error) {
	if err := s.checkPreconditions(); err != nil {
		return nil, err
	}
	schedules, err := s.schedules.ListSchedules(ctx, s.principal.PetID)
	if err != nil {
		return nil, mapScheduleRepoError(err)
	}
	return schedules, nil
}

// cascade runs the post-write consequences: best-effort reminder
// rescheduling, then a reload of the pending snapshot. Reminder failures are
// diagnostic only.
func (s *ScheduleService) cascade(ctx context.Context, schedule Schedule, op string) {
	logger := serviceLogger(ctx, s.logger, "ScheduleService", op, "schedule_id", schedule.ID)

	if s.notifier != nil {
		if count, err := s.notifier.CancelFor(schedule.ID); err != nil {
			logger.Warn("reminder cancel failed", "error", err)
		} else {
			logger.Debug("reminders cancelled", "count", count)
		}
		if schedule.Active {
			if count, err := s.notifier.ScheduleFor(schedule); err != nil {
				logger.Warn("reminder scheduling failed", "error", err)
			} else {
				logger.Debug("reminders scheduled", "count", count)
			}
		}
	}

	if s.reloader != nil {
		if err := s.reloader.Load(ctx); err != nil {
			logger.Warn("pending reload after schedule write failed", "error", err)
		}
	}
}

func (s *ScheduleService) checkPreconditions() error {
	if s.principal.UserID == "" {
		return ErrNoAuthenticatedUser
	}
	if s.principal.PetID == "" {
		return ErrNoPetResolved
	}
	return nil
}

func validateScheduleInput(input ScheduleInput) *ValidationError {
	vErr := &ValidationError{}

	for _, tod := range input.ReminderTimes {
		if !tod.Valid() {
			vErr.add("reminder_times", fmt.Sprintf("invalid time of day %02d:%02d", tod.Hour, tod.Minute))
			break
		}
	}

	switch input.Kind {
	case TreatmentKindMedication:
		if strings.TrimSpace(input.MedicationName) == "" {
			vErr.add("medication_name", "medication name is required")
		}
		if input.TargetDosage <= 0 {
			vErr.add("target_dosage", "target dosage must be positive")
		}
		if input.VolumePerSession != 0 {
			vErr.add("volume_per_session", "fluid volume does not apply to medication schedules")
		}
	case TreatmentKindFluid:
		if input.VolumePerSession <= 0 {
			vErr.add("volume_per_session", "target volume must be positive")
		}
		if strings.TrimSpace(input.MedicationName) != "" || input.TargetDosage != 0 {
			vErr.add("medication_name", "medication fields do not apply to fluid schedules")
		}
		if len(input.ReminderTimes) == 0 {
			vErr.add("reminder_times", "fluid schedules need at least one reminder time")
		}
	default:
		vErr.add("kind", "treatment kind is required")
	}

	return vErr
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
