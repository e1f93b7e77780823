// Package testfixtures provides deterministic builders and time/id sources
// shared by the application and persistence tests.
package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
)

var (
	scheduleCounter uint64
	sessionCounter  uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// --------------------------- Schedule fixtures ---------------------------

// ScheduleOption configures the generated schedule fixture.
type ScheduleOption func(*application.Schedule)

// WithScheduleID overrides the generated identifier.
func WithScheduleID(id string) ScheduleOption {
	return func(s *application.Schedule) { s.ID = id }
}

// WithPetID overrides the pet the schedule belongs to.
func WithPetID(petID string) ScheduleOption {
	return func(s *application.Schedule) { s.PetID = petID }
}

// WithMedicationName overrides the medication name.
func WithMedicationName(name string) ScheduleOption {
	return func(s *application.Schedule) { s.MedicationName = name }
}

// WithReminderTimes replaces the reminder times.
func WithReminderTimes(times ...application.TimeOfDay) ScheduleOption {
	return func(s *application.Schedule) { s.ReminderTimes = times }
}

// WithTargetDosage overrides the target dosage.
func WithTargetDosage(dosage float64) ScheduleOption {
	return func(s *application.Schedule) { s.TargetDosage = dosage }
}

// WithVolumePerSession overrides the fluid target volume.
func WithVolumePerSession(volume float64) ScheduleOption {
	return func(s *application.Schedule) { s.VolumePerSession = volume }
}

// Inactive marks the schedule inactive.
func Inactive() ScheduleOption {
	return func(s *application.Schedule) { s.Active = false }
}

// NewMedicationSchedule returns a deterministic active medication schedule
// with one morning reminder, adjustable through options.
func NewMedicationSchedule(opts ...ScheduleOption) application.Schedule {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := application.Schedule{
		ID:             fmt.Sprintf("sched-%03d", idx),
		PetID:          "pet-1",
		Kind:           application.TreatmentKindMedication,
		Active:         true,
		ReminderTimes:  []application.TimeOfDay{{Hour: 8}},
		MedicationName: fmt.Sprintf("Medication %03d", idx),
		TargetDosage:   1,
		DosageUnit:     "pill",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// NewFlexibleMedicationSchedule returns a medication schedule without
// reminder times.
func NewFlexibleMedicationSchedule(opts ...ScheduleOption) application.Schedule {
	opts = append([]ScheduleOption{WithReminderTimes()}, opts...)
	return NewMedicationSchedule(opts...)
}

// NewFluidSchedule returns a deterministic active fluid therapy schedule with
// one evening session of 100 mL.
func NewFluidSchedule(opts ...ScheduleOption) application.Schedule {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := application.Schedule{
		ID:               fmt.Sprintf("sched-%03d", idx),
		PetID:            "pet-1",
		Kind:             application.TreatmentKindFluid,
		Active:           true,
		ReminderTimes:    []application.TimeOfDay{{Hour: 18}},
		VolumePerSession: 100,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// --------------------------- Session fixtures ----------------------------

// SessionOption configures the generated session fixture.
type SessionOption func(*application.LoggedSession)

// At overrides the administration timestamp.
func At(at time.Time) SessionOption {
	return func(s *application.LoggedSession) { s.At = at }
}

// Skipped marks the session as an explicit zero-dosage skip.
func Skipped() SessionOption {
	return func(s *application.LoggedSession) {
		s.Completed = false
		s.DosageGiven = 0
	}
}

// ForSchedule links the session to a schedule and copies its payload fields.
func ForSchedule(sched application.Schedule) SessionOption {
	return func(s *application.LoggedSession) {
		s.Kind = sched.Kind
		s.ScheduleID = sched.ID
		s.PetID = sched.PetID
		if sched.Kind == application.TreatmentKindMedication {
			s.MedicationName = sched.MedicationName
			s.DosageScheduled = sched.TargetDosage
			s.DosageGiven = sched.TargetDosage
			s.VolumeGiven = 0
		} else {
			s.MedicationName = ""
			s.DosageScheduled = 0
			s.DosageGiven = 0
			s.VolumeGiven = sched.VolumePerSession
		}
	}
}

// WithVolumeGiven overrides the administered fluid volume.
func WithVolumeGiven(volume float64) SessionOption {
	return func(s *application.LoggedSession) { s.VolumeGiven = volume }
}

// WithScheduledTime attaches the reminder instant the session answers.
func WithScheduledTime(at time.Time) SessionOption {
	return func(s *application.LoggedSession) { s.ScheduledTime = &at }
}

// NewMedicationSession returns a deterministic completed medication session.
func NewMedicationSession(opts ...SessionOption) application.LoggedSession {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := application.LoggedSession{
		ID:              fmt.Sprintf("session-%03d", idx),
		UserID:          "user-1",
		PetID:           "pet-1",
		Kind:            application.TreatmentKindMedication,
		At:              referenceTime.Add(time.Duration(idx) * time.Minute),
		MedicationName:  fmt.Sprintf("Medication %03d", idx),
		DosageGiven:     1,
		DosageScheduled: 1,
		Completed:       true,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// NewFluidSession returns a deterministic fluid therapy session of 100 mL.
func NewFluidSession(opts ...SessionOption) application.LoggedSession {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := application.LoggedSession{
		ID:          fmt.Sprintf("session-%03d", idx),
		UserID:      "user-1",
		PetID:       "pet-1",
		Kind:        application.TreatmentKindFluid,
		At:          referenceTime.Add(time.Duration(idx) * time.Minute),
		VolumeGiven: 100,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}
