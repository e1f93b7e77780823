package derivation

import (
	"fmt"
	"sort"
	"time"
)

// CompletionWindow is the interval used both to match a logged session to a
// scheduled reminder time and to decide whether a reminder is overdue. Sharing
// the constant keeps "no longer pending" and "was it overdue" on one temporal
// semantic: a dose given up to two hours around its reminder counts as that
// reminder, and a reminder only turns overdue once it is more than two hours
// in the past.
const CompletionWindow = 2 * time.Hour

// MedicationSchedule is a medication treatment projected onto one calendar
// day. ReminderTimes holds the concrete instants of that day; an empty slice
// marks a flexible schedule that may be given any time during the day.
type MedicationSchedule struct {
	ScheduleID    string
	Name          string
	TargetDosage  float64
	DosageUnit    string
	ReminderTimes []time.Time
}

// Flexible reports whether the schedule has no fixed reminder times.
func (m MedicationSchedule) Flexible() bool {
	return len(m.ReminderTimes) == 0
}

// FluidSchedule is a fluid-therapy treatment projected onto one calendar day.
type FluidSchedule struct {
	ScheduleID       string
	VolumePerSession float64
	ReminderTimes    []time.Time
}

// DaySummary is the read surface of the daily summary cache the engine
// consumes. Implementations answer only for the derivation date.
type DaySummary interface {
	// HasCompletedNear reports whether a completed session for the named
	// medication exists within CompletionWindow of t, boundary inclusive.
	HasCompletedNear(name string, t time.Time) bool
	// HasLoggedName reports whether any session, completed or skipped, was
	// logged for the named medication on the derivation date.
	HasLoggedName(name string) bool
	// TotalFluidVolumeToday returns the summed volume given on the date.
	TotalFluidVolumeToday() float64
}

// Input carries everything one derivation run depends on. StartOfDay anchors
// flexible medications; Now drives the overdue checks.
type Input struct {
	Date        string
	Now         time.Time
	StartOfDay  time.Time
	Medications []MedicationSchedule
	Fluid       *FluidSchedule
	Summary     DaySummary
}

// PendingMedication is one medication dose still due on the derivation date.
type PendingMedication struct {
	ScheduleID    string
	Name          string
	TargetDosage  float64
	DosageUnit    string
	ScheduledTime time.Time
	Flexible      bool
	IsOverdue     bool
}

// PendingFluid is the fluid therapy still owed on the derivation date.
type PendingFluid struct {
	ScheduleID      string
	RemainingVolume float64
	ReminderTimes   []time.Time
	IsOverdue       bool
}

// Result is the derived pending treatment set. When Err is set the
// medication list is empty and Fluid is nil; the engine degrades to an error
// state instead of letting a fault escape.
type Result struct {
	Date        string
	Medications []PendingMedication
	Fluid       *PendingFluid
	Err         error
}

// IsOverdue reports whether scheduled lies more than CompletionWindow before
// now. A reminder exactly two hours in the past is not overdue.
func IsOverdue(now, scheduled time.Time) bool {
	return now.Sub(scheduled) > CompletionWindow
}

// WithinCompletionWindow reports whether a and b lie within CompletionWindow
// of each other, boundary inclusive.
func WithinCompletionWindow(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= CompletionWindow
}

// Derive computes the pending treatment set for the input day. The function
// is pure over its input: rerunning it with an unchanged schedule projection,
// summary and clock yields an identical result. A panic out of the summary
// collaborator is converted into an error-state result, never rethrown.
func Derive(input Input) (result Result) {
	result.Date = input.Date

	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Date: input.Date,
				Err:  fmt.Errorf("pending treatment derivation failed: %v", r),
			}
		}
	}()

	if input.Summary == nil {
		return Result{
			Date: input.Date,
			Err:  fmt.Errorf("pending treatment derivation failed: daily summary unavailable"),
		}
	}

	pending := make([]PendingMedication, 0, len(input.Medications))
	for _, med := range input.Medications {
		pending = append(pending, deriveMedication(med, input)...)
	}
	sortPendingMedications(pending)
	result.Medications = pending

	if input.Fluid != nil {
		result.Fluid = deriveFluid(*input.Fluid, input)
	}

	return result
}

func deriveMedication(med MedicationSchedule, input Input) []PendingMedication {
	if med.Flexible() {
		if input.Summary.HasLoggedName(med.Name) {
			return nil
		}
		// Flexible doses can be given any time during the day, so they are
		// never flagged overdue.
		return []PendingMedication{{
			ScheduleID:    med.ScheduleID,
			Name:          med.Name,
			TargetDosage:  med.TargetDosage,
			DosageUnit:    med.DosageUnit,
			ScheduledTime: input.StartOfDay,
			Flexible:      true,
		}}
	}

	pending := make([]PendingMedication, 0, len(med.ReminderTimes))
	for _, reminder := range med.ReminderTimes {
		if input.Summary.HasCompletedNear(med.Name, reminder) {
			continue
		}
		pending = append(pending, PendingMedication{
			ScheduleID:    med.ScheduleID,
			Name:          med.Name,
			TargetDosage:  med.TargetDosage,
			DosageUnit:    med.DosageUnit,
			ScheduledTime: reminder,
			IsOverdue:     IsOverdue(input.Now, reminder),
		})
	}
	return pending
}

func deriveFluid(fluid FluidSchedule, input Input) *PendingFluid {
	scheduled := fluid.VolumePerSession * float64(len(fluid.ReminderTimes))
	remaining := scheduled - input.Summary.TotalFluidVolumeToday()
	if remaining <= 0 {
		return nil
	}

	overdue := false
	for _, reminder := range fluid.ReminderTimes {
		if IsOverdue(input.Now, reminder) {
			overdue = true
			break
		}
	}

	reminders := make([]time.Time, len(fluid.ReminderTimes))
	copy(reminders, fluid.ReminderTimes)
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].Before(reminders[j]) })

	return &PendingFluid{
		ScheduleID:      fluid.ScheduleID,
		RemainingVolume: remaining,
		ReminderTimes:   reminders,
		IsOverdue:       overdue,
	}
}

func sortPendingMedications(pending []PendingMedication) {
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].ScheduledTime.Equal(pending[j].ScheduledTime) {
			if pending[i].ScheduleID == pending[j].ScheduleID {
				return pending[i].Name < pending[j].Name
			}
			return pending[i].ScheduleID < pending[j].ScheduleID
		}
		return pending[i].ScheduledTime.Before(pending[j].ScheduledTime)
	})
}
