package application

import (
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/derivation"
)

// ScheduleSet is the normalized in-memory snapshot of one pet's active
// treatment schedules: at most one fluid schedule plus any number of
// medication schedules. It is a read-only projection; maintaining it is the
// schedule store's job.
type ScheduleSet struct {
	Fluid       *Schedule
	Medications []Schedule
}

// ActiveFluid returns the active fluid schedule, when one exists.
func (set ScheduleSet) ActiveFluid() (Schedule, bool) {
	if set.Fluid == nil || !set.Fluid.Active {
		return Schedule{}, false
	}
	return *set.Fluid, true
}

// ActiveMedications returns the active medication schedules.
func (set ScheduleSet) ActiveMedications() []Schedule {
	out := make([]Schedule, 0, len(set.Medications))
	for _, s := range set.Medications {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// EligibleMedications returns the medication schedules that owe doses on any
// given day: active, and either carrying reminder times (daily reminders
// recur every day) or flexible, which is always eligible.
func (set ScheduleSet) EligibleMedications() []Schedule {
	eligible := make([]Schedule, 0, len(set.Medications))
	for _, s := range set.ActiveMedications() {
		if len(s.ReminderTimes) > 0 || s.IsFlexible() {
			eligible = append(eligible, s)
		}
	}
	return eligible
}

// EligibleFluid returns the fluid schedule owing sessions. Fluid schedules
// have no flexible form: without a reminder time there is nothing owed.
func (set ScheduleSet) EligibleFluid() (Schedule, bool) {
	fluid, ok := set.ActiveFluid()
	if !ok || len(fluid.ReminderTimes) == 0 {
		return Schedule{}, false
	}
	return fluid, true
}

// FindSchedule looks a schedule up by id across both kinds.
func (set ScheduleSet) FindSchedule(id string) (Schedule, bool) {
	if set.Fluid != nil && set.Fluid.ID == id {
		return *set.Fluid, true
	}
	for _, s := range set.Medications {
		if s.ID == id {
			return s, true
		}
	}
	return Schedule{}, false
}

// derivationInput projects the schedule set onto a concrete date and packages
// it with the day's summary for the derivation engine.
func (set ScheduleSet) derivationInput(date time.Time, now time.Time, loc *time.Location, summary derivation.DaySummary) derivation.Input {
	input := derivation.Input{
		Date:       DayKey(date, loc),
		Now:        now,
		StartOfDay: StartOfDay(date, loc),
		Summary:    summary,
	}

	for _, med := range set.EligibleMedications() {
		input.Medications = append(input.Medications, derivation.MedicationSchedule{
			ScheduleID:    med.ID,
			Name:          med.MedicationName,
			TargetDosage:  med.TargetDosage,
			DosageUnit:    med.DosageUnit,
			ReminderTimes: med.ReminderInstants(date, loc),
		})
	}

	if fluid, ok := set.EligibleFluid(); ok {
		input.Fluid = &derivation.FluidSchedule{
			ScheduleID:       fluid.ID,
			VolumePerSession: fluid.VolumePerSession,
			ReminderTimes:    fluid.ReminderInstants(date, loc),
		}
	}

	return input
}
