package application

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TreatmentKind distinguishes the two supported treatment families.
type TreatmentKind string

const (
	// TreatmentKindMedication marks a medication schedule or session.
	TreatmentKindMedication TreatmentKind = "medication"
	// TreatmentKindFluid marks a fluid-therapy schedule or session.
	TreatmentKindFluid TreatmentKind = "fluid-therapy"
)

// TimeOfDay is a clock time without a date, used for daily reminder times.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" value.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	tod := TimeOfDay{Hour: hour, Minute: minute}
	if !tod.Valid() {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return tod, nil
}

// Valid reports whether the value is a real clock time.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// On projects the clock time onto the given calendar date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// String renders the value as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// SortTimesOfDay returns a sorted, de-duplicated copy.
func SortTimesOfDay(times []TimeOfDay) []TimeOfDay {
	seen := make(map[TimeOfDay]struct{}, len(times))
	out := make([]TimeOfDay, 0, len(times))
	for _, t := range times {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour == out[j].Hour {
			return out[i].Minute < out[j].Minute
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// Schedule is one configured recurring treatment for a pet. Medication fields
// are populated iff Kind is medication; VolumePerSession iff Kind is
// fluid-therapy. The engine only ever holds read-only snapshots; create,
// update and delete go through the schedule store.
type Schedule struct {
	ID     string
	PetID  string
	Kind   TreatmentKind
	Active bool

	// ReminderTimes are daily clock times. An empty list on a medication
	// schedule means flexible scheduling: due once per day, any time.
	ReminderTimes []TimeOfDay

	MedicationName string
	TargetDosage   float64
	DosageUnit     string
	Strength       string

	// VolumePerSession is the fluid target in millilitres per session.
	VolumePerSession float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFlexible reports whether this is a medication schedule without fixed
// reminder times.
func (s Schedule) IsFlexible() bool {
	return s.Kind == TreatmentKindMedication && len(s.ReminderTimes) == 0
}

// ReminderInstants projects the daily reminder times onto a concrete date.
func (s Schedule) ReminderInstants(date time.Time, loc *time.Location) []time.Time {
	if len(s.ReminderTimes) == 0 {
		return nil
	}
	instants := make([]time.Time, 0, len(s.ReminderTimes))
	for _, tod := range s.ReminderTimes {
		instants = append(instants, tod.On(date, loc))
	}
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })
	return instants
}

// Validate enforces the kind/field invariant on a schedule read from a store.
// Violations surface as a DataFormatError so callers can distinguish
// malformed data from generic failures.
func (s Schedule) Validate() error {
	if s.ID == "" {
		return &DataFormatError{Detail: "schedule is missing an id"}
	}
	for _, tod := range s.ReminderTimes {
		if !tod.Valid() {
			return &DataFormatError{Detail: fmt.Sprintf("schedule %s has an invalid reminder time %02d:%02d", s.ID, tod.Hour, tod.Minute)}
		}
	}
	switch s.Kind {
	case TreatmentKindMedication:
		if s.MedicationName == "" {
			return &DataFormatError{Detail: fmt.Sprintf("medication schedule %s is missing a medication name", s.ID)}
		}
		if s.VolumePerSession != 0 {
			return &DataFormatError{Detail: fmt.Sprintf("medication schedule %s carries a fluid volume", s.ID)}
		}
	case TreatmentKindFluid:
		if s.MedicationName != "" || s.TargetDosage != 0 || s.DosageUnit != "" || s.Strength != "" {
			return &DataFormatError{Detail: fmt.Sprintf("fluid schedule %s carries medication fields", s.ID)}
		}
		if s.VolumePerSession <= 0 {
			return &DataFormatError{Detail: fmt.Sprintf("fluid schedule %s is missing a target volume", s.ID)}
		}
	default:
		return &DataFormatError{Detail: fmt.Sprintf("schedule %s has unknown kind %q", s.ID, s.Kind)}
	}
	return nil
}

// LoggedSession is one completed or explicitly-skipped treatment event.
// Sessions are immutable once created; edits replace an old/new pair as one
// unit through the session store.
type LoggedSession struct {
	ID     string
	UserID string
	PetID  string
	Kind   TreatmentKind
	At     time.Time

	// Medication payload. Completed=false with DosageGiven=0 is an explicit
	// skip, distinct from "not yet logged".
	MedicationName  string
	DosageGiven     float64
	DosageScheduled float64
	Completed       bool

	// Fluid payload, millilitres.
	VolumeGiven float64

	// Optional link back to the schedule and the reminder time the session
	// answers.
	ScheduleID    string
	ScheduledTime *time.Time
}

// IsSkip reports whether the session records an explicit skip.
func (s LoggedSession) IsSkip() bool {
	return s.Kind == TreatmentKindMedication && !s.Completed && s.DosageGiven == 0
}

// Validate checks a session read from a store for structural integrity.
func (s LoggedSession) Validate() error {
	if s.ID == "" {
		return &DataFormatError{Detail: "session is missing an id"}
	}
	if s.At.IsZero() {
		return &DataFormatError{Detail: fmt.Sprintf("session %s is missing a timestamp", s.ID)}
	}
	switch s.Kind {
	case TreatmentKindMedication:
		if s.MedicationName == "" {
			return &DataFormatError{Detail: fmt.Sprintf("medication session %s is missing a medication name", s.ID)}
		}
	case TreatmentKindFluid:
		if s.VolumeGiven < 0 {
			return &DataFormatError{Detail: fmt.Sprintf("fluid session %s has a negative volume", s.ID)}
		}
	default:
		return &DataFormatError{Detail: fmt.Sprintf("session %s has unknown kind %q", s.ID, s.Kind)}
	}
	return nil
}

// Principal identifies the acting caregiver and the pet being treated.
// Mutations require both to be resolved before any optimistic update.
type Principal struct {
	UserID string
	PetID  string
}

// DayKey formats t as the calendar date string used to scope the daily
// summary cache, in the pet's local calendar.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}
