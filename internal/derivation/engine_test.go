package derivation

import (
	"reflect"
	"testing"
	"time"
)

var tokyo = time.FixedZone("JST", 9*60*60)

type fakeSummary struct {
	completed   map[string][]time.Time
	loggedNames map[string]bool
	fluidTotal  float64
	panicOnRead bool
}

func (f *fakeSummary) HasCompletedNear(name string, t time.Time) bool {
	if f.panicOnRead {
		panic("summary store unreachable")
	}
	for _, at := range f.completed[name] {
		if WithinCompletionWindow(at, t) {
			return true
		}
	}
	return false
}

func (f *fakeSummary) HasLoggedName(name string) bool {
	if f.panicOnRead {
		panic("summary store unreachable")
	}
	return f.loggedNames[name]
}

func (f *fakeSummary) TotalFluidVolumeToday() float64 {
	if f.panicOnRead {
		panic("summary store unreachable")
	}
	return f.fluidTotal
}

func emptySummary() *fakeSummary {
	return &fakeSummary{completed: map[string][]time.Time{}, loggedNames: map[string]bool{}}
}

func dayInput(now time.Time) Input {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, tokyo)
	return Input{
		Date:       now.In(tokyo).Format("2006-01-02"),
		Now:        now,
		StartOfDay: start,
		Summary:    emptySummary(),
	}
}

func at(hour, min int) time.Time {
	return time.Date(2024, time.March, 5, hour, min, 0, 0, tokyo)
}

func TestDeriveTimedMedicationNotYetOverdue(t *testing.T) {
	input := dayInput(at(7, 59))
	input.Medications = []MedicationSchedule{{
		ScheduleID:    "sched-1",
		Name:          "Amlodipine",
		TargetDosage:  1,
		DosageUnit:    "pill",
		ReminderTimes: []time.Time{at(8, 0)},
	}}

	result := Derive(input)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Medications) != 1 {
		t.Fatalf("expected one pending medication, got %d", len(result.Medications))
	}
	got := result.Medications[0]
	if got.IsOverdue {
		t.Fatalf("expected dose before its reminder time not to be overdue")
	}
	if !got.ScheduledTime.Equal(at(8, 0)) {
		t.Fatalf("expected scheduled time 08:00, got %v", got.ScheduledTime)
	}
}

func TestDeriveOverdueThresholdIsStrict(t *testing.T) {
	reminder := at(8, 0)

	cases := []struct {
		name    string
		now     time.Time
		overdue bool
	}{
		{"exactly two hours late", reminder.Add(2 * time.Hour), false},
		{"two hours one second late", reminder.Add(2*time.Hour + time.Second), true},
		{"two hours one minute late", reminder.Add(2*time.Hour + time.Minute), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := dayInput(tc.now)
			input.Medications = []MedicationSchedule{{
				ScheduleID:    "sched-1",
				Name:          "Amlodipine",
				ReminderTimes: []time.Time{reminder},
			}}

			result := Derive(input)
			if len(result.Medications) != 1 {
				t.Fatalf("expected one pending medication, got %d", len(result.Medications))
			}
			if result.Medications[0].IsOverdue != tc.overdue {
				t.Fatalf("expected overdue=%v at %v", tc.overdue, tc.now)
			}
		})
	}
}

func TestDeriveCompletionWindowMatching(t *testing.T) {
	reminder := at(8, 0)

	cases := []struct {
		name    string
		loggedA time.Time
		removed bool
	}{
		{"logged exactly at reminder", reminder, true},
		{"logged two hours early", reminder.Add(-2 * time.Hour), true},
		{"logged two hours late", reminder.Add(2 * time.Hour), true},
		{"logged two hours one minute late", reminder.Add(2*time.Hour + time.Minute), false},
		{"logged two hours one minute early", reminder.Add(-(2*time.Hour + time.Minute)), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			summary := emptySummary()
			summary.completed["Amlodipine"] = []time.Time{tc.loggedA}
			summary.loggedNames["Amlodipine"] = true

			input := dayInput(at(12, 0))
			input.Summary = summary
			input.Medications = []MedicationSchedule{{
				ScheduleID:    "sched-1",
				Name:          "Amlodipine",
				ReminderTimes: []time.Time{reminder},
			}}

			result := Derive(input)
			if tc.removed && len(result.Medications) != 0 {
				t.Fatalf("expected completion at %v to remove the pending dose", tc.loggedA)
			}
			if !tc.removed && len(result.Medications) != 1 {
				t.Fatalf("expected completion at %v to leave the dose pending", tc.loggedA)
			}
		})
	}
}

func TestDeriveFlexibleMedication(t *testing.T) {
	input := dayInput(at(23, 30))
	input.Medications = []MedicationSchedule{{
		ScheduleID: "sched-flex",
		Name:       "Calcitriol",
	}}

	result := Derive(input)
	if len(result.Medications) != 1 {
		t.Fatalf("expected one pending instance for the flexible schedule, got %d", len(result.Medications))
	}
	got := result.Medications[0]
	if got.IsOverdue {
		t.Fatalf("flexible schedules must never be overdue, even late in the day")
	}
	if !got.Flexible {
		t.Fatalf("expected pending instance to be marked flexible")
	}
	if !got.ScheduledTime.Equal(input.StartOfDay) {
		t.Fatalf("expected flexible anchor at start of day, got %v", got.ScheduledTime)
	}
}

func TestDeriveFlexibleMedicationSuppressedByAnySession(t *testing.T) {
	// A skipped session still counts as "logged today" for flexible
	// schedules; the name set is completion-agnostic.
	summary := emptySummary()
	summary.loggedNames["Calcitriol"] = true

	input := dayInput(at(10, 0))
	input.Summary = summary
	input.Medications = []MedicationSchedule{{
		ScheduleID: "sched-flex",
		Name:       "Calcitriol",
	}}

	result := Derive(input)
	if len(result.Medications) != 0 {
		t.Fatalf("expected no pending instance once the name was logged today")
	}
}

func TestDeriveFluidRemainingVolume(t *testing.T) {
	fluid := &FluidSchedule{
		ScheduleID:       "sched-fluid",
		VolumePerSession: 100,
		ReminderTimes:    []time.Time{at(8, 0), at(20, 0)},
	}

	cases := []struct {
		name      string
		logged    float64
		remaining float64
		emitted   bool
	}{
		{"nothing logged", 0, 200, true},
		{"partial session logged", 120, 80, true},
		{"exactly scheduled total", 200, 0, false},
		{"over scheduled total", 260, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			summary := emptySummary()
			summary.fluidTotal = tc.logged

			input := dayInput(at(9, 0))
			input.Summary = summary
			input.Fluid = fluid

			result := Derive(input)
			if !tc.emitted {
				if result.Fluid != nil {
					t.Fatalf("expected no pending fluid instance, got remaining %.0f", result.Fluid.RemainingVolume)
				}
				return
			}
			if result.Fluid == nil {
				t.Fatalf("expected a pending fluid instance")
			}
			if result.Fluid.RemainingVolume != tc.remaining {
				t.Fatalf("expected remaining %.0f, got %.0f", tc.remaining, result.Fluid.RemainingVolume)
			}
		})
	}
}

func TestDeriveFluidAggregateOverdue(t *testing.T) {
	input := dayInput(at(10, 30))
	input.Fluid = &FluidSchedule{
		ScheduleID:       "sched-fluid",
		VolumePerSession: 100,
		ReminderTimes:    []time.Time{at(8, 0), at(20, 0)},
	}

	result := Derive(input)
	if result.Fluid == nil {
		t.Fatalf("expected a pending fluid instance")
	}
	if !result.Fluid.IsOverdue {
		t.Fatalf("expected aggregate overdue once the 08:00 reminder passed the threshold")
	}

	early := dayInput(at(9, 0))
	early.Fluid = input.Fluid
	result = Derive(early)
	if result.Fluid == nil || result.Fluid.IsOverdue {
		t.Fatalf("expected no overdue flag while every reminder is within the window")
	}
}

func TestDeriveIsIdempotent(t *testing.T) {
	summary := emptySummary()
	summary.completed["Amlodipine"] = []time.Time{at(8, 10)}
	summary.loggedNames["Amlodipine"] = true
	summary.fluidTotal = 50

	input := dayInput(at(14, 0))
	input.Summary = summary
	input.Medications = []MedicationSchedule{
		{ScheduleID: "sched-2", Name: "Semintra", ReminderTimes: []time.Time{at(9, 0), at(21, 0)}},
		{ScheduleID: "sched-1", Name: "Amlodipine", ReminderTimes: []time.Time{at(8, 0)}},
		{ScheduleID: "sched-flex", Name: "Calcitriol"},
	}
	input.Fluid = &FluidSchedule{ScheduleID: "sched-fluid", VolumePerSession: 100, ReminderTimes: []time.Time{at(8, 0)}}

	first := Derive(input)
	second := Derive(input)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results for identical inputs:\nfirst:  %#v\nsecond: %#v", first, second)
	}
}

func TestDeriveOrdersByTimeThenSchedule(t *testing.T) {
	input := dayInput(at(6, 0))
	input.Medications = []MedicationSchedule{
		{ScheduleID: "sched-b", Name: "Semintra", ReminderTimes: []time.Time{at(20, 0), at(8, 0)}},
		{ScheduleID: "sched-a", Name: "Amlodipine", ReminderTimes: []time.Time{at(8, 0)}},
	}

	result := Derive(input)
	if len(result.Medications) != 3 {
		t.Fatalf("expected three pending doses, got %d", len(result.Medications))
	}
	gotOrder := []string{
		result.Medications[0].ScheduleID,
		result.Medications[1].ScheduleID,
		result.Medications[2].ScheduleID,
	}
	wantOrder := []string{"sched-a", "sched-b", "sched-b"}
	if !reflect.DeepEqual(gotOrder, wantOrder) {
		t.Fatalf("expected order %v, got %v", wantOrder, gotOrder)
	}
}

func TestDeriveDegradesToErrorState(t *testing.T) {
	summary := emptySummary()
	summary.panicOnRead = true

	input := dayInput(at(9, 0))
	input.Summary = summary
	input.Medications = []MedicationSchedule{{
		ScheduleID:    "sched-1",
		Name:          "Amlodipine",
		ReminderTimes: []time.Time{at(8, 0)},
	}}
	input.Fluid = &FluidSchedule{ScheduleID: "sched-fluid", VolumePerSession: 100, ReminderTimes: []time.Time{at(8, 0)}}

	result := Derive(input)
	if result.Err == nil {
		t.Fatalf("expected an error-state result")
	}
	if len(result.Medications) != 0 {
		t.Fatalf("expected pending medications to be emptied in the error state")
	}
	if result.Fluid != nil {
		t.Fatalf("expected no pending fluid in the error state")
	}
	if result.Date != input.Date {
		t.Fatalf("expected error state to keep the derivation date")
	}
}

func TestDeriveNilSummaryIsAnErrorState(t *testing.T) {
	input := dayInput(at(9, 0))
	input.Summary = nil

	result := Derive(input)
	if result.Err == nil {
		t.Fatalf("expected an error-state result for a missing summary")
	}
}
