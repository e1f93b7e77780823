package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type summarySourceStub struct {
	mu       sync.Mutex
	sessions map[string][]LoggedSession
	err      error
	calls    int
}

func (s *summarySourceStub) SessionsOn(ctx context.Context, petID, date string) ([]LoggedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.sessions[date], nil
}

func (s *summarySourceStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func medSession(id, name string, at time.Time, completed bool) LoggedSession {
	return LoggedSession{
		ID:              id,
		UserID:          "user-1",
		PetID:           "pet-1",
		Kind:            TreatmentKindMedication,
		At:              at,
		MedicationName:  name,
		DosageScheduled: 1,
		DosageGiven:     boolDose(completed),
		Completed:       completed,
	}
}

func boolDose(completed bool) float64 {
	if completed {
		return 1
	}
	return 0
}

func fluidSession(id string, at time.Time, volume float64) LoggedSession {
	return LoggedSession{
		ID:          id,
		UserID:      "user-1",
		PetID:       "pet-1",
		Kind:        TreatmentKindFluid,
		At:          at,
		VolumeGiven: volume,
	}
}

func TestBuildSummaryCache(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, time.March, 15, 0, 0, 0, 0, loc)

	t.Run("ignores sessions from other dates", func(t *testing.T) {
		cache := BuildSummaryCache("2024-03-15", loc, []LoggedSession{
			medSession("s1", "Amlodipine", day.Add(8*time.Hour), true),
			medSession("s2", "Amlodipine", day.AddDate(0, 0, -1).Add(8*time.Hour), true),
			fluidSession("s3", day.AddDate(0, 0, 1), 100),
		})

		if !cache.HasLoggedName("Amlodipine") {
			t.Fatalf("expected today's session to register")
		}
		if got := cache.TotalFluidVolumeToday(); got != 0 {
			t.Fatalf("expected tomorrow's fluid to be excluded, got %v", got)
		}
		if cache.HasCompletedNear("Amlodipine", day.AddDate(0, 0, -1).Add(8*time.Hour)) {
			t.Fatalf("yesterday's dose must not be indexed")
		}
	})

	t.Run("completion window matching is boundary inclusive", func(t *testing.T) {
		at := day.Add(8 * time.Hour)
		cache := BuildSummaryCache("2024-03-15", loc, []LoggedSession{
			medSession("s1", "Amlodipine", at, true),
		})

		if !cache.HasCompletedNear("Amlodipine", at.Add(2*time.Hour)) {
			t.Fatalf("exactly two hours after must match")
		}
		if !cache.HasCompletedNear("Amlodipine", at.Add(-2*time.Hour)) {
			t.Fatalf("exactly two hours before must match")
		}
		if cache.HasCompletedNear("Amlodipine", at.Add(2*time.Hour+time.Minute)) {
			t.Fatalf("beyond the window must not match")
		}
		if cache.HasCompletedNear("Benazepril", at) {
			t.Fatalf("other medication names must not match")
		}
	})

	t.Run("linked sessions match their reminder however late", func(t *testing.T) {
		reminder := day.Add(8 * time.Hour)
		linked := medSession("s1", "Amlodipine", day.Add(11*time.Hour+30*time.Minute), true)
		linked.ScheduledTime = &reminder
		cache := BuildSummaryCache("2024-03-15", loc, []LoggedSession{linked})

		if !cache.HasCompletedNear("Amlodipine", reminder) {
			t.Fatalf("a dose given 3.5 hours late still answers its reminder")
		}
		// The link is authoritative: a nearby reminder the session was not
		// logged against stays unanswered.
		if cache.HasCompletedNear("Amlodipine", day.Add(12*time.Hour)) {
			t.Fatalf("a linked session must not claim a different reminder")
		}
	})

	t.Run("skips register the name without indexing a completion", func(t *testing.T) {
		at := day.Add(8 * time.Hour)
		cache := BuildSummaryCache("2024-03-15", loc, []LoggedSession{
			medSession("s1", "Amlodipine", at, false),
		})

		if !cache.HasLoggedName("Amlodipine") {
			t.Fatalf("a skip still counts as logged for the day")
		}
		if cache.HasCompletedNear("Amlodipine", at) {
			t.Fatalf("a skip is not a completion")
		}
	})

	t.Run("fluid volume aggregates across sessions", func(t *testing.T) {
		cache := BuildSummaryCache("2024-03-15", loc, []LoggedSession{
			fluidSession("s1", day.Add(8*time.Hour), 120),
			fluidSession("s2", day.Add(18*time.Hour), 60),
		})
		if got := cache.TotalFluidVolumeToday(); got != 180 {
			t.Fatalf("expected 180 mL, got %v", got)
		}
	})
}

func TestSummaryCacheStore(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, time.March, 15, 0, 0, 0, 0, loc)
	current := day.Add(9 * time.Hour)
	now := func() time.Time { return current }

	t.Run("reuses the cache for the same date", func(t *testing.T) {
		source := &summarySourceStub{sessions: map[string][]LoggedSession{}}
		store := NewSummaryCacheStore(source, "pet-1", now, loc)

		if _, err := store.ForToday(context.Background()); err != nil {
			t.Fatalf("ForToday returned error: %v", err)
		}
		if _, err := store.ForToday(context.Background()); err != nil {
			t.Fatalf("ForToday returned error: %v", err)
		}
		if source.callCount() != 1 {
			t.Fatalf("expected one rebuild, got %d", source.callCount())
		}
	})

	t.Run("never serves a cache built for another date", func(t *testing.T) {
		source := &summarySourceStub{sessions: map[string][]LoggedSession{
			"2024-03-15": {medSession("s1", "Amlodipine", day.Add(8*time.Hour), true)},
		}}
		store := NewSummaryCacheStore(source, "pet-1", now, loc)

		cache, err := store.ForDate(context.Background(), "2024-03-15")
		if err != nil {
			t.Fatalf("ForDate returned error: %v", err)
		}
		if !cache.HasLoggedName("Amlodipine") {
			t.Fatalf("expected today's session in cache")
		}

		next, err := store.ForDate(context.Background(), "2024-03-16")
		if err != nil {
			t.Fatalf("ForDate returned error: %v", err)
		}
		if next.Date() != "2024-03-16" {
			t.Fatalf("expected a rebuild for the new date, got %s", next.Date())
		}
		if next.HasLoggedName("Amlodipine") {
			t.Fatalf("yesterday's sessions must not leak into the new date")
		}
	})

	t.Run("invalidate forces a rebuild and drops week views", func(t *testing.T) {
		source := &summarySourceStub{sessions: map[string][]LoggedSession{}}
		store := NewSummaryCacheStore(source, "pet-1", now, loc)

		if _, err := store.ForToday(context.Background()); err != nil {
			t.Fatalf("ForToday returned error: %v", err)
		}
		if _, err := store.AdherenceWeek(context.Background(), current); err != nil {
			t.Fatalf("AdherenceWeek returned error: %v", err)
		}
		before := source.callCount()

		if _, err := store.AdherenceWeek(context.Background(), current); err != nil {
			t.Fatalf("AdherenceWeek returned error: %v", err)
		}
		if source.callCount() != before {
			t.Fatalf("cached week view must not re-read sessions")
		}

		store.Invalidate()
		if _, err := store.ForToday(context.Background()); err != nil {
			t.Fatalf("ForToday returned error: %v", err)
		}
		if _, err := store.AdherenceWeek(context.Background(), current); err != nil {
			t.Fatalf("AdherenceWeek returned error: %v", err)
		}
		if source.callCount() == before {
			t.Fatalf("invalidation must cascade to every derived view")
		}
	})

	t.Run("propagates source failures", func(t *testing.T) {
		source := &summarySourceStub{err: errors.New("disk unavailable")}
		store := NewSummaryCacheStore(source, "pet-1", now, loc)
		if _, err := store.ForToday(context.Background()); err == nil {
			t.Fatalf("expected error from source")
		}
	})

	t.Run("rejects malformed stored sessions", func(t *testing.T) {
		source := &summarySourceStub{sessions: map[string][]LoggedSession{
			"2024-03-15": {{ID: "", Kind: TreatmentKindFluid, At: day}},
		}}
		store := NewSummaryCacheStore(source, "pet-1", now, loc)
		_, err := store.ForToday(context.Background())
		var dErr *DataFormatError
		if !errors.As(err, &dErr) {
			t.Fatalf("expected DataFormatError, got %v", err)
		}
	})

	t.Run("week rollup covers seven days ending on the reference", func(t *testing.T) {
		source := &summarySourceStub{sessions: map[string][]LoggedSession{
			"2024-03-15": {medSession("s1", "Amlodipine", day.Add(8*time.Hour), true)},
			"2024-03-10": {fluidSession("s2", day.AddDate(0, 0, -5).Add(18*time.Hour), 100)},
		}}
		store := NewSummaryCacheStore(source, "pet-1", now, loc)

		week, err := store.AdherenceWeek(context.Background(), current)
		if err != nil {
			t.Fatalf("AdherenceWeek returned error: %v", err)
		}
		if len(week) != 7 {
			t.Fatalf("expected 7 days, got %d", len(week))
		}
		if week[0].Date != "2024-03-09" || week[6].Date != "2024-03-15" {
			t.Fatalf("unexpected window: %s .. %s", week[0].Date, week[6].Date)
		}
		if week[6].DosesCompleted != 1 {
			t.Fatalf("expected one completed dose on the final day")
		}
		if week[1].FluidVolumeGiven != 100 {
			t.Fatalf("expected 100 mL on 2024-03-10, got %v", week[1].FluidVolumeGiven)
		}
	})
}
