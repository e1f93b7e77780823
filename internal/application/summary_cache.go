package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/derivation"
)

// SummarySource supplies the logged sessions a daily summary is built from.
// The engine never re-fetches sessions ad hoc; everything goes through here.
type SummarySource interface {
	SessionsOn(ctx context.Context, petID, date string) ([]LoggedSession, error)
}

// SummaryCache is the date-scoped aggregate over one day's logged sessions:
// the set of medication names logged, a time index of completed medication
// sessions, and the total fluid volume given. It is valid for exactly one
// calendar date and immutable once built.
type SummaryCache struct {
	date       string
	names      map[string]struct{}
	completed  []completedDose
	fluidTotal float64

	medicationCount int
	skipCount       int
}

type completedDose struct {
	name      string
	at        time.Time
	scheduled *time.Time
}

// BuildSummaryCache aggregates sessions into a cache for the given date.
// Sessions falling on another calendar date (in loc) are ignored, so a
// source returning a wider window cannot poison the aggregate.
func BuildSummaryCache(date string, loc *time.Location, sessions []LoggedSession) *SummaryCache {
	cache := &SummaryCache{
		date:  date,
		names: make(map[string]struct{}),
	}
	for _, session := range sessions {
		if DayKey(session.At, loc) != date {
			continue
		}
		switch session.Kind {
		case TreatmentKindMedication:
			cache.medicationCount++
			cache.names[session.MedicationName] = struct{}{}
			if session.Completed {
				dose := completedDose{name: session.MedicationName, at: session.At}
				if session.ScheduledTime != nil {
					scheduled := *session.ScheduledTime
					dose.scheduled = &scheduled
				}
				cache.completed = append(cache.completed, dose)
			} else if session.IsSkip() {
				cache.skipCount++
			}
		case TreatmentKindFluid:
			cache.fluidTotal += session.VolumeGiven
		}
	}
	return cache
}

// Date returns the calendar date the cache is valid for.
func (c *SummaryCache) Date() string {
	return c.date
}

// HasCompletedNear reports whether a completed session for the named
// medication answers the reminder at t. A session carrying a scheduled-time
// link matches exactly the reminder it was logged against, however late the
// dose was given; sessions without a link match any reminder within the
// completion window of their logged time, boundary inclusive.
func (c *SummaryCache) HasCompletedNear(name string, t time.Time) bool {
	for _, dose := range c.completed {
		if dose.name != name {
			continue
		}
		if dose.scheduled != nil {
			if dose.scheduled.Equal(t) {
				return true
			}
			continue
		}
		if derivation.WithinCompletionWindow(dose.at, t) {
			return true
		}
	}
	return false
}

// HasLoggedName reports whether any session, completed or skipped, exists
// for the named medication on the cache date.
//
// Matching is by name only: dosage-variant schedules sharing a medication
// name are treated as one unit for the daily check. Known limitation,
// preserved deliberately.
func (c *SummaryCache) HasLoggedName(name string) bool {
	_, ok := c.names[name]
	return ok
}

// LoggedNamesToday returns the sorted set of medication names logged on the
// cache date, regardless of the completed flag.
func (c *SummaryCache) LoggedNamesToday() []string {
	out := make([]string, 0, len(c.names))
	for name := range c.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TotalFluidVolumeToday returns the summed volume given on the cache date.
func (c *SummaryCache) TotalFluidVolumeToday() float64 {
	return c.fluidTotal
}

// AdherenceSummary is a day-level rollup used by dashboard views.
type AdherenceSummary struct {
	Date             string
	MedicationsDosed int
	DosesCompleted   int
	DosesSkipped     int
	FluidVolumeGiven float64
}

// adherence derives the rollup from the cache aggregates.
func (c *SummaryCache) adherence() AdherenceSummary {
	return AdherenceSummary{
		Date:             c.date,
		MedicationsDosed: c.medicationCount,
		DosesCompleted:   len(c.completed),
		DosesSkipped:     c.skipCount,
		FluidVolumeGiven: c.fluidTotal,
	}
}

// SummaryCacheStore owns the current daily summary plus the derived views
// keyed off the same underlying sessions. A read against a different date
// than the cached one always rebuilds from the session source; stale-date
// data is never served. Invalidation cascades to every derived view.
type SummaryCacheStore struct {
	mu     sync.Mutex
	source SummarySource
	petID  string
	now    func() time.Time
	loc    *time.Location

	current   *SummaryCache
	weekViews map[string][]AdherenceSummary
}

// NewSummaryCacheStore wires a cache store for one pet.
func NewSummaryCacheStore(source SummarySource, petID string, now func() time.Time, loc *time.Location) *SummaryCacheStore {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &SummaryCacheStore{
		source:    source,
		petID:     petID,
		now:       now,
		loc:       loc,
		weekViews: make(map[string][]AdherenceSummary),
	}
}

// ForDate returns the summary cache for the given date, rebuilding it from
// the session source when the cached date differs or nothing is cached yet.
func (s *SummaryCacheStore) ForDate(ctx context.Context, date string) (*SummaryCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forDateLocked(ctx, date)
}

// ForToday returns the summary cache for the current calendar date. A date
// rollover since the last build triggers a fresh rebuild.
func (s *SummaryCacheStore) ForToday(ctx context.Context) (*SummaryCache, error) {
	return s.ForDate(ctx, DayKey(s.now(), s.loc))
}

func (s *SummaryCacheStore) forDateLocked(ctx context.Context, date string) (*SummaryCache, error) {
	if s.current != nil && s.current.date == date {
		return s.current, nil
	}

	if s.source == nil {
		return nil, fmt.Errorf("summary source not configured")
	}
	sessions, err := s.source.SessionsOn(ctx, s.petID, date)
	if err != nil {
		return nil, fmt.Errorf("rebuild daily summary for %s: %w", date, err)
	}
	for _, session := range sessions {
		if err := session.Validate(); err != nil {
			return nil, err
		}
	}

	s.current = BuildSummaryCache(date, s.loc, sessions)
	return s.current, nil
}

// Invalidate drops the day cache and every derived view. Called on any
// session create, update or delete.
func (s *SummaryCacheStore) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.weekViews = make(map[string][]AdherenceSummary)
	s.mu.Unlock()
}

// AdherenceToday returns the day-level rollup for the current date.
func (s *SummaryCacheStore) AdherenceToday(ctx context.Context) (AdherenceSummary, error) {
	cache, err := s.ForToday(ctx)
	if err != nil {
		return AdherenceSummary{}, err
	}
	return cache.adherence(), nil
}

// AdherenceWeek returns day-level rollups for the seven days ending on the
// reference day. The result is cached as a week-windowed view keyed by its
// final date and dropped on Invalidate together with the day cache.
func (s *SummaryCacheStore) AdherenceWeek(ctx context.Context, reference time.Time) ([]AdherenceSummary, error) {
	key := DayKey(reference, s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.weekViews[key]; ok {
		out := make([]AdherenceSummary, len(cached))
		copy(out, cached)
		return out, nil
	}

	if s.source == nil {
		return nil, fmt.Errorf("summary source not configured")
	}

	days := make([]AdherenceSummary, 0, 7)
	for offset := -6; offset <= 0; offset++ {
		day := reference.In(s.loc).AddDate(0, 0, offset)
		date := DayKey(day, s.loc)
		sessions, err := s.source.SessionsOn(ctx, s.petID, date)
		if err != nil {
			return nil, fmt.Errorf("rebuild weekly summary for %s: %w", date, err)
		}
		days = append(days, BuildSummaryCache(date, s.loc, sessions).adherence())
	}

	cached := make([]AdherenceSummary, len(days))
	copy(cached, days)
	s.weekViews[key] = cached

	return days, nil
}
