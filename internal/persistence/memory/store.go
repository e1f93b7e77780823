// Package memory is the in-memory twin of the sqlite and postgres stores,
// used by tests and by the CLI's demo mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

// Store keeps schedules, sessions and queued operations in maps guarded by
// one mutex. It implements every storage-facing application contract.
type Store struct {
	mu        sync.RWMutex
	loc       *time.Location
	schedules map[string]application.Schedule
	sessions  map[string]application.LoggedSession
	queue     []application.QueuedOperation
}

// NewStore returns an empty store using loc for day keys.
func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		loc:       loc,
		schedules: make(map[string]application.Schedule),
		sessions:  make(map[string]application.LoggedSession),
	}
}

// --- application.ScheduleRepository ---

// CreateSchedule stores a new schedule.
func (s *Store) CreateSchedule(ctx context.Context, schedule application.Schedule) (application.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; ok {
		return application.Schedule{}, persistence.ErrDuplicate
	}
	s.schedules[schedule.ID] = schedule
	return schedule, nil
}

// GetSchedule retrieves a schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (application.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return application.Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

// UpdateSchedule replaces an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, schedule application.Schedule) (application.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; !ok {
		return application.Schedule{}, persistence.ErrNotFound
	}
	s.schedules[schedule.ID] = schedule
	return schedule, nil
}

// DeleteSchedule removes a schedule by id.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

// ListSchedules returns every schedule for the pet, oldest first.
func (s *Store) ListSchedules(ctx context.Context, petID string) ([]application.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var schedules []application.Schedule
	for _, schedule := range s.schedules {
		if schedule.PetID == petID {
			schedules = append(schedules, schedule)
		}
	}
	sortSchedules(schedules)
	return schedules, nil
}

// --- application.ScheduleSource ---

// ActiveFluidSchedule returns the pet's active fluid schedule, nil when none
// exists.
func (s *Store) ActiveFluidSchedule(ctx context.Context, petID string) (*application.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *application.Schedule
	for _, schedule := range s.schedules {
		if schedule.PetID != petID || schedule.Kind != application.TreatmentKindFluid || !schedule.Active {
			continue
		}
		candidate := schedule
		if newest == nil || candidate.UpdatedAt.After(newest.UpdatedAt) {
			newest = &candidate
		}
	}
	return newest, nil
}

// ActiveMedicationSchedules returns the pet's active medication schedules.
func (s *Store) ActiveMedicationSchedules(ctx context.Context, petID string) ([]application.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var schedules []application.Schedule
	for _, schedule := range s.schedules {
		if schedule.PetID == petID && schedule.Kind == application.TreatmentKindMedication && schedule.Active {
			schedules = append(schedules, schedule)
		}
	}
	sortSchedules(schedules)
	return schedules, nil
}

// --- application.SessionStore ---

// CreateSession stores a logged session.
func (s *Store) CreateSession(ctx context.Context, session application.LoggedSession) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return "", persistence.ErrDuplicate
	}
	s.sessions[session.ID] = session
	return session.ID, nil
}

// UpdateSession replaces the old session with the new one as one unit.
func (s *Store) UpdateSession(ctx context.Context, oldSession, newSession application.LoggedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[oldSession.ID]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.sessions, oldSession.ID)
	s.sessions[newSession.ID] = newSession
	return nil
}

// --- application.SummarySource ---

// SessionsOn returns the pet's sessions for one calendar date, oldest first.
func (s *Store) SessionsOn(ctx context.Context, petID, date string) ([]application.LoggedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sessions []application.LoggedSession
	for _, session := range s.sessions {
		if session.PetID == petID && application.DayKey(session.At, s.loc) == date {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].At.Equal(sessions[j].At) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].At.Before(sessions[j].At)
	})
	return sessions, nil
}

// --- application.QueueStore ---

// AppendOperation appends to the queue.
func (s *Store) AppendOperation(ctx context.Context, op application.QueuedOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.queue {
		if existing.ID == op.ID {
			return persistence.ErrDuplicate
		}
	}
	s.queue = append(s.queue, op)
	return nil
}

// ListOperations returns queued operations in enqueue order.
func (s *Store) ListOperations(ctx context.Context) ([]application.QueuedOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]application.QueuedOperation, len(s.queue))
	copy(out, s.queue)
	return out, nil
}

// RemoveOperation removes a replayed operation by id.
func (s *Store) RemoveOperation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, op := range s.queue {
		if op.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func sortSchedules(schedules []application.Schedule) {
	sort.Slice(schedules, func(i, j int) bool {
		if schedules[i].CreatedAt.Equal(schedules[j].CreatedAt) {
			return schedules[i].ID < schedules[j].ID
		}
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})
}
