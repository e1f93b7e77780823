package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/connectivity"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/derivation"
)

// ScheduleSource loads the active schedule snapshot. The fluid and medication
// queries are independent collaborators; the coordinator joins them on load.
type ScheduleSource interface {
	ActiveFluidSchedule(ctx context.Context, petID string) (*Schedule, error)
	ActiveMedicationSchedules(ctx context.Context, petID string) ([]Schedule, error)
}

// SessionStore persists logged sessions. Sessions are read back only through
// the summary cache, never ad hoc.
type SessionStore interface {
	CreateSession(ctx context.Context, session LoggedSession) (string, error)
	UpdateSession(ctx context.Context, oldSession, newSession LoggedSession) error
}

// ConnectivitySource exposes the tri-state connectivity signal, read once per
// commit attempt.
type ConnectivitySource interface {
	Status() connectivity.State
}

// Notifier schedules and cancels local treatment reminders. Best-effort from
// the coordinator's perspective.
type Notifier interface {
	ScheduleFor(schedule Schedule) (int, error)
	CancelFor(scheduleID string) (int, error)
}

// AnalyticsEvent describes a tracked action.
type AnalyticsEvent struct {
	Name   string
	Fields map[string]any
}

// Analytics receives tracking events. Never awaited for correctness.
type Analytics interface {
	Track(event AnalyticsEvent) error
}

// PendingState is the derived pending treatment set the UI observes. Err
// carries a human-readable message when a load or derivation failed; the
// medications list is emptied for derivation failures and kept
// stale-but-present for read failures.
type PendingState struct {
	Date        string
	Medications []derivation.PendingMedication
	Fluid       *derivation.PendingFluid
	Err         *StateError
	Generation  uint64
}

func (p PendingState) clone() PendingState {
	out := p
	if len(p.Medications) > 0 {
		out.Medications = make([]derivation.PendingMedication, len(p.Medications))
		copy(out.Medications, p.Medications)
	}
	if p.Fluid != nil {
		fluid := *p.Fluid
		if len(p.Fluid.ReminderTimes) > 0 {
			fluid.ReminderTimes = make([]time.Time, len(p.Fluid.ReminderTimes))
			copy(fluid.ReminderTimes, p.Fluid.ReminderTimes)
		}
		out.Fluid = &fluid
	}
	return out
}

type mutationPhase int

const (
	phaseIdle mutationPhase = iota
	phaseApplying
	phaseCommitting
	phaseReverting
)

func (p mutationPhase) String() string {
	switch p {
	case phaseApplying:
		return "applying"
	case phaseCommitting:
		return "committing"
	case phaseReverting:
		return "reverting"
	default:
		return "idle"
	}
}

// TreatmentServiceConfig wires the coordinator's collaborators. Notifier,
// Analytics, Queue and Connectivity are optional; storage and cache are not.
type TreatmentServiceConfig struct {
	Principal    Principal
	Schedules    ScheduleSource
	Sessions     SessionStore
	Cache        *SummaryCacheStore
	Queue        *OfflineQueue
	Connectivity ConnectivitySource
	Notifier     Notifier
	Analytics    Analytics
	IDGenerator  func() string
	Now          func() time.Time
	Location     *time.Location
	Logger       *slog.Logger
}

// TreatmentService is the optimistic mutation coordinator plus the recompute
// pipeline around the derivation engine. Mutations are serialized: a second
// mutation issued while one is committing queues behind it. Recomputes are
// generation-stamped and last-applied-wins, so a superseding recompute is
// never blocked by an in-flight commit and never clobbered by a stale one.
type TreatmentService struct {
	mu sync.Mutex

	principal    Principal
	schedules    ScheduleSource
	sessions     SessionStore
	cache        *SummaryCacheStore
	queue        *OfflineQueue
	connectivity ConnectivitySource
	notifier     Notifier
	analytics    Analytics
	idGenerator  func() string
	now          func() time.Time
	loc          *time.Location
	logger       *slog.Logger

	generation uint64

	stateMu     sync.Mutex
	state       PendingState
	scheduleSet ScheduleSet
	subscribers []chan PendingState
	phase       mutationPhase

	// sideEffectsDone, when set, runs after the fire-and-forget side effects
	// of a mutation finish. Tests use it to join the goroutine.
	sideEffectsDone func()
}

// NewTreatmentService wires the coordinator.
func NewTreatmentService(cfg TreatmentServiceConfig) *TreatmentService {
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &TreatmentService{
		principal:    cfg.Principal,
		schedules:    cfg.Schedules,
		sessions:     cfg.Sessions,
		cache:        cfg.Cache,
		queue:        cfg.Queue,
		connectivity: cfg.Connectivity,
		notifier:     cfg.Notifier,
		analytics:    cfg.Analytics,
		idGenerator:  idGenerator,
		now:          now,
		loc:          loc,
		logger:       defaultLogger(cfg.Logger),
	}
}

// State returns a copy of the current pending treatment set.
func (s *TreatmentService) State() PendingState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state.clone()
}

// Subscribe returns a channel receiving every published pending state. Slow
// receivers miss intermediate states rather than blocking the pipeline.
func (s *TreatmentService) Subscribe() <-chan PendingState {
	ch := make(chan PendingState, 8)
	s.stateMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.stateMu.Unlock()
	return ch
}

// Load fetches the fluid and medication schedules in parallel, joins them,
// and recomputes. A failure in either read aborts the combined load with one
// error and keeps the previous state visible, annotated.
func (s *TreatmentService) Load(ctx context.Context) error {
	logger := serviceLogger(ctx, s.logger, "TreatmentService", "Load", "pet_id", s.principal.PetID)

	var (
		wg       sync.WaitGroup
		fluid    *Schedule
		meds     []Schedule
		fluidErr error
		medErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		fluid, fluidErr = s.schedules.ActiveFluidSchedule(ctx, s.principal.PetID)
	}()
	go func() {
		defer wg.Done()
		meds, medErr = s.schedules.ActiveMedicationSchedules(ctx, s.principal.PetID)
	}()
	wg.Wait()

	// Partial failure must not silently fall back to defaults for the other
	// half of the join.
	if fluidErr != nil || medErr != nil {
		err := fluidErr
		if err == nil {
			err = medErr
		}
		combined := fmt.Errorf("load active schedules: %w", err)
		logger.Error("schedule load failed", "error_kind", ErrorKind(err), "error", err)
		s.annotateError("couldn't load treatment schedules", combined)
		return combined
	}

	if fluid != nil {
		if err := fluid.Validate(); err != nil {
			s.annotateError("treatment schedule data is malformed", err)
			return err
		}
	}
	for _, med := range meds {
		if err := med.Validate(); err != nil {
			s.annotateError("treatment schedule data is malformed", err)
			return err
		}
	}

	s.stateMu.Lock()
	s.scheduleSet = ScheduleSet{Fluid: fluid, Medications: meds}
	s.stateMu.Unlock()

	return s.Recompute(ctx)
}

// Recompute is the single recompute entry point: it rebuilds the daily
// summary for the current date when needed and reruns the derivation engine.
// Every trigger funnels through here: schedule changes, cache invalidation,
// explicit refresh, the app-resume date check.
func (s *TreatmentService) Recompute(ctx context.Context) error {
	gen := atomic.AddUint64(&s.generation, 1)
	now := s.now()
	date := DayKey(now, s.loc)

	cache, err := s.cache.ForDate(ctx, date)
	if err != nil {
		// Read failure: previous pendings stay visible, stale but present.
		s.annotateErrorWithGeneration(gen, "couldn't refresh today's treatments", err)
		return err
	}

	set := s.currentScheduleSet()
	result := derivation.Derive(set.derivationInput(now, now, s.loc, cache))

	state := PendingState{
		Date:        result.Date,
		Medications: result.Medications,
		Fluid:       result.Fluid,
		Generation:  gen,
	}
	if result.Err != nil {
		state.Err = &StateError{Message: "couldn't work out today's pending treatments", Cause: result.Err}
	}
	s.publish(state)

	if state.Err != nil {
		return state.Err
	}
	return nil
}

// CheckDateRollover recomputes when the local calendar date moved past the
// date of the last derivation. Wired to app-foreground events.
func (s *TreatmentService) CheckDateRollover(ctx context.Context) error {
	s.stateMu.Lock()
	lastDate := s.state.Date
	s.stateMu.Unlock()
	if lastDate == DayKey(s.now(), s.loc) {
		return nil
	}
	return s.Recompute(ctx)
}

// HandleConnectivityRestored drains the offline queue and reconciles. Wired
// to the connectivity monitor's offline-to-connected transition.
func (s *TreatmentService) HandleConnectivityRestored(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	applied, err := s.queue.Drain(ctx)
	if applied > 0 {
		s.cache.Invalidate()
		if rerr := s.Recompute(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// ApplyScheduleSet replaces the schedule snapshot and recomputes. Used by the
// schedule service after a configuration write.
func (s *TreatmentService) ApplyScheduleSet(ctx context.Context, set ScheduleSet) error {
	s.stateMu.Lock()
	s.scheduleSet = set
	s.stateMu.Unlock()
	return s.Recompute(ctx)
}

// Confirm logs the referenced treatment as given, using the schedule's target
// values at the current wall-clock time. For timed medications scheduledTime
// names the reminder being answered; pass the zero time for flexible
// schedules and fluid therapy.
func (s *TreatmentService) Confirm(ctx context.Context, scheduleID string, scheduledTime time.Time) error {
	if err := s.checkPreconditions(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.currentScheduleSet().FindSchedule(scheduleID)
	if !ok {
		return ErrNotFound
	}

	session := s.buildSession(sched, scheduledTime, true, 0)
	event := AnalyticsEvent{Name: "treatment_confirmed", Fields: map[string]any{
		"kind":        string(sched.Kind),
		"schedule_id": sched.ID,
	}}

	return s.runMutation(ctx, "Confirm", sched,
		func(state *PendingState) { removePendingDose(state, sched, scheduledTime) },
		func(ctx context.Context) error { return s.commitCreate(ctx, session) },
		event,
	)
}

// LogFluid logs a fluid session with an explicit volume against the active
// fluid schedule. A volume of zero or less falls back to the schedule target.
func (s *TreatmentService) LogFluid(ctx context.Context, volume float64) error {
	if err := s.checkPreconditions(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fluid, ok := s.currentScheduleSet().ActiveFluid()
	if !ok {
		return ErrNotFound
	}
	if volume <= 0 {
		volume = fluid.VolumePerSession
	}

	session := s.buildSession(fluid, time.Time{}, true, volume)
	event := AnalyticsEvent{Name: "fluid_logged", Fields: map[string]any{
		"kind":        string(fluid.Kind),
		"schedule_id": fluid.ID,
		"volume":      volume,
	}}

	return s.runMutation(ctx, "LogFluid", fluid,
		func(state *PendingState) { reducePendingFluid(state, volume) },
		func(ctx context.Context) error { return s.commitCreate(ctx, session) },
		event,
	)
}

// Skip records an explicit zero-dosage skip for a medication schedule.
func (s *TreatmentService) Skip(ctx context.Context, scheduleID string, scheduledTime time.Time) error {
	if err := s.checkPreconditions(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.currentScheduleSet().FindSchedule(scheduleID)
	if !ok {
		return ErrNotFound
	}
	if sched.Kind != TreatmentKindMedication {
		vErr := &ValidationError{}
		vErr.add("schedule_id", "skip applies to medication schedules")
		return vErr
	}

	session := s.buildSession(sched, scheduledTime, false, 0)
	event := AnalyticsEvent{Name: "treatment_skipped", Fields: map[string]any{
		"kind":        string(sched.Kind),
		"schedule_id": sched.ID,
	}}

	return s.runMutation(ctx, "Skip", sched,
		func(state *PendingState) { removePendingDose(state, sched, scheduledTime) },
		func(ctx context.Context) error { return s.commitCreate(ctx, session) },
		event,
	)
}

// EditSession replaces a logged session with a corrected one, atomically from
// the caller's perspective.
func (s *TreatmentService) EditSession(ctx context.Context, oldSession, newSession LoggedSession) error {
	if err := s.checkPreconditions(); err != nil {
		return err
	}
	if err := newSession.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sched, _ := s.currentScheduleSet().FindSchedule(newSession.ScheduleID)
	event := AnalyticsEvent{Name: "session_edited", Fields: map[string]any{
		"kind":       string(newSession.Kind),
		"session_id": newSession.ID,
	}}

	return s.runMutation(ctx, "EditSession", sched,
		func(state *PendingState) { applyEditedSession(state, oldSession, newSession) },
		func(ctx context.Context) error { return s.commitUpdate(ctx, oldSession, newSession) },
		event,
	)
}

// runMutation drives the per-mutation state machine:
// idle -> applying -> committing -> {idle | reverting}. The optimistic patch
// is applied synchronously before any I/O; both commit outcomes reconcile by
// recomputation from backing data rather than fine-grained undo.
func (s *TreatmentService) runMutation(ctx context.Context, op string, sched Schedule, patch func(*PendingState), commit func(context.Context) error, event AnalyticsEvent) error {
	logger := serviceLogger(ctx, s.logger, "TreatmentService", op, "schedule_id", sched.ID)

	s.setPhase(phaseApplying, logger)
	s.applyOptimisticPatch(patch)

	s.setPhase(phaseCommitting, logger)
	if err := commit(ctx); err != nil {
		s.setPhase(phaseReverting, logger)
		logger.Error("commit failed, reverting to backing state", "error_kind", ErrorKind(err), "error", err)
		s.reconcile(ctx, logger)
		s.setPhase(phaseIdle, logger)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.reconcile(ctx, logger)
	event.Fields["outcome"] = "success"
	s.fireSideEffects(sched, event, logger)
	s.setPhase(phaseIdle, logger)
	return nil
}

// reconcile invalidates the day cache (and the views cascading off it) and
// rederives from backing data.
func (s *TreatmentService) reconcile(ctx context.Context, logger *slog.Logger) {
	s.cache.Invalidate()
	if err := s.Recompute(ctx); err != nil {
		logger.Warn("recompute after mutation failed", "error", err)
	}
}

func (s *TreatmentService) commitCreate(ctx context.Context, session LoggedSession) error {
	if s.connectivity != nil && s.connectivity.Status() == connectivity.StateOffline {
		if s.queue == nil {
			return fmt.Errorf("offline with no operation queue configured")
		}
		return s.queue.Enqueue(ctx, QueuedOperation{
			Type:    QueuedOpCreateSession,
			PetID:   session.PetID,
			UserID:  session.UserID,
			Session: session,
		})
	}
	_, err := s.sessions.CreateSession(ctx, session)
	return err
}

func (s *TreatmentService) commitUpdate(ctx context.Context, oldSession, newSession LoggedSession) error {
	if s.connectivity != nil && s.connectivity.Status() == connectivity.StateOffline {
		if s.queue == nil {
			return fmt.Errorf("offline with no operation queue configured")
		}
		previous := oldSession
		return s.queue.Enqueue(ctx, QueuedOperation{
			Type:     QueuedOpUpdateSession,
			PetID:    newSession.PetID,
			UserID:   newSession.UserID,
			Session:  newSession,
			Previous: &previous,
		})
	}
	return s.sessions.UpdateSession(ctx, oldSession, newSession)
}

// fireSideEffects runs the success-only side channels: reminder rescheduling
// and analytics. They are out-of-band; failures and panics are logged as
// diagnostics and never reach the mutation's outcome.
func (s *TreatmentService) fireSideEffects(sched Schedule, event AnalyticsEvent, logger *slog.Logger) {
	notifier := s.notifier
	analytics := s.analytics
	done := s.sideEffectsDone

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("side effect panicked", "panic", r)
			}
			if done != nil {
				done()
			}
		}()

		if notifier != nil && sched.ID != "" {
			if count, err := notifier.CancelFor(sched.ID); err != nil {
				logger.Warn("reminder cancel failed", "error", err)
			} else {
				logger.Debug("reminders cancelled", "count", count)
			}
			if sched.Active {
				if count, err := notifier.ScheduleFor(sched); err != nil {
					logger.Warn("reminder scheduling failed", "error", err)
				} else {
					logger.Debug("reminders scheduled", "count", count)
				}
			}
		}

		if analytics != nil {
			if err := analytics.Track(event); err != nil {
				logger.Debug("analytics event dropped", "event", event.Name, "error", err)
			}
		}
	}()
}

func (s *TreatmentService) buildSession(sched Schedule, scheduledTime time.Time, completed bool, fluidVolume float64) LoggedSession {
	session := LoggedSession{
		ID:         s.idGenerator(),
		UserID:     s.principal.UserID,
		PetID:      s.principal.PetID,
		Kind:       sched.Kind,
		At:         s.now(),
		ScheduleID: sched.ID,
	}
	if !scheduledTime.IsZero() {
		at := scheduledTime
		session.ScheduledTime = &at
	}
	switch sched.Kind {
	case TreatmentKindMedication:
		session.MedicationName = sched.MedicationName
		session.DosageScheduled = sched.TargetDosage
		session.Completed = completed
		if completed {
			session.DosageGiven = sched.TargetDosage
		}
	case TreatmentKindFluid:
		if fluidVolume <= 0 {
			fluidVolume = sched.VolumePerSession
		}
		session.VolumeGiven = fluidVolume
	}
	return session
}

func (s *TreatmentService) checkPreconditions() error {
	if s.principal.UserID == "" {
		return ErrNoAuthenticatedUser
	}
	if s.principal.PetID == "" {
		return ErrNoPetResolved
	}
	return nil
}

func (s *TreatmentService) currentScheduleSet() ScheduleSet {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.scheduleSet
}

// applyOptimisticPatch updates the visible pending state synchronously,
// before any I/O.
func (s *TreatmentService) applyOptimisticPatch(patch func(*PendingState)) {
	gen := atomic.AddUint64(&s.generation, 1)

	s.stateMu.Lock()
	next := s.state.clone()
	s.stateMu.Unlock()

	patch(&next)
	next.Generation = gen
	s.publish(next)
}

// annotateError keeps the previously-known-good pendings visible and attaches
// a structured error to them.
func (s *TreatmentService) annotateError(message string, cause error) {
	s.annotateErrorWithGeneration(atomic.AddUint64(&s.generation, 1), message, cause)
}

func (s *TreatmentService) annotateErrorWithGeneration(gen uint64, message string, cause error) {
	s.stateMu.Lock()
	next := s.state.clone()
	s.stateMu.Unlock()

	next.Err = &StateError{Message: message, Cause: cause}
	next.Generation = gen
	s.publish(next)
}

// publish installs a state if it is fresher than the current one and fans it
// out to subscribers. Stale generations are dropped: last applied wins.
func (s *TreatmentService) publish(state PendingState) {
	s.stateMu.Lock()
	if state.Generation < s.state.Generation {
		s.stateMu.Unlock()
		return
	}
	s.state = state
	subscribers := make([]chan PendingState, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.stateMu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- state.clone():
		default:
		}
	}
}

func (s *TreatmentService) setPhase(phase mutationPhase, logger *slog.Logger) {
	s.stateMu.Lock()
	s.phase = phase
	s.stateMu.Unlock()
	logger.Debug("mutation phase", "phase", phase.String())
}

// removePendingDose drops the pending instance answering the given schedule
// and reminder time. Flexible schedules have a single time-agnostic instance.
func removePendingDose(state *PendingState, sched Schedule, scheduledTime time.Time) {
	if sched.Kind == TreatmentKindFluid {
		reducePendingFluid(state, sched.VolumePerSession)
		return
	}
	kept := state.Medications[:0]
	for _, med := range state.Medications {
		if med.ScheduleID == sched.ID {
			if med.Flexible || scheduledTime.IsZero() || med.ScheduledTime.Equal(scheduledTime) {
				continue
			}
		}
		kept = append(kept, med)
	}
	state.Medications = kept
}

// reducePendingFluid lowers the remaining volume, removing the instance when
// nothing is owed anymore.
func reducePendingFluid(state *PendingState, volume float64) {
	if state.Fluid == nil {
		return
	}
	remaining := state.Fluid.RemainingVolume - volume
	if remaining <= 0 {
		state.Fluid = nil
		return
	}
	fluid := *state.Fluid
	fluid.RemainingVolume = remaining
	state.Fluid = &fluid
}

// applyEditedSession provisionally reshapes the pending set for an edited
// session; the post-commit recompute settles the exact answer.
func applyEditedSession(state *PendingState, oldSession, newSession LoggedSession) {
	switch newSession.Kind {
	case TreatmentKindMedication:
		if !newSession.Completed {
			return
		}
		kept := state.Medications[:0]
		for _, med := range state.Medications {
			if med.Name == newSession.MedicationName &&
				(med.Flexible || derivation.WithinCompletionWindow(med.ScheduledTime, newSession.At)) {
				continue
			}
			kept = append(kept, med)
		}
		state.Medications = kept
	case TreatmentKindFluid:
		reducePendingFluid(state, newSession.VolumeGiven-oldSession.VolumeGiven)
	}
}
