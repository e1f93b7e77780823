// Package notify keeps the device-local treatment reminders in step with the
// schedule configuration.
package notify

import (
	"log/slog"
	"sync"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
)

// LocalScheduler implements application.Notifier with an in-process reminder
// table. One reminder per configured time of day, or a single daily reminder
// for flexible schedules.
type LocalScheduler struct {
	mu        sync.Mutex
	logger    *slog.Logger
	reminders map[string][]string
}

// NewLocalScheduler returns an empty reminder scheduler.
func NewLocalScheduler(logger *slog.Logger) *LocalScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalScheduler{
		logger:    logger,
		reminders: make(map[string][]string),
	}
}

// ScheduleFor registers reminders for the schedule and returns how many were
// registered. Existing reminders for the same schedule are replaced.
func (n *LocalScheduler) ScheduleFor(schedule application.Schedule) (int, error) {
	times := make([]string, 0, len(schedule.ReminderTimes))
	for _, tod := range schedule.ReminderTimes {
		times = append(times, tod.String())
	}
	if len(times) == 0 && schedule.IsFlexible() {
		// Flexible medications get one daily nudge without a fixed time.
		times = append(times, "daily")
	}

	n.mu.Lock()
	n.reminders[schedule.ID] = times
	n.mu.Unlock()

	n.logger.Debug("reminders registered", "schedule_id", schedule.ID, "count", len(times))
	return len(times), nil
}

// CancelFor removes all reminders for the schedule and returns how many were
// removed. Cancelling an unknown schedule is not an error.
func (n *LocalScheduler) CancelFor(scheduleID string) (int, error) {
	n.mu.Lock()
	removed := len(n.reminders[scheduleID])
	delete(n.reminders, scheduleID)
	n.mu.Unlock()

	if removed > 0 {
		n.logger.Debug("reminders removed", "schedule_id", scheduleID, "count", removed)
	}
	return removed, nil
}

// Active returns the reminder labels currently registered for the schedule.
func (n *LocalScheduler) Active(scheduleID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.reminders[scheduleID]))
	copy(out, n.reminders[scheduleID])
	return out
}
