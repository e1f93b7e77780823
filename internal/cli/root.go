// Package cli implements the hydracat CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/analytics"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/config"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/connectivity"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/logging"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/notify"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence/memory"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence/postgres"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence/sqlite"
)

var demoFlag bool

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "hydracat",
	Short: "Home treatment tracker for cats with chronic kidney disease",
	Long: "Tracks daily medication doses and subcutaneous fluid sessions, " +
		"derives what is still owed today, and keeps working offline.",
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&demoFlag, "demo", false, "Run against an in-memory store with sample schedules")
}

// app bundles the wired services a command works with for one invocation.
type app struct {
	cfg       config.Config
	treatment *application.TreatmentService
	schedules *application.ScheduleService
	cache     *application.SummaryCacheStore
	queue     *application.OfflineQueue
	monitor   *connectivity.Monitor
	closers   []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// newApp builds the full engine for one CLI invocation. Storage resolution:
// the shared backend when a remote DSN is configured and reachable, the local
// sqlite store otherwise. An unreachable backend starts the app offline, so
// session writes queue locally until a sync.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)
	ctx = logging.ContextWithLogger(ctx, logger)

	a := &app{cfg: cfg, monitor: connectivity.NewMonitor()}

	var (
		scheduleRepo   application.ScheduleRepository
		scheduleSource application.ScheduleSource
		sessions       application.SessionStore
		summary        application.SummarySource
		queueStore     application.QueueStore
	)

	if demoFlag {
		store := memory.NewStore(cfg.Location)
		seedDemoSchedules(ctx, store, cfg.PetID)
		scheduleRepo, scheduleSource = store, store
		sessions, summary, queueStore = store, store, store
		a.monitor.Set(connectivity.StateConnected)
	} else {
		local, err := sqlite.Open(cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		a.closers = append(a.closers, local.Close)
		if err := local.Migrate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate local store: %w", err)
		}
		queueStore = sqlite.NewQueueRepository(local)

		localSchedules := sqlite.NewScheduleRepository(local)
		localSessions := sqlite.NewSessionRepository(local, cfg.Location)

		if cfg.PostgresDSN != "" {
			db, err := postgres.Open(cfg.PostgresDSN)
			if err != nil {
				logger.Warn("backend unreachable, starting offline", "error", err)
				scheduleRepo, scheduleSource = localSchedules, localSchedules
				sessions, summary = localSessions, localSessions
				a.monitor.Set(connectivity.StateOffline)
			} else {
				a.closers = append(a.closers, db.Close)
				remoteSchedules := postgres.NewSchedulesRepo(db)
				remoteSessions := postgres.NewSessionsRepo(db, cfg.Location)
				scheduleRepo, scheduleSource = remoteSchedules, remoteSchedules
				sessions, summary = remoteSessions, remoteSessions
				a.monitor.Set(connectivity.StateConnected)
			}
		} else {
			scheduleRepo, scheduleSource = localSchedules, localSchedules
			sessions, summary = localSessions, localSessions
			a.monitor.Set(connectivity.StateConnected)
		}
	}

	principal := application.Principal{UserID: cfg.UserID, PetID: cfg.PetID}
	notifier := notify.NewLocalScheduler(logger)
	sink := analytics.NewSlogSink(logger)

	a.cache = application.NewSummaryCacheStore(summary, cfg.PetID, time.Now, cfg.Location)
	a.queue = application.NewOfflineQueue(queueStore, sessions, time.Now, logger)

	a.treatment = application.NewTreatmentService(application.TreatmentServiceConfig{
		Principal:    principal,
		Schedules:    scheduleSource,
		Sessions:     sessions,
		Cache:        a.cache,
		Queue:        a.queue,
		Connectivity: a.monitor,
		Notifier:     notifier,
		Analytics:    sink,
		Location:     cfg.Location,
		Logger:       logger,
	})
	a.monitor.OnRestore(func() {
		if err := a.treatment.HandleConnectivityRestored(ctx); err != nil {
			logger.Warn("queue drain after reconnect failed", "error", err)
		}
	})

	a.schedules = application.NewScheduleService(principal, scheduleRepo, notifier, a.treatment, nil, nil, logger)

	return a, nil
}

func seedDemoSchedules(ctx context.Context, store *memory.Store, petID string) {
	now := time.Now()
	demo := []application.Schedule{
		{
			ID:             "demo-amlodipine",
			PetID:          petID,
			Kind:           application.TreatmentKindMedication,
			Active:         true,
			ReminderTimes:  []application.TimeOfDay{{Hour: 8}},
			MedicationName: "Amlodipine",
			TargetDosage:   1,
			DosageUnit:     "pill",
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:               "demo-fluids",
			PetID:            petID,
			Kind:             application.TreatmentKindFluid,
			Active:           true,
			ReminderTimes:    []application.TimeOfDay{{Hour: 8}, {Hour: 18}},
			VolumePerSession: 100,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}
	for _, s := range demo {
		_, _ = store.CreateSchedule(ctx, s)
	}
}

// parseAtFlag resolves an optional "HH:MM" value onto today's date. The zero
// time means no specific reminder is being answered.
func parseAtFlag(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	tod, err := application.ParseTimeOfDay(value)
	if err != nil {
		return time.Time{}, err
	}
	return tod.On(time.Now(), loc), nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
