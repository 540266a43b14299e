package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcnofne/shipos/pkg/agent"
	"github.com/bcnofne/shipos/pkg/api"
	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/cost"
	"github.com/bcnofne/shipos/pkg/display"
	"github.com/bcnofne/shipos/pkg/execguard"
	"github.com/bcnofne/shipos/pkg/health"
	"github.com/bcnofne/shipos/pkg/inbox"
	"github.com/bcnofne/shipos/pkg/llm"
	"github.com/bcnofne/shipos/pkg/memory"
	"github.com/bcnofne/shipos/pkg/modes"
	"github.com/bcnofne/shipos/pkg/narrator"
	"github.com/bcnofne/shipos/pkg/notify"
	"github.com/bcnofne/shipos/pkg/sched"
	"github.com/bcnofne/shipos/pkg/storage"
	"github.com/bcnofne/shipos/pkg/store"
	"github.com/bcnofne/shipos/pkg/version"
	"github.com/bcnofne/shipos/pkg/voice"
	"github.com/bcnofne/shipos/pkg/watchdog"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor: all workers, HTTP server, display",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	slog.Info("Starting shipOS", "version", version.Full(), "config_dir", configDir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Configuration and data store
	cfg, st, err := bootstrap()
	if err != nil {
		slog.Error("Startup failed", "error", err)
		return err
	}

	// 2. Mode manager — everything else reads the mode through it
	mgr := modes.NewManager(st, cfg)

	// 3. Core services
	guard := cost.NewGuard(st, &cfg.Cost)
	executor := execguard.New(&cfg.Exec, st)
	mem := memory.New(st)
	in := inbox.New(st)

	// 4. LLM client — the planner is the whole point, no client no serve
	client, err := llm.NewOpenAIClient(cfg.LLM.RequestTimeout.Duration)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("Error closing LLM client", "error", err)
		}
	}()

	// 5. Notifier, filtered by the live mode's notify level
	notifier := notify.NewService(&cfg.Notify, st, func() string {
		return mgr.Settings().NotifyLevel
	})

	// 6. Planner loop
	planner := agent.NewPlanner(cfg, st, mem, guard, executor, in, client, notifier, mgr)

	// 7. Health monitor and storage tierer
	monitor := health.NewMonitor(&cfg.Health, st)
	tierer := storage.New(&cfg.Storage, st)

	// 8. Self-repair watchdog (scheduled sweeps; the standalone daemon is
	// `shipos watchdog`)
	wd := watchdog.New(&cfg.Watchdog, st, mem, executor)

	// 9. Voice arbiter, when a sound stack is present
	var arbiter *voice.Arbiter
	if cfg.Voice.Enabled {
		arbiter, err = voice.New(&cfg.Voice, st, voice.Hooks{
			Respond: func(ctx context.Context, text string) (string, error) {
				return planner.Quick().Answer(ctx, text)
			},
			StatusText: func() string {
				sample := monitor.Last()
				mood := monitor.Mood()
				return fmt.Sprintf("%s 気分は%s、スコア%d。", health.StatusText(sample), mood.Line, mood.Score)
			},
			Logbook: func() string { return st.DaySummary(time.Now()) },
			EmergencyStop: func(ctx context.Context) {
				executor.Run(ctx, "systemctl stop "+cfg.Watchdog.ServiceUnit)
			},
		})
		if err != nil {
			slog.Error("Failed to initialize voice arbiter", "error", err)
			return err
		}
		arbiter.SetPriorityBias(func() string { return mgr.Settings().PriorityBias })
		arbiter.Monologue().SetConditions(func() voice.ShipConditions {
			var cond voice.ShipConditions
			for _, c := range monitor.Last().Components {
				bad := c.Status != health.StatusOK
				switch c.Name {
				case "cpu_temp":
					cond.CPUHot = bad
				case "disk":
					cond.DiskHigh = bad
				case "network":
					cond.NetDown = bad
				}
			}
			return cond
		})
		arbiter.Start(ctx)
		defer arbiter.Stop()
	}

	// 10. Scheduler and its task table
	scheduler := sched.New(&cfg.Sched, func() string { return mgr.Current().Mode })
	registerTasks(scheduler, cfg, st, mgr, monitor, tierer, wd, mem, notifier, arbiter)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// 11. Display controller
	disp := display.New(&cfg.Display, st, mgr, monitor, planner.CurrentGoal)
	disp.Start(ctx, version.GitCommit)

	// 12. HTTP server: webhook, status API, metrics
	server := api.NewServer(cfg, st, in, mgr, guard, monitor, notifier, planner, notifier.LINE())
	server.Start()

	// 13. Planner loop in the background; cost-stop parks the process
	plannerErr := make(chan error, 1)
	go func() { plannerErr <- planner.Run(ctx) }()

	notifier.NotifyStartup(narrator.Startup(version.GitCommit))
	st.LogEvent(store.LogNavigation, "departure", "shipOS "+version.Full())
	slog.Info("shipOS started", "mode", mgr.Current().Mode)

	// 14. Wait for a signal or a fatal planner exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-plannerErr:
		if err != nil && errors.Is(err, agent.ErrCostStop) {
			// The loop is halted but chat, voice, and display stay up.
			slog.Warn("Planner halted by cost guard; supervisor stays up")
			sig := <-sigCh
			slog.Info("Shutdown signal received", "signal", sig)
		} else if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Planner exited", "error", err)
		}
	}

	// 15. Graceful shutdown: stop intake first, then workers, display last
	// so the shutdown frame is the final thing on the panel.
	notifier.Event(notify.KindShutdown, narrator.Shutdown())
	st.LogEvent(store.LogNavigation, "returning to port", "")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Stop(shutdownCtx)

	cancel() // stops planner, scheduler, arbiter, display loop
	disp.Stop()

	slog.Info("shipOS stopped")
	return nil
}

// registerTasks fills the scheduler's table. Intervals and mode gates per
// the operations runbook.
func registerTasks(
	s *sched.Scheduler,
	cfg *config.Config,
	st *store.Store,
	mgr *modes.Manager,
	monitor *health.Monitor,
	tierer *storage.Tierer,
	wd *watchdog.Watchdog,
	mem *memory.Store,
	notifier *notify.Service,
	arbiter *voice.Arbiter,
) {
	// Health probes run everywhere, even in safe mode.
	s.Register("health_probes", func(ctx context.Context) (string, error) {
		sample := monitor.RunAll(ctx)
		if alerts := health.Alerts(sample); len(alerts) > 0 {
			kind := notify.KindHealth
			if sample.Overall == health.StatusCritical {
				kind = notify.KindHealthCrit
			}
			msg := narrator.HealthAlert(sample.Overall, health.StatusText(sample))
			notifier.Event(kind, msg)
			if arbiter != nil && sample.Overall == health.StatusCritical {
				arbiter.Speak(msg, voice.PriorityEmergency)
			}
		}
		monitor.Mood()
		return sample.Overall, nil
	}, 5*time.Minute, nil)

	// Autonomous housekeeping follows the mode table's flag rather than a
	// hard-coded mode list, so a user table override changes the gate too.
	autonomousOK := func() bool { return mgr.Settings().AutonomousTasks }

	// Cold-file migration, heavyweight, autonomous windows only.
	s.Register("archive_old_files", func(ctx context.Context) (string, error) {
		st.WriteAIState(store.AIStateMovingFiles, "archive pass")
		defer st.WriteAIState(store.AIStateIdle, "")
		moved, err := tierer.ArchiveOld(false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("moved %d files", len(moved)), nil
	}, 24*time.Hour, autonomousOK)

	// Fast-tier fullness check; a warning triggers an immediate pass.
	s.Register("storage_monitor", func(ctx context.Context) (string, error) {
		warning, err := tierer.Monitor()
		if err != nil || warning == nil {
			return "", err
		}
		notifier.Event(notify.KindError, "⚠️ "+warning.Message)
		moved, err := tierer.ArchiveOld(false)
		if err != nil {
			return warning.Message, err
		}
		return fmt.Sprintf("%s; emergency pass moved %d", warning.Message, len(moved)), nil
	}, time.Hour, nil)

	// Self-repair sweep. Runs in safe mode too: repair is how we get out.
	s.Register("self_repair", func(ctx context.Context) (string, error) {
		actions := wd.RunOnce(ctx)
		if len(actions) == 0 {
			return "", nil
		}
		return fmt.Sprintf("%d repairs", len(actions)), nil
	}, 10*time.Minute, nil, config.ModeAutonomous, config.ModeMaintenance, config.ModeSafe)

	// Memory retention.
	s.Register("memory_cleanup", func(ctx context.Context) (string, error) {
		removed, err := mem.Cleanup(90)
		if err != nil || removed == 0 {
			return "", err
		}
		return fmt.Sprintf("removed %d stale memories", removed), nil
	}, 24*time.Hour, autonomousOK)

	// Calendar-driven mode transitions.
	cal := sched.NewCalendar(&cfg.Sched, st)
	if cal.Enabled() {
		s.Register("calendar_mode", func(ctx context.Context) (string, error) {
			return cal.CheckCalendarMode(ctx, mgr)
		}, cfg.Sched.CalendarInterval.Duration, nil)
	}
}
