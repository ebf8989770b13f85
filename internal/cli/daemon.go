package cli

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"snipcast/internal/config"
	"snipcast/internal/observability/status"
	"snipcast/internal/pipeline"
	"snipcast/internal/runtime/supervisor"
	"snipcast/internal/scheduler"
	logx "snipcast/pkg/logx"
)

const shutdownTimeout = 30 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run every scheduled stream until stopped",
	Long: `Daemon triggers each stream that has a schedule, reloads the config file
when it changes and reports readiness and liveness to systemd when started
as a notify service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		return runDaemon(cmd.Context(), e)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

// scheduledJobs turns every scheduled stream into a scheduler job. runner
// may be nil when the jobs are only validated.
func scheduledJobs(cfg *config.Config, runner *pipeline.Runner, tracker *status.Tracker) []scheduler.Job {
	streams := cfg.Scheduled()
	jobs := make([]scheduler.Job, 0, len(streams))
	for _, st := range streams {
		st := st
		jobs = append(jobs, scheduler.Job{
			Name:     st.Name,
			Schedule: st.Schedule,
			Run: func(ctx context.Context) error {
				start := time.Now()
				oc, err := runner.Run(ctx, st, false)
				tracker.Record(runRecord(st.Name, start, oc, err))
				return err
			},
		})
	}
	return jobs
}

func runRecord(stream string, start time.Time, oc pipeline.Outcome, err error) status.Run {
	r := status.Run{
		Stream:    stream,
		RunID:     oc.RunID,
		At:        start,
		Took:      time.Since(start).Round(time.Millisecond).String(),
		Category:  oc.Target,
		Snippets:  len(oc.Picks),
		Shortfall: oc.Shortfall,
		Committed: oc.Committed,
		Failed:    oc.Report.Failed(),
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

func statusConfig(c config.StatusConfig) status.Config {
	return status.Config{Enabled: c.Enabled, Addr: c.Addr, Token: c.Token, Pprof: c.Pprof}
}

func runDaemon(ctx context.Context, e *env) error {
	log := e.log
	sched := scheduler.New(log.With(logx.String("component", "scheduler")))
	locks := pipeline.NewLocks()
	tracker := status.NewTracker(time.Now())
	statusSrv := status.New(tracker, func() []status.Planned {
		entries := sched.Entries()
		out := make([]status.Planned, 0, len(entries))
		for _, en := range entries {
			out = append(out, status.Planned{Stream: en.Name, Schedule: en.Schedule, Next: en.Next})
		}
		return out
	}, log.With(logx.String("component", "status")))

	apply := func(cfg *config.Config) error {
		runner := newRunner(cfg, log, pipeline.WithLocks(locks))
		return sched.Apply(cfg.Scheduler.Timezone, scheduledJobs(cfg, runner, tracker))
	}
	if len(e.cfg.Scheduled()) == 0 {
		return errors.New("no stream has a schedule; set streams.<name>.schedule")
	}
	if err := apply(e.cfg); err != nil {
		return err
	}
	e.mgr.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if len(cfg.Scheduled()) == 0 {
			return errors.New("no stream has a schedule")
		}
		return sched.Validate(scheduledJobs(cfg, nil, nil))
	})

	sup := supervisor.New(ctx, supervisor.WithLogger(log.With(logx.String("component", "supervisor"))))
	sched.Start(sup.Context())
	for _, en := range sched.Entries() {
		log.Info("next run", logx.String("stream", en.Name), logx.String("schedule", en.Schedule), logx.Time("at", en.Next))
	}

	if err := statusSrv.Reconfigure(sup.Context(), statusConfig(e.cfg.Status)); err != nil {
		log.Warn("status server not started", logx.Err(err))
	}
	sup.GoRestart("config.watch", e.mgr.Watch)

	updates := e.mgr.Subscribe(1)
	sup.Go("config.apply", func(ctx context.Context) error {
		defer e.mgr.Unsubscribe(updates)
		current := e.cfg
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				changed, fields := config.SummarizeConfigChange(current, next)
				e.logs.Apply(logConfig(next.Logging))
				if err := apply(next); err != nil {
					log.Error("config reload not applied", logx.Err(err))
					continue
				}
				if err := statusSrv.Reconfigure(ctx, statusConfig(next.Status)); err != nil {
					log.Warn("status server not reconfigured", logx.Err(err))
				}
				current = next
				log.Info("config reloaded", append(fields, logx.Strings("changed", changed))...)
				for _, en := range sched.Entries() {
					log.Info("next run", logx.String("stream", en.Name), logx.Time("at", en.Next))
				}
			}
		}
	})

	if interval, err := daemon.SdWatchdogEnabled(false); err != nil {
		log.Warn("systemd watchdog misconfigured", logx.Err(err))
	} else if interval > 0 {
		sup.Go("systemd.watchdog", func(ctx context.Context) error {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
						log.Warn("systemd watchdog ping failed", logx.Err(err))
					}
				}
			}
		})
	}
	notify(log, daemon.SdNotifyReady)
	log.Info("daemon started", logx.Int("streams", len(sched.Entries())))

	<-sup.Context().Done()
	notify(log, daemon.SdNotifyStopping)
	log.Info("daemon stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sched.Stop(stopCtx)
	statusSrv.Stop(stopCtx)
	if err := sup.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info("daemon stopped")
	return nil
}

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}
