package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskman/internal/config"
	"taskman/internal/host"
	"taskman/internal/jobs"
	"taskman/internal/metrics"
	"taskman/internal/observability/debughttp"
	"taskman/internal/runtime/supervisor"
	"taskman/internal/snapshot"
	"taskman/internal/storage"
	logx "taskman/pkg/logx"
	"taskman/pkg/taskman"
)

// App wires config, logging, storage, the scheduler host, built-in jobs and
// the snapshot persister under one supervisor.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store     storage.Store
	host      *host.Host
	jobs      *jobs.Registry
	metrics   *metrics.Recorder
	persister *snapshot.Persister

	// watchdogEvery is the service manager's watchdog interval (0 if none).
	watchdogEvery time.Duration
}

// NewApp loads and validates the config file and builds every component.
// Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	a := &App{cfgm: config.NewConfigManager(cfgPath)}

	if every, err := daemon.SdWatchdogEnabled(false); err == nil {
		a.watchdogEvery = every
	}
	a.cfgm.SetValidator(a.validate)

	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.cfgm.SetLogger(log.With(logx.String("comp", "config")))

	opts, tick, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, taskman.WithLogger(log.With(logx.String("comp", "taskman"))))
	sched, err := taskman.New(opts...)
	if err != nil {
		return nil, err
	}
	a.host = host.New(sched, tick, log)

	a.metrics = metrics.NewRecorder(metrics.DefaultWindow)
	a.jobs, err = jobs.Builtin(jobs.Deps{
		Sched:   sched,
		Log:     log,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, err
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}
	a.persister = snapshot.New(a.host, a.store, log)

	a.log.Info("scheduler ready",
		logx.Int("task_capacity", sched.TaskCapacity()),
		logx.Int("timer_capacity", sched.TimerCapacity()),
		logx.Duration("tick", tick),
		logx.Duration("watchdog_interval", a.watchdogEvery),
	)
	return a, nil
}

// validate runs before any config (initial or reloaded) is committed.
func (a *App) validate(ctx context.Context, cfg *config.Config) error {
	_ = ctx
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: invalid %q", cfg.Logging.Level)
	}
	opts, _, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	bindings, err := mapBindings(cfg, a.watchdogEvery)
	if err != nil {
		return err
	}
	// Capacity is fixed once the scheduler exists; a reload is checked
	// against the running table, not the new config.
	capacity := taskman.NewOptions(opts...).TaskCapacity
	if a.host != nil {
		capacity = a.host.Scheduler().TaskCapacity()
	}
	if len(bindings) > capacity {
		return fmt.Errorf("tasks: %d configured but scheduler.task_capacity is %d", len(bindings), capacity)
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if err := mapDebugConfig(cfg).Validate(); err != nil {
		return err
	}
	if a.persister != nil {
		return a.persister.Validate(snapshotSchedule(cfg))
	}
	return snapshot.New(nil, nil, logx.Nop()).Validate(snapshotSchedule(cfg))
}

func (a *App) Host() *host.Host { return a.host }

// State is the live view served by the debug listener.
type State struct {
	Scheduler taskman.Snapshot       `json:"scheduler"`
	Bound     []host.Binding         `json:"bound"`
	Jobs      []metrics.Summary      `json:"jobs"`
	Loops     []supervisor.LoopStats `json:"loops,omitempty"`
	Snapshots SnapshotCounts         `json:"snapshots"`
}

type SnapshotCounts struct {
	Schedule string `json:"schedule,omitempty"`
	Saved    uint64 `json:"saved"`
	Failed   uint64 `json:"failed"`
}

func (a *App) State() State {
	st := State{
		Scheduler: a.host.Snapshot(),
		Bound:     a.host.Bound(),
		Jobs:      a.metrics.All(),
	}
	if a.sup != nil {
		st.Loops = a.sup.Snapshot()
	}
	st.Snapshots = SnapshotCounts{
		Schedule: a.persister.Spec(),
		Saved:    a.persister.Saved(),
		Failed:   a.persister.Failed(),
	}
	return st
}

func (a *App) Jobs() *jobs.Registry { return a.jobs }

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	bindings, err := mapBindings(cfg, a.watchdogEvery)
	if err != nil {
		return err
	}
	if err := a.host.Reconcile(a.jobs, bindings); err != nil {
		return err
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sup.Go("scheduler.tick", a.host.RunTicker)
	a.sup.GoRestart("scheduler.update", a.host.RunUpdate, 100*time.Millisecond, 5*time.Second)

	if a.store != nil {
		schedule := snapshotSchedule(cfg)
		a.sup.Go("snapshot", func(c context.Context) error {
			return a.persister.Run(c, schedule)
		})
	}

	if dc := mapDebugConfig(cfg); dc.Enabled {
		var history debughttp.HistoryFunc
		if a.store != nil {
			history = func(c context.Context, n int) (any, error) {
				return a.store.RecentSnapshots(c, n)
			}
		}
		srv := debughttp.New(dc, func() any { return a.State() }, history, a.log)
		a.sup.GoRestart("debug.http", srv.Serve, time.Second, 30*time.Second)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := cfg
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	a.log.Info("app started", logx.Int("tasks", len(bindings)))
	return nil
}

// applyConfig applies a validated config change to the running components.
// Sections that are fixed at startup are reported, not applied.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, changedTasks := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	if len(changedTasks) > 0 || oldCfg.Watchdog != newCfg.Watchdog {
		bindings, err := mapBindings(newCfg, a.watchdogEvery)
		if err != nil {
			a.log.Warn("invalid tasks; keeping previous", logx.Err(err))
		} else if err := a.host.Reconcile(a.jobs, bindings); err != nil {
			a.log.Warn("task reconcile incomplete", logx.Err(err))
		}
	}

	if a.store != nil && snapshotSchedule(oldCfg) != snapshotSchedule(newCfg) {
		if err := a.persister.Schedule(snapshotSchedule(newCfg)); err != nil {
			a.log.Warn("snapshot schedule not applied", logx.Err(err))
		}
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	start := time.Now()

	// Loops observe cancellation; the persister writes its final snapshot
	// before returning.
	if err := a.sup.Stop(ctx); err != nil {
		a.log.Warn("supervisor stop", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}

	st := a.host.Scheduler().Stats()
	a.log.Info("stopped",
		logx.Duration("took", time.Since(start)),
		logx.Uint32("millis", a.host.Scheduler().CurrentMillis()),
		logx.Uint64("task_runs", st.TaskRuns),
		logx.Uint64("timer_fires", st.TimerFires),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
