package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"taskman/internal/config"
	"taskman/internal/host"
	"taskman/internal/jobs"
	"taskman/internal/observability/debughttp"
	"taskman/internal/storage"
	logx "taskman/pkg/logx"
	"taskman/pkg/taskman"
)

// StopReason is recorded in the shutdown log line.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapSchedulerConfig returns the scheduler options and the host wakeup
// interval. The logger is added by the caller.
func mapSchedulerConfig(cfg *config.Config) ([]taskman.Option, time.Duration, error) {
	sc := cfg.Scheduler

	taskCap := sc.TaskCapacity
	if taskCap == 0 {
		taskCap = taskman.DefaultTaskCapacity
	}
	if taskCap < 1 || taskCap > taskman.MaxCapacity {
		return nil, 0, fmt.Errorf("scheduler.task_capacity must be in [1,%d]", taskman.MaxCapacity)
	}
	timerCap := taskman.DefaultTimerCapacity
	if sc.TimerCapacity != nil {
		timerCap = *sc.TimerCapacity
	}
	if timerCap < 0 || timerCap > taskman.MaxCapacity {
		return nil, 0, fmt.Errorf("scheduler.timer_capacity must be in [0,%d]", taskman.MaxCapacity)
	}

	tick, err := config.ParseDurationOrDefault("scheduler.tick", sc.Tick, host.DefaultTick)
	if err != nil {
		return nil, 0, err
	}
	if tick < time.Millisecond {
		return nil, 0, errors.New("scheduler.tick must be >= 1ms")
	}

	return []taskman.Option{
		taskman.WithTaskCapacity(taskCap),
		taskman.WithTimerCapacity(timerCap),
		taskman.WithStartMillis(sc.StartMillis),
	}, tick, nil
}

// mapBindings converts the task list. When the watchdog is enabled and not
// bound explicitly, it is bound at half the service manager's interval.
func mapBindings(cfg *config.Config, watchdogEvery time.Duration) ([]host.Binding, error) {
	known := map[string]bool{}
	for _, n := range jobs.BuiltinNames() {
		known[n] = true
	}

	out := make([]host.Binding, 0, len(cfg.Tasks)+1)
	seen := map[string]bool{}
	for i, t := range cfg.Tasks {
		name := strings.TrimSpace(t.Name)
		path := fmt.Sprintf("tasks[%d]", i)
		if name == "" {
			return nil, fmt.Errorf("%s.name is required", path)
		}
		if !known[name] {
			return nil, fmt.Errorf("%s.name: unknown job %q (known: %s)", path, name, strings.Join(jobs.BuiltinNames(), ", "))
		}
		if seen[name] {
			return nil, fmt.Errorf("%s.name: duplicate task %q", path, name)
		}
		seen[name] = true
		ms, err := config.ParsePeriod(t.Period)
		if err != nil {
			return nil, fmt.Errorf("%s.period: %w", path, err)
		}
		out = append(out, host.Binding{Name: name, PeriodMS: ms})
	}

	if cfg.Watchdog.Enabled && !seen[jobs.Watchdog] && watchdogEvery > 0 {
		ms := max(uint32(watchdogEvery/2/time.Millisecond), 1)
		out = append(out, host.Binding{Name: jobs.Watchdog, PeriodMS: ms})
	}
	return out, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./taskman.snapshots.jsonl"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, errors.New("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func snapshotSchedule(cfg *config.Config) string {
	if cfg == nil || cfg.Snapshot == nil {
		return ""
	}
	return strings.TrimSpace(cfg.Snapshot.Schedule)
}

func mapDebugConfig(cfg *config.Config) debughttp.Config {
	return debughttp.Config{
		Enabled: cfg.Debug.Enabled,
		Addr:    strings.TrimSpace(cfg.Debug.Addr),
		Token:   strings.TrimSpace(cfg.Debug.Token),
	}
}
