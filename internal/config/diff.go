package config

import (
	"reflect"
	"sort"
	"strings"

	logx "taskman/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the names of tasks that were
// added, removed or re-timed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Scheduler
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.task_capacity", newCfg.Scheduler.TaskCapacity),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
		)
		if newCfg.Scheduler.TimerCapacity != nil {
			attrs = append(attrs, logx.Int("scheduler.timer_capacity", *newCfg.Scheduler.TimerCapacity))
		}
	}

	// Tasks
	taskNames := diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if len(taskNames) > 0 {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Int("tasks.count", len(newCfg.Tasks)),
			logx.String("tasks.changed", strings.Join(taskNames, ",")),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		driver := ""
		if newCfg.Storage != nil {
			driver = strings.ToLower(strings.TrimSpace(newCfg.Storage.Driver))
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}

	// Snapshot
	if !reflect.DeepEqual(oldCfg.Snapshot, newCfg.Snapshot) {
		changed = append(changed, "snapshot")
		sched := ""
		if newCfg.Snapshot != nil {
			sched = strings.TrimSpace(newCfg.Snapshot.Schedule)
		}
		attrs = append(attrs, logx.String("snapshot.schedule", sched))
	}

	// Watchdog
	if oldCfg.Watchdog != newCfg.Watchdog {
		changed = append(changed, "watchdog")
		attrs = append(attrs, logx.Bool("watchdog.enabled", newCfg.Watchdog.Enabled))
	}

	// Debug (never log token)
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}

	return changed, attrs, taskNames
}

// diffTasks returns the sorted names whose presence or period differs.
func diffTasks(oldTasks, newTasks []TaskConfig) []string {
	oldM := taskPeriods(oldTasks)
	newM := taskPeriods(newTasks)

	out := make([]string, 0)
	for name, p := range newM {
		if op, ok := oldM[name]; !ok || op != p {
			out = append(out, name)
		}
	}
	for name := range oldM {
		if _, ok := newM[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func taskPeriods(tasks []TaskConfig) map[string]string {
	m := make(map[string]string, len(tasks))
	for _, t := range tasks {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		m[name] = strings.TrimSpace(t.Period)
	}
	return m
}

// RestartRequired lists changed sections that only take effect after a restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		out = append(out, "scheduler")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		out = append(out, "storage")
	}
	if oldCfg.Debug != newCfg.Debug {
		out = append(out, "debug")
	}
	return out
}
