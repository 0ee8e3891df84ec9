package config

// Config is the on-disk configuration of the taskman host daemon.
//
// The file may be JSON or YAML (by extension). Unknown fields are rejected.
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler"`
	Tasks     []TaskConfig    `json:"tasks"`
	Logging   LoggingConfig   `json:"logging"`

	// Storage is optional; nil or driver "none" disables persistence.
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Snapshot *SnapshotConfig `json:"snapshot,omitempty"`
	Watchdog WatchdogConfig  `json:"watchdog"`
	Debug    DebugConfig     `json:"debug"`
}

// SchedulerConfig sizes the scheduler and its tick source.
//
// Capacities are fixed for the life of the process; a hot reload that
// changes them is logged and ignored until restart.
//
// Defaults (when fields are omitted/zero):
//   - task_capacity: 10
//   - timer_capacity: 5
//   - tick: "1ms"
//
// TimerCapacity is a pointer so we can distinguish "omitted" (default) from an
// explicit 0, which disables one-shot timers.
type SchedulerConfig struct {
	TaskCapacity  int    `json:"task_capacity,omitempty"`
	TimerCapacity *int   `json:"timer_capacity,omitempty"`
	Tick          string `json:"tick,omitempty"`
	StartMillis   uint32 `json:"start_millis,omitempty"`
}

// TaskConfig binds a built-in job to a period.
//
// Period accepts "500ms", "@every 2s", "HH:MM" or bare milliseconds ("250").
type TaskConfig struct {
	Name   string `json:"name"`
	Period string `json:"period"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./taskman.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SnapshotConfig controls periodic persistence of scheduler snapshots.
//
// Schedule is a cron spec (seconds optional) or "@every <duration>".
type SnapshotConfig struct {
	Schedule string `json:"schedule"`
}

// WatchdogConfig enables the systemd watchdog job and readiness notification.
type WatchdogConfig struct {
	Enabled bool `json:"enabled"`
}

// DebugConfig controls the local pprof/state HTTP listener.
//
// A non-loopback addr requires a token (Bearer header or ?token=).
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}
