package jobs

import (
	"sync"
	"sync/atomic"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskman/internal/metrics"
	logx "taskman/pkg/logx"
	"taskman/pkg/taskman"
)

const (
	Heartbeat = "heartbeat"
	Blink     = "blink"
	BlinkOff  = "blink.off"
	Watchdog  = "watchdog"
	Stats     = "stats"

	// BlinkOnMS is how long the LED stays lit per blink.
	BlinkOnMS = 20
)

// BuiltinNames lists the jobs a config may bind, sorted.
func BuiltinNames() []string {
	return []string{Blink, BlinkOff, Heartbeat, Stats, Watchdog}
}

// Notifier sends a service-manager state string such as "WATCHDOG=1".
type Notifier func(state string) (bool, error)

// SystemdNotify notifies systemd over $NOTIFY_SOCKET. It reports false with
// no error when not running under systemd.
func SystemdNotify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// LED is a virtual status LED.
type LED struct {
	on      atomic.Bool
	flashes atomic.Uint64
}

func (l *LED) On() {
	if !l.on.Swap(true) {
		l.flashes.Add(1)
	}
}

func (l *LED) Off()            { l.on.Store(false) }
func (l *LED) IsOn() bool      { return l.on.Load() }
func (l *LED) Flashes() uint64 { return l.flashes.Load() }

// Deps are what the built-in jobs act on.
type Deps struct {
	Sched   *taskman.Scheduler
	Log     logx.Logger
	Metrics *metrics.Recorder
	LED     *LED
	// Notify defaults to SystemdNotify.
	Notify Notifier
}

// Builtin returns a registry holding heartbeat, blink, watchdog and stats.
func Builtin(d Deps) (*Registry, error) {
	if d.LED == nil {
		d.LED = &LED{}
	}
	if d.Notify == nil {
		d.Notify = SystemdNotify
	}
	log := d.Log.With(logx.String("comp", "jobs"))
	r := NewRegistry(log, d.Metrics)

	off, err := r.Register(BlinkOff, d.LED.Off)
	if err != nil {
		return nil, err
	}

	if _, err := r.Register(Heartbeat, func() {
		st := d.Sched.Stats()
		log.Info("heartbeat",
			logx.Uint32("millis", d.Sched.CurrentMillis()),
			logx.Uint64("task_runs", st.TaskRuns),
			logx.Uint64("timer_fires", st.TimerFires),
			logx.Uint64("idle_passes", st.IdlePasses),
		)
	}); err != nil {
		return nil, err
	}

	if _, err := r.Register(Blink, func() {
		d.LED.On()
		if err := d.Sched.StartOnce(BlinkOnMS, off); err != nil {
			// No timer slot: don't leave the LED stuck on.
			d.LED.Off()
			log.Warn("blink timer unavailable", logx.Err(err))
		}
	}); err != nil {
		return nil, err
	}

	var wdOnce sync.Once
	if _, err := r.Register(Watchdog, func() {
		sent, err := d.Notify(daemon.SdNotifyWatchdog)
		if err != nil {
			log.Warn("watchdog notify failed", logx.Err(err))
			return
		}
		if !sent {
			wdOnce.Do(func() { log.Debug("watchdog: not running under systemd; pings are no-ops") })
		}
	}); err != nil {
		return nil, err
	}

	if _, err := r.Register(Stats, func() {
		if d.Metrics == nil {
			return
		}
		for _, s := range d.Metrics.All() {
			if s.Total == 0 {
				continue
			}
			log.Info("job stats",
				logx.String("job", s.Name),
				logx.Uint64("runs", s.Total),
				logx.Duration("mean", s.Mean),
				logx.Duration("stddev", s.StdDev),
				logx.Duration("p50", s.P50),
				logx.Duration("p99", s.P99),
				logx.Duration("max", s.Max),
			)
		}
	}); err != nil {
		return nil, err
	}

	return r, nil
}
