// Package host drives a taskman.Scheduler on a general-purpose OS: a ticker
// goroutine stands in for the 1 ms timer interrupt and the update loop stands
// in for the firmware main loop.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "taskman/pkg/logx"
	"taskman/pkg/taskman"
)

const (
	DefaultTick = time.Millisecond

	// overrunFactor is how many wakeups' worth of ticks a single catch-up may
	// replay before it is reported.
	overrunFactor = 8
)

var ErrUnknownJob = errors.New("unknown job")

// Resolver maps a configured task name to its callback.
type Resolver interface {
	Lookup(name string) (*taskman.Callback, bool)
}

// Binding is a configured task: a job name and its period in milliseconds.
type Binding struct {
	Name     string `json:"name"`
	PeriodMS uint32 `json:"period_ms"`
}

type bound struct {
	cb       *taskman.Callback
	periodMS uint32
}

// Host owns the tick source and the update loop for one scheduler.
type Host struct {
	sched *taskman.Scheduler
	tick  time.Duration
	log   logx.Logger

	// warn throttles catch-up overrun warnings.
	warn *rate.Limiter

	// irq carries "a tick happened" to the idle hook. Capacity 1 keeps one
	// pending wakeup, like a latched interrupt flag.
	irq chan struct{}

	mu    sync.Mutex
	tasks map[string]bound
}

func New(sched *taskman.Scheduler, tick time.Duration, log logx.Logger) *Host {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Host{
		sched: sched,
		tick:  tick,
		log:   log.With(logx.String("comp", "host")),
		warn:  rate.NewLimiter(rate.Every(10*time.Second), 1),
		irq:   make(chan struct{}, 1),
		tasks: map[string]bound{},
	}
}

func (h *Host) Scheduler() *taskman.Scheduler { return h.sched }

func (h *Host) Snapshot() taskman.Snapshot { return h.sched.Snapshot() }

// RunTicker calls Tick once per elapsed wall-clock millisecond, waking every
// h.tick. Late wakeups are caught up so the scheduler clock tracks real time.
func (h *Host) RunTicker(ctx context.Context) error {
	t := time.NewTicker(h.tick)
	defer t.Stop()

	start := time.Now()
	var done uint64
	perWake := max(uint64(h.tick/time.Millisecond), 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			due := uint64(now.Sub(start) / time.Millisecond)
			if due <= done {
				continue
			}
			n := due - done
			if n > perWake*overrunFactor && h.warn.Allow() {
				h.log.Warn("tick source fell behind; catching up",
					logx.Uint64("ticks", n),
					logx.Duration("tick", h.tick),
				)
			}
			for i := uint64(0); i < n; i++ {
				h.sched.Tick()
			}
			done = due
			h.interrupt()
		}
	}
}

func (h *Host) interrupt() {
	select {
	case h.irq <- struct{}{}:
	default:
	}
}

// RunUpdate calls Update until ctx ends. While it runs, the idle hook parks
// the loop until the next tick.
func (h *Host) RunUpdate(ctx context.Context) error {
	h.sched.SetIdleHook(func() {
		select {
		case <-h.irq:
		case <-ctx.Done():
		}
	})
	defer h.sched.SetIdleHook(nil)

	for ctx.Err() == nil {
		h.sched.Update()
	}
	return nil
}

// Reconcile makes the task table match want. Removed names are deleted
// first so their slots can be reused, then periods are updated, then new
// names are added in order. All failures are returned joined.
func (h *Host) Reconcile(r Resolver, want []Binding) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	wanted := make(map[string]uint32, len(want))
	for _, b := range want {
		wanted[b.Name] = b.PeriodMS
	}

	var errs []error
	for _, name := range h.sortedNames() {
		if _, ok := wanted[name]; ok {
			continue
		}
		cur := h.tasks[name]
		if err := h.sched.DeleteTask(cur.cb); err != nil && !errors.Is(err, taskman.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		delete(h.tasks, name)
		h.log.Info("task removed", logx.String("task", name))
	}

	for _, b := range want {
		cur, ok := h.tasks[b.Name]
		if ok {
			if cur.periodMS == b.PeriodMS {
				continue
			}
			if err := h.sched.UpdateTask(cur.cb, b.PeriodMS); err != nil {
				errs = append(errs, fmt.Errorf("update %s: %w", b.Name, err))
				continue
			}
			h.tasks[b.Name] = bound{cb: cur.cb, periodMS: b.PeriodMS}
			h.log.Info("task period changed",
				logx.String("task", b.Name),
				logx.Uint32("old_ms", cur.periodMS),
				logx.Uint32("new_ms", b.PeriodMS),
			)
			continue
		}

		cb, found := r.Lookup(b.Name)
		if !found {
			errs = append(errs, fmt.Errorf("add %s: %w", b.Name, ErrUnknownJob))
			continue
		}
		slot, err := h.sched.AddTask(cb, b.PeriodMS)
		if err != nil {
			errs = append(errs, fmt.Errorf("add %s: %w", b.Name, err))
			continue
		}
		h.tasks[b.Name] = bound{cb: cb, periodMS: b.PeriodMS}
		h.log.Info("task added",
			logx.String("task", b.Name),
			logx.Int("slot", slot),
			logx.Uint32("period_ms", b.PeriodMS),
		)
	}
	return errors.Join(errs...)
}

// Bound returns the currently bound task names and periods, sorted by name.
func (h *Host) Bound() []Binding {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Binding, 0, len(h.tasks))
	for _, name := range h.sortedNames() {
		out = append(out, Binding{Name: name, PeriodMS: h.tasks[name].periodMS})
	}
	return out
}

func (h *Host) sortedNames() []string {
	names := make([]string, 0, len(h.tasks))
	for name := range h.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
