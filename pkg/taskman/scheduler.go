package taskman

import (
	"sync"
	"sync/atomic"

	logx "taskman/pkg/logx"
)

type taskSlot struct {
	cb        *Callback
	period    uint32
	remaining uint32
	ready     bool
}

type timerSlot struct {
	cb     *Callback
	active bool
	start  uint32
	delay  uint32
}

// Scheduler holds the task table, the one-shot timer table and the clock.
//
// Tick must be driven from a single context. Every other method may be
// called from the cooperative context, including from inside callbacks.
type Scheduler struct {
	// mu masks table access the way an MCU build disables the tick
	// interrupt around table mutations. It is never held across a callback.
	mu     sync.Mutex
	tasks  []taskSlot
	timers []timerSlot
	idle   func()

	// millis is written only by Tick.
	millis atomic.Uint32

	passes     atomic.Uint64
	idlePasses atomic.Uint64
	taskRuns   atomic.Uint64
	timerFires atomic.Uint64

	log logx.Logger
}

// Stats are cumulative counters since New.
type Stats struct {
	Passes     uint64 `json:"passes"`
	IdlePasses uint64 `json:"idle_passes"`
	TaskRuns   uint64 `json:"task_runs"`
	TimerFires uint64 `json:"timer_fires"`
}

// New allocates both tables up front. Capacities cannot change afterwards.
func New(opts ...Option) (*Scheduler, error) {
	o := NewOptions(opts...)
	if err := o.validate(); err != nil {
		return nil, err
	}
	log := o.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		tasks: make([]taskSlot, o.TaskCapacity),
		idle:  o.IdleHook,
		log:   log,
	}
	if o.TimerCapacity > 0 {
		s.timers = make([]timerSlot, o.TimerCapacity)
	}
	s.millis.Store(o.StartMillis)
	return s, nil
}

// TaskCapacity returns the number of task slots.
func (s *Scheduler) TaskCapacity() int { return len(s.tasks) }

// TimerCapacity returns the number of timer slots; zero means timers are disabled.
func (s *Scheduler) TimerCapacity() int { return len(s.timers) }

// CurrentMillis returns the clock. It wraps at 2^32 ms (about 49.7 days).
func (s *Scheduler) CurrentMillis() uint32 { return s.millis.Load() }

// SetIdleHook replaces the idle hook. A nil fn restores the no-op default.
func (s *Scheduler) SetIdleHook(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	s.mu.Lock()
	s.idle = fn
	s.mu.Unlock()
}

// Stats returns a copy of the cumulative counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Passes:     s.passes.Load(),
		IdlePasses: s.idlePasses.Load(),
		TaskRuns:   s.taskRuns.Load(),
		TimerFires: s.timerFires.Load(),
	}
}

// Tick advances the scheduler by one millisecond.
//
// Task countdowns are decremented first, then expired one-shot timers fire
// (synchronously, on the caller's goroutine), then the clock is incremented.
// Timers therefore compare against the clock value at the start of the tick.
func (s *Scheduler) Tick() {
	now := s.millis.Load()

	s.mu.Lock()
	for i := range s.tasks {
		t := &s.tasks[i]
		if t.cb == nil || t.remaining == 0 {
			continue
		}
		t.remaining--
		if t.remaining == 0 {
			t.ready = true
			t.remaining = t.period
		}
	}
	s.mu.Unlock()

	if len(s.timers) > 0 {
		s.processTimers(now)
	}

	s.millis.Add(1)
}

// Update makes one pass over the task table and runs every ready task.
// If none was ready, the idle hook runs once.
func (s *Scheduler) Update() {
	ran := false
	for i := range s.tasks {
		s.mu.Lock()
		t := &s.tasks[i]
		cb := t.cb
		if cb == nil || !t.ready {
			s.mu.Unlock()
			continue
		}
		t.ready = false
		s.mu.Unlock()

		cb.Run()
		s.taskRuns.Add(1)
		ran = true
	}
	s.passes.Add(1)
	if ran {
		return
	}

	s.idlePasses.Add(1)
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	idle()
}

// DelayElapsed is a non-blocking delay. It reports whether delayMS has passed
// since *ts and, if so, moves *ts to the current clock.
func (s *Scheduler) DelayElapsed(ts *uint32, delayMS uint32) bool {
	if ts == nil {
		return false
	}
	now := s.millis.Load()
	if !Elapsed(now, *ts, delayMS) {
		return false
	}
	*ts = now
	return true
}

// Elapsed reports whether at least d ms separate since and now. The
// subtraction wraps, so the result is correct across one clock rollover.
func Elapsed(now, since, d uint32) bool {
	return now-since >= d
}
