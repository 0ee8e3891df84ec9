package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "taskman/pkg/logx"
)

// Supervisor runs the daemon's long-lived loops (tick source, update loop,
// config watcher, snapshot persister) under one cancelable context.
//
// Loops are named for logging, panics are recovered and reported as errors,
// and Stop waits for every loop with a deadline.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg       sync.WaitGroup
	errOnce  sync.Once
	firstErr atomic.Pointer[error]

	mu    sync.Mutex
	loops map[string]*loopStats
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels every loop when any one returns an error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

// LoopStats is a point-in-time view of one named loop.
type LoopStats struct {
	Name     string    `json:"name"`
	Running  bool      `json:"running"`
	Runs     uint64    `json:"runs"`
	Panics   uint64    `json:"panics"`
	Restarts uint64    `json:"restarts"`
	LastErr  string    `json:"last_err,omitempty"`
	LastStop time.Time `json:"last_stop"`
}

type loopStats struct {
	running  bool
	runs     uint64
	panics   uint64
	restarts uint64
	lastErr  string
	lastStop time.Time
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, loops: map[string]*loopStats{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first loop error, if any.
func (s *Supervisor) Err() error {
	if p := s.firstErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Supervisor) fail(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(&err) })
	if s.cancelOnErr {
		s.cancel()
	}
}

// Go runs fn once. A non-nil error (other than cancellation) or a panic is
// recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Debug("loop started", logx.String("name", name))
		if err := s.runOnce(name, false, fn); err != nil {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("loop stopped", logx.String("name", name))
	}()
}

// GoRestart runs fn and restarts it with capped exponential backoff whenever
// it fails or panics. A clean return or cancellation ends the loop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, minBackoff, maxBackoff time.Duration) {
	if fn == nil {
		return
	}
	if minBackoff <= 0 {
		minBackoff = 250 * time.Millisecond
	}
	maxBackoff = max(maxBackoff, minBackoff)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := minBackoff
		for restart := false; ; restart = true {
			err := s.runOnce(name, restart, fn)
			if err == nil || s.ctx.Err() != nil {
				return
			}
			s.log.Warn("loop restarting", logx.String("name", name), logx.Duration("backoff", backoff), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}()
}

func (s *Supervisor) runOnce(name string, restart bool, fn func(ctx context.Context) error) (err error) {
	s.note(name, func(st *loopStats) {
		st.running = true
		st.runs++
		if restart {
			st.restarts++
		}
	})
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("loop panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			s.note(name, func(st *loopStats) { st.panics++ })
			err = fmt.Errorf("panic: %v", r)
		}
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.note(name, func(st *loopStats) {
			st.running = false
			st.lastStop = time.Now()
			if err != nil {
				st.lastErr = err.Error()
			}
		})
	}()
	return fn(s.ctx)
}

func (s *Supervisor) note(name string, f func(*loopStats)) {
	s.mu.Lock()
	st := s.loops[name]
	if st == nil {
		st = &loopStats{}
		s.loops[name] = st
	}
	f(st)
	s.mu.Unlock()
}

// Snapshot lists loop stats sorted by name.
func (s *Supervisor) Snapshot() []LoopStats {
	s.mu.Lock()
	out := make([]LoopStats, 0, len(s.loops))
	for name, st := range s.loops {
		out = append(out, LoopStats{
			Name:     name,
			Running:  st.running,
			Runs:     st.runs,
			Panics:   st.panics,
			Restarts: st.restarts,
			LastErr:  st.lastErr,
			LastStop: st.lastStop,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop cancels all loops and waits for them until ctx is done.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}
