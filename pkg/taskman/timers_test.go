package taskman

import (
	"errors"
	"testing"
)

func TestStartOnceFiresExactlyOnce(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	fired := 0
	cb := counting("once", &fired)
	if err := s.StartOnce(5, cb); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}

	// The tick that starts with clock == start+delay fires the timer.
	tickN(s, 5)
	if fired != 0 {
		t.Fatalf("fired = %d before deadline, want 0", fired)
	}
	s.Tick()
	if fired != 1 {
		t.Fatalf("fired = %d at deadline, want 1", fired)
	}
	tickN(s, 20)
	if fired != 1 {
		t.Fatalf("fired = %d after deadline, want 1", fired)
	}

	snap := s.Snapshot()
	if len(snap.Timers) != 1 || snap.Timers[0].Active {
		t.Fatalf("timers = %+v, want one inactive slot", snap.Timers)
	}
	if s.Stats().TimerFires != 1 {
		t.Fatalf("timer fires = %d", s.Stats().TimerFires)
	}
}

func TestTimerSeesClockAtTickStart(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, WithStartMillis(100))
	var seen uint32
	cb := NewCallback("probe", func() { seen = s.CurrentMillis() })
	if err := s.StartOnce(7, cb); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}
	tickN(s, 10)
	if seen != 107 {
		t.Fatalf("callback saw clock %d, want 107", seen)
	}
}

func TestZeroDelayFiresOnNextTick(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	fired := 0
	if err := s.StartOnce(0, counting("now", &fired)); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}
	if fired != 0 {
		t.Fatal("StartOnce must not fire synchronously")
	}
	s.Tick()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestRearmKeepsOriginalStart(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		first    uint32
		second   uint32
		rearmAt  int // ticks before the second StartOnce
		fireTick int // tick count (from arming) on which the timer fires
	}{
		{name: "shorten", first: 10, second: 6, rearmAt: 4, fireTick: 7},
		{name: "lengthen", first: 5, second: 12, rearmAt: 3, fireTick: 13},
		{name: "shorten below elapsed", first: 10, second: 2, rearmAt: 5, fireTick: 6},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(t)
			fired := 0
			cb := counting("rearm", &fired)
			if err := s.StartOnce(tt.first, cb); err != nil {
				t.Fatalf("StartOnce error: %v", err)
			}
			tickN(s, tt.rearmAt)
			if err := s.StartOnce(tt.second, cb); err != nil {
				t.Fatalf("StartOnce (rearm) error: %v", err)
			}
			tickN(s, tt.fireTick-tt.rearmAt-1)
			if fired != 0 {
				t.Fatalf("fired early after %d ticks", tt.fireTick-1)
			}
			s.Tick()
			if fired != 1 {
				t.Fatalf("fired = %d on tick %d, want 1", fired, tt.fireTick)
			}
			snap := s.Snapshot()
			if snap.Timers[0].StartMS != 0 || snap.Timers[0].DelayMS != tt.second {
				t.Fatalf("timer = %+v", snap.Timers[0])
			}
		})
	}
}

func TestStartOnceAfterFireRestarts(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	fired := 0
	cb := counting("again", &fired)
	if err := s.StartOnce(2, cb); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}
	tickN(s, 10)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if err := s.StartOnce(3, cb); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}
	if got := s.Snapshot().Timers[0]; !got.Active || got.StartMS != 10 {
		t.Fatalf("timer = %+v, want active from 10", got)
	}
	tickN(s, 4)
	if fired != 2 {
		t.Fatalf("fired = %d, want 2", fired)
	}
	if len(s.Snapshot().Timers) != 1 {
		t.Fatal("re-arming must reuse the existing slot")
	}
}

func TestTimerCallbackRearmsItself(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	fired := 0
	var cb *Callback
	cb = NewCallback("loop", func() {
		fired++
		if err := s.StartOnce(3, cb); err != nil {
			t.Errorf("StartOnce from timer: %v", err)
		}
	})
	if err := s.StartOnce(3, cb); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}
	tickN(s, 10) // fires at clock 3, 6 and 9
	if fired != 3 {
		t.Fatalf("fired = %d, want 3", fired)
	}
}

func TestTimerTableFull(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, WithTimerCapacity(2))
	var n int
	a, b, c := counting("a", &n), counting("b", &n), counting("c", &n)
	if err := s.StartOnce(1, a); err != nil {
		t.Fatalf("StartOnce a: %v", err)
	}
	if err := s.StartOnce(1, b); err != nil {
		t.Fatalf("StartOnce b: %v", err)
	}
	if err := s.StartOnce(1, c); !errors.Is(err, ErrTableFull) {
		t.Fatalf("StartOnce c err = %v, want ErrTableFull", err)
	}
	// Updating an existing timer still works on a full table.
	if err := s.StartOnce(9, a); err != nil {
		t.Fatalf("StartOnce a (update): %v", err)
	}
	// Fired timers keep their slot until deleted.
	tickN(s, 20)
	if err := s.StartOnce(1, c); !errors.Is(err, ErrTableFull) {
		t.Fatalf("StartOnce c after fire err = %v, want ErrTableFull", err)
	}
	if err := s.DeleteTimer(b); err != nil {
		t.Fatalf("DeleteTimer b: %v", err)
	}
	if err := s.StartOnce(1, c); err != nil {
		t.Fatalf("StartOnce c after delete: %v", err)
	}
}

func TestDeleteTimerCancelsPending(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	fired := 0
	cb := counting("cancel", &fired)
	if err := s.StartOnce(3, cb); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}
	s.Tick()
	if err := s.DeleteTimer(cb); err != nil {
		t.Fatalf("DeleteTimer error: %v", err)
	}
	tickN(s, 10)
	if fired != 0 {
		t.Fatalf("fired = %d, want 0", fired)
	}
	if err := s.DeleteTimer(cb); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTimersDisabled(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, WithTimerCapacity(0))
	n := 0
	cb := counting("x", &n)
	err := s.StartOnce(1, cb)
	if !errors.Is(err, ErrTimersDisabled) || !errors.Is(err, ErrTableFull) {
		t.Fatalf("err = %v, want ErrTimersDisabled wrapping ErrTableFull", err)
	}
	if err := s.DeleteTimer(cb); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteTimer err = %v, want ErrNotFound", err)
	}
	s.Tick()
	if s.CurrentMillis() != 1 {
		t.Fatal("Tick must still advance the clock")
	}
}

func TestTimerAndTaskShareCallback(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	runs := 0
	cb := counting("both", &runs)
	if _, err := s.AddTask(cb, 4); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}
	if err := s.StartOnce(1, cb); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}
	tickN(s, 2) // timer fires inside Tick
	if runs != 1 {
		t.Fatalf("runs = %d after timer, want 1", runs)
	}
	tickN(s, 2)
	s.Update() // task ready after 4 ticks
	if runs != 2 {
		t.Fatalf("runs = %d after task, want 2", runs)
	}
}
