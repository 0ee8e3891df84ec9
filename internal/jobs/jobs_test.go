package jobs

import (
	"errors"
	"testing"

	"taskman/internal/metrics"
	logx "taskman/pkg/logx"
	"taskman/pkg/taskman"
)

func newSched(t *testing.T, opts ...taskman.Option) *taskman.Scheduler {
	t.Helper()
	s, err := taskman.New(opts...)
	if err != nil {
		t.Fatalf("taskman.New: %v", err)
	}
	return s
}

func tick(s *taskman.Scheduler, n int) {
	for i := 0; i < n; i++ {
		s.Tick()
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(logx.Nop(), nil)
	cb, err := r.Register(" a ", func() {})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, ok := r.Lookup("a"); !ok || got != cb {
		t.Fatalf("Lookup returned a different callback")
	}
	if _, err := r.Register("a", func() {}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err=%v want ErrDuplicate", err)
	}
	if _, err := r.Register("", func() {}); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("err=%v want ErrEmptyName", err)
	}
	if _, err := r.Register("nil", nil); !errors.Is(err, taskman.ErrNilCallback) {
		t.Fatalf("err=%v want ErrNilCallback", err)
	}
}

func TestRegistryRecoversAndTimes(t *testing.T) {
	t.Parallel()

	rec := metrics.NewRecorder(4)
	r := NewRegistry(logx.Nop(), rec)
	cb, _ := r.Register("boom", func() { panic("bad job") })

	cb.Run()

	s, ok := rec.Summary("boom")
	if !ok || s.Total != 1 {
		t.Fatalf("summary=%+v ok=%v", s, ok)
	}
}

func TestRegisterTracksMetricsUpFront(t *testing.T) {
	t.Parallel()

	rec := metrics.NewRecorder(4)
	if _, err := Builtin(Deps{Sched: newSched(t), Log: logx.Nop(), Metrics: rec}); err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	for _, name := range BuiltinNames() {
		s, ok := rec.Summary(name)
		if !ok || s.Total != 0 {
			t.Fatalf("%s: summary=%+v ok=%v want tracked before first run", name, s, ok)
		}
	}
}

func TestBuiltinNames(t *testing.T) {
	t.Parallel()

	r, err := Builtin(Deps{Sched: newSched(t), Log: logx.Nop()})
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	want := BuiltinNames()
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("names=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names=%v want %v", got, want)
		}
	}
}

func TestBlinkTurnsLEDOffAfterTimer(t *testing.T) {
	t.Parallel()

	s := newSched(t)
	led := &LED{}
	r, err := Builtin(Deps{Sched: s, Log: logx.Nop(), LED: led})
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	blink, _ := r.Lookup(Blink)

	blink.Run()
	if !led.IsOn() || led.Flashes() != 1 {
		t.Fatalf("LED should be on after blink")
	}

	tick(s, BlinkOnMS)
	if !led.IsOn() {
		t.Fatalf("LED turned off early at clock %d", s.CurrentMillis())
	}
	tick(s, 1)
	if led.IsOn() {
		t.Fatalf("LED still on at clock %d", s.CurrentMillis())
	}
}

func TestBlinkWithoutTimers(t *testing.T) {
	t.Parallel()

	s := newSched(t, taskman.WithTimerCapacity(0))
	led := &LED{}
	r, _ := Builtin(Deps{Sched: s, Log: logx.Nop(), LED: led})
	blink, _ := r.Lookup(Blink)

	blink.Run()
	if led.IsOn() {
		t.Fatalf("LED must not stay on when no timer can turn it off")
	}
}

func TestWatchdogNotifies(t *testing.T) {
	t.Parallel()

	var states []string
	notify := func(state string) (bool, error) {
		states = append(states, state)
		return true, nil
	}
	r, _ := Builtin(Deps{Sched: newSched(t), Log: logx.Nop(), Notify: notify})
	wd, _ := r.Lookup(Watchdog)

	wd.Run()
	wd.Run()
	if len(states) != 2 || states[0] != "WATCHDOG=1" {
		t.Fatalf("states=%v", states)
	}
}

func TestHeartbeatAndStatsRun(t *testing.T) {
	t.Parallel()

	rec := metrics.NewRecorder(4)
	r, _ := Builtin(Deps{Sched: newSched(t), Log: logx.Nop(), Metrics: rec})
	hb, _ := r.Lookup(Heartbeat)
	st, _ := r.Lookup(Stats)

	hb.Run()
	st.Run()

	if _, ok := rec.Summary(Heartbeat); !ok {
		t.Fatalf("heartbeat duration not recorded")
	}
}
