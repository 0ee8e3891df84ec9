package taskman

import (
	"math"
	"testing"
)

func TestElapsed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		now, since uint32
		d          uint32
		want       bool
	}{
		{name: "zero delay", now: 5, since: 5, d: 0, want: true},
		{name: "not yet", now: 9, since: 5, d: 5, want: false},
		{name: "exact", now: 10, since: 5, d: 5, want: true},
		{name: "wrap not yet", now: 1, since: math.MaxUint32 - 2, d: 5, want: false},
		{name: "wrap exact", now: 2, since: math.MaxUint32 - 2, d: 5, want: true},
		{name: "wrap past", now: 100, since: math.MaxUint32, d: 5, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Elapsed(tt.now, tt.since, tt.d); got != tt.want {
				t.Fatalf("Elapsed(%d, %d, %d) = %v, want %v", tt.now, tt.since, tt.d, got, tt.want)
			}
		})
	}
}

func TestDelayElapsed(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	var ts uint32
	if s.DelayElapsed(&ts, 3) {
		t.Fatal("DelayElapsed true at clock 0")
	}
	tickN(s, 2)
	if s.DelayElapsed(&ts, 3) || ts != 0 {
		t.Fatalf("DelayElapsed true early (ts=%d)", ts)
	}
	s.Tick()
	if !s.DelayElapsed(&ts, 3) {
		t.Fatal("DelayElapsed false at deadline")
	}
	if ts != 3 {
		t.Fatalf("ts = %d, want 3", ts)
	}
	if s.DelayElapsed(&ts, 3) {
		t.Fatal("DelayElapsed must re-arm from the new timestamp")
	}
	if s.DelayElapsed(nil, 0) {
		t.Fatal("DelayElapsed(nil) must be false")
	}
}

func TestDelayElapsedAcrossWrap(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, WithStartMillis(math.MaxUint32-2))
	ts := s.CurrentMillis()

	tickN(s, 4) // clock wraps to 1
	if s.CurrentMillis() != 1 {
		t.Fatalf("clock = %d, want 1", s.CurrentMillis())
	}
	if s.DelayElapsed(&ts, 5) {
		t.Fatal("DelayElapsed true 4ms after arm")
	}
	s.Tick()
	if !s.DelayElapsed(&ts, 5) {
		t.Fatal("DelayElapsed false 5ms after arm across wrap")
	}
	if ts != 2 {
		t.Fatalf("ts = %d, want 2", ts)
	}
}

func TestTimerAcrossWrap(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, WithStartMillis(math.MaxUint32-2))
	fired := 0
	if err := s.StartOnce(5, counting("wrap", &fired)); err != nil {
		t.Fatalf("StartOnce error: %v", err)
	}
	tickN(s, 5)
	if fired != 0 {
		t.Fatal("timer fired early across wrap")
	}
	s.Tick()
	if fired != 1 {
		t.Fatalf("fired = %d across wrap, want 1", fired)
	}
}
