package taskman

import (
	"errors"
	"testing"
)

func TestAddTaskFillsTableInOrder(t *testing.T) {
	t.Parallel()
	const capacity = 4
	s := newTestScheduler(t, WithTaskCapacity(capacity))
	var n int
	for i := 0; i < capacity; i++ {
		slot, err := s.AddTask(counting("t", &n), 10)
		if err != nil {
			t.Fatalf("AddTask #%d error: %v", i, err)
		}
		if slot != i {
			t.Fatalf("AddTask #%d slot = %d, want %d", i, slot, i)
		}
	}
	slot, err := s.AddTask(counting("overflow", &n), 10)
	if !errors.Is(err, ErrTableFull) {
		t.Fatalf("err = %v, want ErrTableFull", err)
	}
	if slot != -1 {
		t.Fatalf("slot = %d, want -1", slot)
	}
	if s.FreeTaskSlots() != 0 {
		t.Fatalf("free = %d, want 0", s.FreeTaskSlots())
	}
}

func TestNilCallbackRejected(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	if _, err := s.AddTask(nil, 1); !errors.Is(err, ErrNilCallback) {
		t.Fatalf("AddTask err = %v", err)
	}
	if err := s.UpdateTask(nil, 1); !errors.Is(err, ErrNilCallback) {
		t.Fatalf("UpdateTask err = %v", err)
	}
	if err := s.DeleteTask(nil); !errors.Is(err, ErrNilCallback) {
		t.Fatalf("DeleteTask err = %v", err)
	}
	if err := s.StartOnce(1, nil); !errors.Is(err, ErrNilCallback) {
		t.Fatalf("StartOnce err = %v", err)
	}
	if err := s.DeleteTimer(nil); !errors.Is(err, ErrNilCallback) {
		t.Fatalf("DeleteTimer err = %v", err)
	}
	if NewCallback("nil", nil) != nil {
		t.Fatal("NewCallback with nil func should return nil")
	}

	// A zero Callback has no body and must not occupy a slot either.
	for _, zero := range []*Callback{new(Callback), {name: "x"}} {
		if slot, err := s.AddTask(zero, 1); !errors.Is(err, ErrNilCallback) || slot != -1 {
			t.Fatalf("AddTask(zero) = %d, %v", slot, err)
		}
		if err := s.UpdateTask(zero, 1); !errors.Is(err, ErrNilCallback) {
			t.Fatalf("UpdateTask(zero) err = %v", err)
		}
		if err := s.DeleteTask(zero); !errors.Is(err, ErrNilCallback) {
			t.Fatalf("DeleteTask(zero) err = %v", err)
		}
		if err := s.StartOnce(0, zero); !errors.Is(err, ErrNilCallback) {
			t.Fatalf("StartOnce(zero) err = %v", err)
		}
		if err := s.DeleteTimer(zero); !errors.Is(err, ErrNilCallback) {
			t.Fatalf("DeleteTimer(zero) err = %v", err)
		}
	}
	s.Tick()
	s.Update()
	if s.FreeTaskSlots() != s.TaskCapacity() {
		t.Fatal("nil callback must not occupy a slot")
	}
}

func TestPeriodicSteadyState(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	runs := 0
	cb := counting("p3", &runs)
	if _, err := s.AddTask(cb, 3); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}

	tickN(s, 2)
	s.Update()
	if runs != 0 {
		t.Fatalf("runs = %d after 2 ticks, want 0", runs)
	}
	s.Tick()
	s.Update()
	if runs != 1 {
		t.Fatalf("runs = %d after 3 ticks, want 1", runs)
	}

	// A late Update must not shift the phase.
	tickN(s, 2)
	s.Update()
	if runs != 1 {
		t.Fatalf("runs = %d after 5 ticks, want 1", runs)
	}
	s.Tick()
	s.Update()
	if runs != 2 {
		t.Fatalf("runs = %d after 6 ticks, want 2", runs)
	}
}

func TestReadyIsAFlagNotACounter(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	runs := 0
	if _, err := s.AddTask(counting("p2", &runs), 2); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}
	tickN(s, 6) // three periods, no Update in between
	s.Update()
	s.Update()
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestZeroPeriodNeverFires(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	runs := 0
	if _, err := s.AddTask(counting("zero", &runs), 0); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}
	for i := 0; i < 50; i++ {
		s.Tick()
		s.Update()
	}
	if runs != 0 {
		t.Fatalf("runs = %d, want 0", runs)
	}
}

func TestUpdateTaskRestartsCountdown(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	runs := 0
	cb := counting("u", &runs)
	if _, err := s.AddTask(cb, 5); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}
	tickN(s, 5)
	if err := s.UpdateTask(cb, 2); err != nil {
		t.Fatalf("UpdateTask error: %v", err)
	}
	s.Update()
	if runs != 0 {
		t.Fatalf("UpdateTask must clear ready; runs = %d", runs)
	}
	s.Tick()
	s.Update()
	if runs != 0 {
		t.Fatalf("runs = %d after 1 tick, want 0", runs)
	}
	s.Tick()
	s.Update()
	if runs != 1 {
		t.Fatalf("runs = %d after 2 ticks, want 1", runs)
	}

	other := counting("other", &runs)
	if err := s.UpdateTask(other, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTaskFreesSlotForReuse(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, WithTaskCapacity(3))
	var n int
	a, b, c := counting("a", &n), counting("b", &n), counting("c", &n)
	for _, cb := range []*Callback{a, b, c} {
		if _, err := s.AddTask(cb, 1); err != nil {
			t.Fatalf("AddTask error: %v", err)
		}
	}
	if err := s.DeleteTask(b); err != nil {
		t.Fatalf("DeleteTask error: %v", err)
	}
	if err := s.DeleteTask(b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteTask err = %v, want ErrNotFound", err)
	}
	d := counting("d", &n)
	slot, err := s.AddTask(d, 1)
	if err != nil || slot != 1 {
		t.Fatalf("AddTask = %d, %v; want slot 1", slot, err)
	}
}

func TestDuplicateCallbackUsesFirstMatch(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, WithTaskCapacity(3))
	runs := 0
	cb := counting("dup", &runs)
	if slot, _ := s.AddTask(cb, 4); slot != 0 {
		t.Fatalf("first slot = %d", slot)
	}
	if slot, _ := s.AddTask(cb, 4); slot != 1 {
		t.Fatalf("second slot = %d", slot)
	}

	if err := s.UpdateTask(cb, 1); err != nil {
		t.Fatalf("UpdateTask error: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Tasks) != 2 || snap.Tasks[0].PeriodMS != 1 || snap.Tasks[1].PeriodMS != 4 {
		t.Fatalf("tasks = %+v", snap.Tasks)
	}

	if err := s.DeleteTask(cb); err != nil {
		t.Fatalf("DeleteTask error: %v", err)
	}
	snap = s.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].Slot != 1 {
		t.Fatalf("tasks after delete = %+v", snap.Tasks)
	}
}

func TestDeletedReadyTaskDoesNotRun(t *testing.T) {
	t.Parallel()
	idle := 0
	s := newTestScheduler(t, WithIdleHook(func() { idle++ }))
	runs := 0
	cb := counting("gone", &runs)
	if _, err := s.AddTask(cb, 1); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}
	s.Tick()
	if err := s.DeleteTask(cb); err != nil {
		t.Fatalf("DeleteTask error: %v", err)
	}
	s.Update()
	if runs != 0 || idle != 1 {
		t.Fatalf("runs=%d idle=%d, want 0/1", runs, idle)
	}
}

func TestCallbacksMayMutateTables(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, WithTaskCapacity(2))
	var followRuns, selfRuns int
	follow := counting("follow", &followRuns)
	var self *Callback
	self = NewCallback("self", func() {
		selfRuns++
		if err := s.DeleteTask(self); err != nil {
			t.Errorf("DeleteTask from callback: %v", err)
		}
		if _, err := s.AddTask(follow, 1); err != nil {
			t.Errorf("AddTask from callback: %v", err)
		}
	})
	if _, err := s.AddTask(self, 1); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}

	s.Tick()
	s.Update()
	s.Tick()
	s.Update()
	if selfRuns != 1 || followRuns != 1 {
		t.Fatalf("self=%d follow=%d, want 1/1", selfRuns, followRuns)
	}
}
