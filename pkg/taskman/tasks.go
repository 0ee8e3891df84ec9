package taskman

import (
	logx "taskman/pkg/logx"
)

// AddTask installs cb in the first free slot with the given period and
// returns the slot index. The first run happens periodMS ticks from now.
//
// Duplicates are not checked: adding the same callback twice uses two slots.
// A period of zero never becomes ready on its own.
func (s *Scheduler) AddTask(cb *Callback, periodMS uint32) (int, error) {
	if !cb.valid() {
		return -1, ErrNilCallback
	}
	s.mu.Lock()
	slot := -1
	for i := range s.tasks {
		if s.tasks[i].cb == nil {
			s.tasks[i] = taskSlot{cb: cb, period: periodMS, remaining: periodMS}
			slot = i
			break
		}
	}
	s.mu.Unlock()

	if slot < 0 {
		s.log.Debug("task add failed", logx.String("task", cb.Name()), logx.Int("capacity", len(s.tasks)))
		return -1, ErrTableFull
	}
	s.log.Debug("task added", logx.String("task", cb.Name()), logx.Int("slot", slot), logx.Uint32("period_ms", periodMS))
	return slot, nil
}

// UpdateTask changes the period of the first slot holding cb and restarts
// its countdown. A pending ready flag is dropped.
func (s *Scheduler) UpdateTask(cb *Callback, periodMS uint32) error {
	if !cb.valid() {
		return ErrNilCallback
	}
	s.mu.Lock()
	i := s.findTaskLocked(cb)
	if i >= 0 {
		t := &s.tasks[i]
		t.period = periodMS
		t.remaining = periodMS
		t.ready = false
	}
	s.mu.Unlock()

	if i < 0 {
		return ErrNotFound
	}
	s.log.Debug("task updated", logx.String("task", cb.Name()), logx.Int("slot", i), logx.Uint32("period_ms", periodMS))
	return nil
}

// DeleteTask frees the first slot holding cb. A task already marked ready
// will not run.
func (s *Scheduler) DeleteTask(cb *Callback) error {
	if !cb.valid() {
		return ErrNilCallback
	}
	s.mu.Lock()
	i := s.findTaskLocked(cb)
	if i >= 0 {
		s.tasks[i].cb = nil
	}
	s.mu.Unlock()

	if i < 0 {
		return ErrNotFound
	}
	s.log.Debug("task deleted", logx.String("task", cb.Name()), logx.Int("slot", i))
	return nil
}

func (s *Scheduler) findTaskLocked(cb *Callback) int {
	for i := range s.tasks {
		if s.tasks[i].cb == cb {
			return i
		}
	}
	return -1
}
