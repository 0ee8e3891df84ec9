package taskman

import (
	logx "taskman/pkg/logx"
)

// StartOnce arms a one-shot timer that runs cb from inside Tick once delayMS
// has elapsed on the clock.
//
// If cb already has a slot its delay is replaced. The start time is only
// reset when that timer is not running, so calling StartOnce on an armed
// timer moves its deadline relative to the original start rather than
// restarting it.
func (s *Scheduler) StartOnce(delayMS uint32, cb *Callback) error {
	if !cb.valid() {
		return ErrNilCallback
	}
	if len(s.timers) == 0 {
		return ErrTimersDisabled
	}
	now := s.millis.Load()

	s.mu.Lock()
	slot, rearmed, restarted := -1, false, false
	if i := s.findTimerLocked(cb); i >= 0 {
		t := &s.timers[i]
		t.delay = delayMS
		if !t.active {
			t.active = true
			t.start = now
			restarted = true
		}
		slot, rearmed = i, true
	} else {
		for i := range s.timers {
			if s.timers[i].cb == nil {
				s.timers[i] = timerSlot{cb: cb, active: true, start: now, delay: delayMS}
				slot = i
				break
			}
		}
	}
	s.mu.Unlock()

	if slot < 0 {
		s.log.Debug("timer start failed", logx.String("timer", cb.Name()), logx.Int("capacity", len(s.timers)))
		return ErrTableFull
	}
	s.log.Debug("timer armed",
		logx.String("timer", cb.Name()),
		logx.Int("slot", slot),
		logx.Uint32("delay_ms", delayMS),
		logx.Bool("rearmed", rearmed),
		logx.Bool("restarted", restarted || !rearmed),
	)
	return nil
}

// DeleteTimer frees the slot holding cb, armed or not.
func (s *Scheduler) DeleteTimer(cb *Callback) error {
	if !cb.valid() {
		return ErrNilCallback
	}
	s.mu.Lock()
	i := s.findTimerLocked(cb)
	if i >= 0 {
		s.timers[i].cb = nil
	}
	s.mu.Unlock()

	if i < 0 {
		return ErrNotFound
	}
	s.log.Debug("timer deleted", logx.String("timer", cb.Name()), logx.Int("slot", i))
	return nil
}

func (s *Scheduler) findTimerLocked(cb *Callback) int {
	for i := range s.timers {
		if s.timers[i].cb == cb {
			return i
		}
	}
	return -1
}

// processTimers fires expired timers against now, the clock at tick start.
func (s *Scheduler) processTimers(now uint32) {
	for i := range s.timers {
		s.mu.Lock()
		t := &s.timers[i]
		if !t.active || !Elapsed(now, t.start, t.delay) {
			s.mu.Unlock()
			continue
		}
		t.active = false
		cb := t.cb
		s.mu.Unlock()

		if cb != nil {
			cb.Run()
			s.timerFires.Add(1)
		}
	}
}
