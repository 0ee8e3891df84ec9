// Package taskman is a cooperative, non-preemptive task scheduler for
// small targets driven by a millisecond tick.
//
// A Scheduler owns two fixed-capacity tables allocated once by New:
//   - periodic tasks, counted down by Tick and run by Update
//   - one-shot timers, fired from inside Tick
//
// Tick is meant for the interrupt context (a hardware timer at 1 kHz, or a
// dedicated goroutine on a host). It is bounded by the table capacities and
// never allocates. Update is meant for the main loop: each call makes exactly
// one pass over the task table, runs every ready task and falls back to the
// idle hook when nothing was ready.
//
// Callbacks are identified by their *Callback box, not by the func inside it:
//
//	led := taskman.NewCallback("led", toggleLED)
//	s, _ := taskman.New(taskman.WithTaskCapacity(4))
//	_, _ = s.AddTask(led, 500)
//	for {
//		s.Update()
//	}
//
// The internal lock is never held while a callback runs, so callbacks may add,
// update or delete tasks and arm timers, including their own.
package taskman
