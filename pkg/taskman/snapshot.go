package taskman

// TaskInfo describes one occupied task slot.
type TaskInfo struct {
	Slot        int    `json:"slot"`
	Name        string `json:"name"`
	PeriodMS    uint32 `json:"period_ms"`
	RemainingMS uint32 `json:"remaining_ms"`
	Ready       bool   `json:"ready"`
}

// TimerInfo describes one occupied timer slot.
type TimerInfo struct {
	Slot    int    `json:"slot"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	StartMS uint32 `json:"start_ms"`
	DelayMS uint32 `json:"delay_ms"`
}

// Snapshot is a point-in-time view of both tables.
//
// Tables are copied under separate critical sections, so a snapshot taken
// while the tick context runs may straddle one tick.
type Snapshot struct {
	Millis        uint32      `json:"millis"`
	TaskCapacity  int         `json:"task_capacity"`
	TimerCapacity int         `json:"timer_capacity"`
	Tasks         []TaskInfo  `json:"tasks"`
	Timers        []TimerInfo `json:"timers"`
	Stats         Stats       `json:"stats"`
}

// Snapshot copies the occupied slots. It allocates and is not meant for the
// tick context.
func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		Millis:        s.millis.Load(),
		TaskCapacity:  len(s.tasks),
		TimerCapacity: len(s.timers),
		Tasks:         make([]TaskInfo, 0, len(s.tasks)),
		Timers:        make([]TimerInfo, 0, len(s.timers)),
		Stats:         s.Stats(),
	}

	s.mu.Lock()
	for i, t := range s.tasks {
		if t.cb == nil {
			continue
		}
		snap.Tasks = append(snap.Tasks, TaskInfo{
			Slot:        i,
			Name:        t.cb.Name(),
			PeriodMS:    t.period,
			RemainingMS: t.remaining,
			Ready:       t.ready,
		})
	}
	for i, t := range s.timers {
		if t.cb == nil {
			continue
		}
		snap.Timers = append(snap.Timers, TimerInfo{
			Slot:    i,
			Name:    t.cb.Name(),
			Active:  t.active,
			StartMS: t.start,
			DelayMS: t.delay,
		})
	}
	s.mu.Unlock()

	return snap
}

// FreeTaskSlots returns the number of unoccupied task slots.
func (s *Scheduler) FreeTaskSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.tasks {
		if s.tasks[i].cb == nil {
			n++
		}
	}
	return n
}
