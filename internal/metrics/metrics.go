// Package metrics keeps a bounded window of callback run durations per job
// and summarizes them on demand.
package metrics

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

const DefaultWindow = 256

// Summary describes the durations currently held for one job.
type Summary struct {
	Name   string        `json:"name"`
	Count  int           `json:"count"`
	Total  uint64        `json:"total"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stddev"`
	P50    time.Duration `json:"p50"`
	P99    time.Duration `json:"p99"`
	Max    time.Duration `json:"max"`
}

type ring struct {
	buf   []float64 // nanoseconds
	next  int
	full  bool
	total uint64
}

func (r *ring) add(v float64) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.total++
}

func (r *ring) values() []float64 {
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]float64, n)
	copy(out, r.buf[:n])
	return out
}

// Recorder is safe for concurrent use. Observe does not allocate once a
// job's ring exists.
type Recorder struct {
	window int

	mu    sync.Mutex
	rings map[string]*ring
}

func NewRecorder(window int) *Recorder {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Recorder{window: window, rings: map[string]*ring{}}
}

// Track creates name's ring ahead of its first observation, so the first
// Observe from a hot path does not allocate.
func (r *Recorder) Track(name string) {
	r.mu.Lock()
	if r.rings[name] == nil {
		r.rings[name] = &ring{buf: make([]float64, r.window)}
	}
	r.mu.Unlock()
}

func (r *Recorder) Observe(name string, d time.Duration) {
	r.mu.Lock()
	rg := r.rings[name]
	if rg == nil {
		rg = &ring{buf: make([]float64, r.window)}
		r.rings[name] = rg
	}
	rg.add(float64(d))
	r.mu.Unlock()
}

// Time runs fn and records its duration under name.
func (r *Recorder) Time(name string, fn func()) {
	start := time.Now()
	fn()
	r.Observe(name, time.Since(start))
}

func (r *Recorder) Summary(name string) (Summary, bool) {
	r.mu.Lock()
	rg := r.rings[name]
	if rg == nil {
		r.mu.Unlock()
		return Summary{}, false
	}
	vals := rg.values()
	total := rg.total
	r.mu.Unlock()

	return summarize(name, vals, total), true
}

// All returns a summary per job, sorted by name.
func (r *Recorder) All() []Summary {
	r.mu.Lock()
	names := make([]string, 0, len(r.rings))
	for name := range r.rings {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	out := make([]Summary, 0, len(names))
	for _, name := range names {
		if s, ok := r.Summary(name); ok {
			out = append(out, s)
		}
	}
	return out
}

func summarize(name string, vals []float64, total uint64) Summary {
	s := Summary{Name: name, Count: len(vals), Total: total}
	if len(vals) == 0 {
		return s
	}
	sort.Float64s(vals)

	mean, std := stat.MeanStdDev(vals, nil)
	if len(vals) < 2 {
		std = 0
	}
	s.Mean = time.Duration(mean)
	s.StdDev = time.Duration(std)
	s.P50 = time.Duration(stat.Quantile(0.5, stat.Empirical, vals, nil))
	s.P99 = time.Duration(stat.Quantile(0.99, stat.Empirical, vals, nil))
	s.Max = time.Duration(vals[len(vals)-1])
	return s
}
