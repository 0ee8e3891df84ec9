// Package jobs holds the built-in callbacks a config file can bind to task
// slots by name.
package jobs

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"taskman/internal/metrics"
	logx "taskman/pkg/logx"
	"taskman/pkg/taskman"
)

var (
	ErrDuplicate = errors.New("job already registered")
	ErrEmptyName = errors.New("job name is empty")
)

// Registry maps job names to scheduler callbacks. Every registered body is
// timed into the metrics recorder and shielded from panics, so a faulty job
// cannot take down the update loop.
type Registry struct {
	log logx.Logger
	rec *metrics.Recorder

	mu   sync.RWMutex
	jobs map[string]*taskman.Callback
}

// NewRegistry creates an empty registry. rec may be nil.
func NewRegistry(log logx.Logger, rec *metrics.Recorder) *Registry {
	return &Registry{log: log, rec: rec, jobs: map[string]*taskman.Callback{}}
}

// Register wraps fn and stores it under name. The returned callback is the
// identity the scheduler tables key on.
func (r *Registry) Register(name string, fn func()) (*taskman.Callback, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if fn == nil {
		return nil, fmt.Errorf("%s: %w", name, taskman.ErrNilCallback)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, ErrDuplicate)
	}
	if r.rec != nil {
		r.rec.Track(name)
	}
	cb := taskman.NewCallback(name, r.wrap(name, fn))
	r.jobs[name] = cb
	return cb, nil
}

func (r *Registry) wrap(name string, fn func()) func() {
	guarded := func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("job panicked",
					logx.String("job", name),
					logx.Any("panic", p),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		fn()
	}
	if r.rec == nil {
		return guarded
	}
	return func() { r.rec.Time(name, guarded) }
}

func (r *Registry) Lookup(name string) (*taskman.Callback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.jobs[strings.TrimSpace(name)]
	return cb, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
