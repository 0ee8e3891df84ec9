// Package snapshot periodically copies scheduler state into storage on a
// wall-clock cron schedule.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"taskman/internal/storage"
	logx "taskman/pkg/logx"
	"taskman/pkg/taskman"
)

const (
	DefaultSchedule = "@every 30s"
	saveTimeout     = 5 * time.Second
)

// Source produces the snapshot to persist.
type Source interface {
	Snapshot() taskman.Snapshot
}

// Persister saves Source snapshots to a Store on a cron schedule.
type Persister struct {
	src    Source
	store  storage.Store
	log    logx.Logger
	parser cron.Parser

	mu   sync.Mutex
	c    *cron.Cron
	spec string

	saved  atomic.Uint64
	failed atomic.Uint64
}

func New(src Source, store storage.Store, log logx.Logger) *Persister {
	return &Persister{
		src:    src,
		store:  store,
		log:    log.With(logx.String("comp", "snapshot")),
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate reports whether spec is a usable schedule. Empty means default.
func (p *Persister) Validate(spec string) error {
	_, err := p.parser.Parse(normalize(spec))
	if err != nil {
		return fmt.Errorf("snapshot schedule %q: %w", spec, err)
	}
	return nil
}

func normalize(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultSchedule
	}
	return spec
}

// Schedule (re)starts the cron trigger with spec. Calling it with the
// current spec is a no-op.
func (p *Persister) Schedule(spec string) error {
	spec = normalize(spec)
	sched, err := p.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("snapshot schedule %q: %w", spec, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil && p.spec == spec {
		return nil
	}
	if p.c != nil {
		<-p.c.Stop().Done()
	}
	p.c = cron.New(
		cron.WithParser(p.parser),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{p.log})),
		cron.WithLogger(cronLogger{p.log}),
	)
	p.c.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := p.Save(ctx, "schedule"); err != nil {
			p.log.Warn("snapshot save failed", logx.Err(err))
		}
	}))
	p.c.Start()
	p.spec = spec
	p.log.Info("snapshot schedule set", logx.String("schedule", spec))
	return nil
}

// Save persists one snapshot immediately.
func (p *Persister) Save(ctx context.Context, reason string) error {
	if p.store == nil {
		return storage.ErrDisabled
	}
	rec := storage.Record{At: time.Now(), Reason: reason, Snapshot: p.src.Snapshot()}
	if err := p.store.AppendSnapshot(ctx, rec); err != nil {
		p.failed.Add(1)
		return err
	}
	p.saved.Add(1)
	p.log.Debug("snapshot saved",
		logx.String("reason", reason),
		logx.Uint32("millis", rec.Snapshot.Millis),
		logx.Int("tasks", len(rec.Snapshot.Tasks)),
	)
	return nil
}

// Spec returns the active schedule, or "" when no trigger is running.
func (p *Persister) Spec() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spec
}

func (p *Persister) Saved() uint64  { return p.saved.Load() }
func (p *Persister) Failed() uint64 { return p.failed.Load() }

// Stop halts the trigger and waits for an in-flight save, bounded by ctx.
func (p *Persister) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.spec = ""
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Run schedules spec, blocks until ctx ends, then stops the trigger and
// writes a final "shutdown" snapshot.
func (p *Persister) Run(ctx context.Context, spec string) error {
	if err := p.Schedule(spec); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	p.Stop(stopCtx)
	if err := p.Save(stopCtx, "shutdown"); err != nil && !errors.Is(err, storage.ErrDisabled) {
		p.log.Warn("final snapshot failed", logx.Err(err))
	}
	return nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
