package taskman

import (
	"fmt"

	logx "taskman/pkg/logx"
)

// Defaults mirror a typical small MCU build.
const (
	DefaultTaskCapacity  = 10
	DefaultTimerCapacity = 5

	// MaxCapacity bounds both tables; slot scans are linear and run in
	// interrupt context.
	MaxCapacity = 255
)

// Options is common options.
type Options struct {
	TaskCapacity  int
	TimerCapacity int
	StartMillis   uint32
	IdleHook      func()
	Logger        logx.Logger
}

// NewOptions creates options with defaults.
func NewOptions(opts ...Option) Options {
	options := Options{
		TaskCapacity:  DefaultTaskCapacity,
		TimerCapacity: DefaultTimerCapacity,
		IdleHook:      func() {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func (o Options) validate() error {
	if o.TaskCapacity < 1 || o.TaskCapacity > MaxCapacity {
		return fmt.Errorf("%w: task capacity %d (want 1..%d)", ErrCapacity, o.TaskCapacity, MaxCapacity)
	}
	if o.TimerCapacity < 0 || o.TimerCapacity > MaxCapacity {
		return fmt.Errorf("%w: timer capacity %d (want 0..%d)", ErrCapacity, o.TimerCapacity, MaxCapacity)
	}
	return nil
}

// Option is for setting options.
type Option func(*Options)

// WithTaskCapacity sets the number of periodic task slots (1..255).
func WithTaskCapacity(n int) Option {
	return func(o *Options) { o.TaskCapacity = n }
}

// WithTimerCapacity sets the number of one-shot timer slots (0..255).
// Zero disables one-shot timers; no timer storage is allocated.
func WithTimerCapacity(n int) Option {
	return func(o *Options) { o.TimerCapacity = n }
}

// WithStartMillis seeds the clock.
func WithStartMillis(ms uint32) Option {
	return func(o *Options) { o.StartMillis = ms }
}

// WithIdleHook sets the hook Update calls when a pass ran nothing.
// A nil hook is ignored.
func WithIdleHook(fn func()) Option {
	return func(o *Options) {
		if fn != nil {
			o.IdleHook = fn
		}
	}
}

// WithLogger sets logger.
func WithLogger(log logx.Logger) Option {
	return func(o *Options) { o.Logger = log }
}
