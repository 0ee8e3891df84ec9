package taskman

// Callback is the identity handle for a task or timer body.
//
// Tables match callbacks by pointer, so keep the *Callback returned by
// NewCallback and pass the same value to UpdateTask, DeleteTask, StartOnce
// and DeleteTimer. Two callbacks wrapping the same func are distinct.
type Callback struct {
	name string
	fn   func()
}

// NewCallback boxes fn under a name used in logs and snapshots.
// It returns nil when fn is nil.
func NewCallback(name string, fn func()) *Callback {
	if fn == nil {
		return nil
	}
	return &Callback{name: name, fn: fn}
}

func (c *Callback) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// valid reports whether c can be invoked. A zero Callback is not valid.
func (c *Callback) valid() bool { return c != nil && c.fn != nil }

// Run invokes the callback body.
func (c *Callback) Run() { c.fn() }

func (c *Callback) String() string { return c.Name() }
