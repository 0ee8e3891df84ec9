package taskman

import (
	"errors"
	"fmt"
)

var (
	ErrTableFull   = errors.New("taskman: no free slot")
	ErrNotFound    = errors.New("taskman: callback not found")
	ErrNilCallback = errors.New("taskman: nil callback")
	ErrCapacity    = errors.New("taskman: capacity out of range")

	// ErrTimersDisabled is returned by StartOnce when the timer table has zero
	// capacity. It matches ErrTableFull under errors.Is.
	ErrTimersDisabled = fmt.Errorf("%w: one-shot timers disabled", ErrTableFull)
)
