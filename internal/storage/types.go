package storage

import (
	"errors"
	"time"

	"taskman/pkg/taskman"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retain caps stored snapshots (oldest pruned). 0 means DefaultRetain.
	Retain int
}

const DefaultRetain = 10000

// Record is one persisted scheduler snapshot.
type Record struct {
	At       time.Time        `json:"at"`
	Reason   string           `json:"reason"`
	Snapshot taskman.Snapshot `json:"snapshot"`
}
