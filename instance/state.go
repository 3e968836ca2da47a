// Package instance implements the instance runtime state model and the
// per-sled simulated instance state machine described by the control
// plane's lifecycle subsystem.
package instance

import (
	"time"

	"github.com/google/uuid"
)

// State is a tagged variant describing the runtime lifecycle of an
// instance as observed by a sled.
type State string

const (
	StateCreating  State = "creating"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateRepairing State = "repairing"
	StateFailed    State = "failed"
	StateDestroyed State = "destroyed"
)

// IsStopped reports whether the state represents an instance with
// nothing executing. Creating counts as stopped because no simulated
// process has started yet; Starting and Stopping are exclusively
// transient and are never stopped.
func (s State) IsStopped() bool {
	switch s {
	case StateCreating, StateStopped, StateRepairing, StateFailed, StateDestroyed:
		return true
	default:
		return false
	}
}

// RuntimeState is the authoritative observed state of an instance, as
// reported by the sled that owns it.
type RuntimeState struct {
	RunState         State
	RebootInProgress bool
	SledID           uuid.UUID
	Gen              uint64
	TimeUpdated      time.Time
}

// RuntimeStateRequested is a target pair describing the state a
// client (or the central controller, on its behalf) wants an instance
// to reach. RebootWanted is only meaningful when RunState is
// StateRunning.
type RuntimeStateRequested struct {
	RunState     State
	RebootWanted bool
}
