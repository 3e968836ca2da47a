package instance

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier is the channel type used to wake the sled's background
// worker for a SimInstance. It carries a single pending-wakeup slot:
// any number of overlapping transitions collapse into at most one
// buffered wakeup, because the worker always re-reads live state
// rather than consuming a queued event. A send finding the slot full
// is benign for the same reason.
type Notifier = chan struct{}

// SimInstance is the simulator-side representation of an instance on a
// single sled: its current observed state, any in-flight requested
// transition, and the wakeup channel for the background worker that
// will eventually complete that transition.
type SimInstance struct {
	mu        sync.Mutex
	current   RuntimeState
	requested *RuntimeStateRequested
	tx        Notifier
}

// New creates a SimInstance starting in StateCreating at generation 1,
// owned by sledID, with tx as its background worker's wakeup channel.
func New(sledID uuid.UUID, tx Notifier) *SimInstance {
	return &SimInstance{
		current: RuntimeState{
			RunState:    StateCreating,
			SledID:      sledID,
			Gen:         1,
			TimeUpdated: time.Now(),
		},
		tx: tx,
	}
}

// Current returns a copy of the current observed runtime state.
func (s *SimInstance) Current() RuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// clampTarget normalizes a requested intermediate state. Requests for
// Creating or Starting are treated as a request to reach Running;
// requests for Stopping are treated as a request to reach Stopped.
// Every other state passes through unchanged.
func clampTarget(target State) State {
	switch target {
	case StateCreating, StateStarting:
		return StateRunning
	case StateStopping:
		return StateStopped
	default:
		return target
	}
}

// ValidateTarget rejects a request to reboot to any state other than
// Running. This check applies before an instance is even located, so
// it holds for brand-new instances too.
func ValidateTarget(req RuntimeStateRequested) error {
	if req.RebootWanted && req.RunState != StateRunning {
		return errInvalidRebootTarget()
	}
	return nil
}

// validateRebootSource checks that the instance's current state can
// meaningfully participate in a reboot: Starting, Running, or Stopping
// only when that Stopping is itself the first half of a reboot.
func validateRebootSource(current RuntimeState, req RuntimeStateRequested) error {
	if !req.RebootWanted {
		return nil
	}
	switch current.RunState {
	case StateStarting, StateRunning:
		return nil
	case StateStopping:
		if current.RebootInProgress {
			return nil
		}
	}
	return errInvalidRebootSource(current.RunState)
}

// Ensure validates req against the reboot preconditions and, if valid,
// applies it via Transition. This is the path sledagent.InstanceEnsure
// takes for an instance it already knows; a just-created instance skips
// the source-state check (there is no meaningful prior state to reboot
// from) and goes through Transition directly.
func (s *SimInstance) Ensure(req RuntimeStateRequested) (dropped *RuntimeStateRequested, err error) {
	if err := ValidateTarget(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if err := validateRebootSource(current, req); err != nil {
		return nil, err
	}
	return s.Transition(req), nil
}

// Transition applies a target request to the instance. It returns the
// previously outstanding requested transition, if any, so the caller
// can log an interrupted transition for audit purposes. Callers must
// validate reboot preconditions first (Ensure does this); Transition
// itself assumes the request is well-formed.
func (s *SimInstance) Transition(req RuntimeStateRequested) *RuntimeStateRequested {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped *RuntimeStateRequested
	if s.requested != nil {
		prev := *s.requested
		dropped = &prev
		s.requested = nil
	}

	target := clampTarget(req.RunState)
	rebWanted := target == StateRunning && req.RebootWanted

	// Noop rule: nothing to do if the target already matches current
	// and neither side wants a reboot, or if both want a reboot and we
	// are already mid-Stopping for that reboot. In the second case the
	// pending Stopped leg stays in place so the reboot under way
	// completes.
	if target == s.current.RunState && !s.current.RebootInProgress && !rebWanted {
		return dropped
	}
	if s.current.RebootInProgress && rebWanted && s.current.RunState == StateStopping {
		if dropped != nil {
			pending := *dropped
			s.requested = &pending
		}
		return dropped
	}

	// A reboot is driven through Stopped first; the reboot-in-progress
	// flag on the new state is what lets TransitionFinish continue the
	// sequence into Starting/Running once Stopped is reached.
	effectiveTarget := target
	if rebWanted {
		effectiveTarget = StateStopped
	}

	var async bool
	var next State
	switch {
	case s.current.RunState.IsStopped() && !effectiveTarget.IsStopped():
		next = StateStarting
		async = true
	case !s.current.RunState.IsStopped() && effectiveTarget.IsStopped():
		next = StateStopping
		async = true
	default:
		next = effectiveTarget
		async = false
	}

	s.current = RuntimeState{
		RunState:         next,
		RebootInProgress: rebWanted,
		SledID:           s.current.SledID,
		Gen:              s.current.Gen + 1,
		TimeUpdated:      time.Now(),
	}

	if async {
		reqCopy := RuntimeStateRequested{RunState: effectiveTarget, RebootWanted: rebWanted}
		s.requested = &reqCopy
		s.notify()
	}

	return dropped
}

// notify attempts a non-blocking wakeup of the background worker. A
// full wakeup slot is benign: the worker is already scheduled to wake
// and will observe the live state. A send on a closed channel (a
// programmer bug — we should never hold tx after closing it ourselves)
// is not guarded against here; closing tx is the caller's exclusive
// right and must happen only after the SimInstance is retired.
func (s *SimInstance) notify() {
	if s.tx == nil {
		return
	}
	select {
	case s.tx <- struct{}{}:
	default:
		// full: a wakeup is already pending, nothing to do.
	}
}

// TransitionFinish is invoked by the background worker once its
// simulated settle delay elapses. It advances current to the requested
// run state. If requested is nil, this is a stale wakeup after an
// already-completed chain and is a no-op. If the instance just reached
// Stopped as the first half of a reboot, TransitionFinish recurses into
// Transition(Running) to drive the second half.
func (s *SimInstance) TransitionFinish() {
	s.mu.Lock()

	if s.requested == nil {
		s.mu.Unlock()
		return
	}

	if s.current.RunState != StateStarting && s.current.RunState != StateStopping {
		s.mu.Unlock()
		panic(fmt.Sprintf("TransitionFinish: instance has a requested transition but is in non-transient state %s", s.current.RunState))
	}

	req := *s.requested
	s.requested = nil

	s.current = RuntimeState{
		RunState:         req.RunState,
		RebootInProgress: req.RebootWanted,
		SledID:           s.current.SledID,
		Gen:              s.current.Gen + 1,
		TimeUpdated:      time.Now(),
	}

	continueReboot := s.current.RebootInProgress && s.current.RunState == StateStopped
	s.mu.Unlock()

	if continueReboot {
		s.Transition(RuntimeStateRequested{RunState: StateRunning, RebootWanted: false})
	}
}

// HasOutstandingRequest reports whether a requested transition is
// still in flight. The sled controller uses this to decide whether a
// SimInstance that has reached Destroyed can be retired.
func (s *SimInstance) HasOutstandingRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested != nil
}
