// Package sledagent implements the per-sled registry of simulated
// instances: it owns the background simulation workers and forwards
// completed transitions to the central controller via a caller-
// supplied notify function.
package sledagent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sledctl/sledctl/instance"
)

// Mode selects how SimInstance transitions are completed.
type Mode int

const (
	// ModeAuto spawns a long-lived background worker per SimInstance
	// that sleeps SettleDelay after each wakeup, then pokes the
	// instance to finish its transition. This is the production mode.
	ModeAuto Mode = iota
	// ModeAPI disables background workers; transitions only advance
	// via explicit calls to FinishTransition. Used by tests and admin
	// tooling that want to control timing precisely.
	ModeAPI
)

// SettleDelay is the fixed simulated time an in-flight transition
// takes to resolve in ModeAuto. It is a variable so tests can scale it
// down and still drive the real worker path.
var SettleDelay = 1500 * time.Millisecond

// NotifyFunc forwards a completed (or interrupted) state update to the
// central controller. It is the sled's only affordance on the central
// controller — an opaque handle with no back-pointer into the rest of
// central's state.
type NotifyFunc func(ctx context.Context, instanceID uuid.UUID, state instance.RuntimeState) error

// Hardware is the sled-local snapshot of what an instance was
// requested to run with. The sled controller does not make scheduling
// decisions from it; it only stores the snapshot given on the first
// InstanceEnsure for an id alongside the SimInstance, and nothing
// validates or reads it back. A nil VLAN means the instance's NICs
// are untagged unless the sled itself carries a default tag.
type Hardware struct {
	VCPUs     int
	MemoryMiB int
	NICs      []string
	VLAN      *VlanID
}

type slot struct {
	sim      *instance.SimInstance
	wake     instance.Notifier
	hardware Hardware
}

// SledAgent is a single sled's registry of SimInstances. Each sled
// process owns exactly one.
type SledAgent struct {
	id     uuid.UUID
	mode   Mode
	notify NotifyFunc
	vlan   *VlanID

	mu        sync.Mutex
	instances map[uuid.UUID]*slot
	stopping  bool

	retry *retryQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a SledAgent identified by id, forwarding completed
// transitions via notify.
func New(id uuid.UUID, mode Mode, notify NotifyFunc) *SledAgent {
	ctx, cancel := context.WithCancel(context.Background())
	a := &SledAgent{
		id:        id,
		mode:      mode,
		notify:    notify,
		instances: make(map[uuid.UUID]*slot),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.retry = newRetryQueue(a.attemptNotify)
	a.retry.start(ctx)
	return a
}

// SetVlan configures the tag this sled applies to guest NICs when the
// requested hardware does not carry one of its own. Call before
// serving requests.
func (a *SledAgent) SetVlan(v *VlanID) {
	a.vlan = v
}

// Shutdown closes every live SimInstance's wakeup channel, causing its
// background worker (if any) to exit after finishing its current poke,
// and stops the retry queue.
func (a *SledAgent) Shutdown() {
	a.cancel()

	a.mu.Lock()
	a.stopping = true
	for id, sl := range a.instances {
		close(sl.wake)
		delete(a.instances, id)
	}
	a.mu.Unlock()

	a.wg.Wait()
}

// InstanceEnsure is the idempotent entry point for a desired-state
// request. It locates or creates the SimInstance for instanceID,
// validates and applies the target, and returns the resulting current
// runtime state.
func (a *SledAgent) InstanceEnsure(ctx context.Context, instanceID uuid.UUID, hw Hardware, target instance.RuntimeStateRequested) (instance.RuntimeState, error) {
	if err := instance.ValidateTarget(target); err != nil {
		return instance.RuntimeState{}, err
	}

	sl, isNew := a.getOrCreate(instanceID, hw)

	var dropped *instance.RuntimeStateRequested
	if isNew {
		// A brand-new instance has no prior state worth validating a
		// reboot against; apply the target directly.
		dropped = sl.sim.Transition(target)
	} else {
		var err error
		dropped, err = sl.sim.Ensure(target)
		if err != nil {
			return instance.RuntimeState{}, err
		}
	}
	if dropped != nil {
		slog.Info("instance_ensure interrupted a pending transition", "instanceId", instanceID, "dropped", dropped.RunState)
	}

	return sl.sim.Current(), nil
}

// getOrCreate returns the slot for instanceID, creating (and, in
// ModeAuto, spawning a worker for) one if this is the first time this
// sled has seen the id.
func (a *SledAgent) getOrCreate(instanceID uuid.UUID, hw Hardware) (*slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sl, ok := a.instances[instanceID]; ok {
		return sl, false
	}

	if hw.VLAN == nil {
		hw.VLAN = a.vlan
	}

	// One buffered slot, so a wakeup sent while the worker is mid-poke
	// is held rather than lost; further sends coalesce into it.
	wake := make(instance.Notifier, 1)
	sl := &slot{
		sim:      instance.New(a.id, wake),
		wake:     wake,
		hardware: hw,
	}
	a.instances[instanceID] = sl

	if a.mode == ModeAuto {
		a.wg.Add(1)
		go a.runWorker(instanceID, wake)
	}

	return sl, true
}

// runWorker drains wake until it is closed. Each drained wakeup
// triggers the fixed settle delay, then a poke — repeated for as long
// as the instance still has a transition outstanding, because a poke
// can itself schedule the next leg of a chain (the second half of a
// reboot). That leg's wakeup is held in the wake slot, so once the
// chain is done the worker wakes once more and makes one extra poke,
// which finds nothing outstanding and re-sends the final state.
// The worker never holds the instances map lock across the sleep or
// the notify I/O performed by InstancePoke.
func (a *SledAgent) runWorker(instanceID uuid.UUID, wake instance.Notifier) {
	defer a.wg.Done()
	for range wake {
		for {
			select {
			case <-time.After(SettleDelay):
			case <-a.ctx.Done():
				return
			}
			a.InstancePoke(instanceID)
			if !a.hasOutstanding(instanceID) {
				break
			}
		}
	}
}

// hasOutstanding reports whether instanceID is still present with a
// requested transition in flight.
func (a *SledAgent) hasOutstanding(instanceID uuid.UUID) bool {
	a.mu.Lock()
	sl, ok := a.instances[instanceID]
	a.mu.Unlock()
	return ok && sl.sim.HasOutstandingRequest()
}

// InstancePoke completes the outstanding transition for instanceID, if
// any, and forwards the result to the central controller. It is the
// explicit admin hook in ModeAPI and the background worker's step in
// ModeAuto.
func (a *SledAgent) InstancePoke(instanceID uuid.UUID) {
	a.mu.Lock()
	sl, ok := a.instances[instanceID]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.instances, instanceID)
	a.mu.Unlock()

	sl.sim.TransitionFinish()
	cur := sl.sim.Current()

	terminal := cur.RunState == instance.StateDestroyed && !sl.sim.HasOutstandingRequest()
	if !terminal {
		a.mu.Lock()
		if a.stopping {
			// Shutdown swept the map while this poke had the slot
			// checked out; closing the wake channel here (instead of
			// reinserting) lets the worker exit, since Shutdown could
			// not have seen this slot to close it.
			terminal = true
		} else {
			a.instances[instanceID] = sl
		}
		a.mu.Unlock()
	}
	if terminal && a.mode == ModeAuto {
		// The background worker is still ranging over sl.wake; closing
		// it here lets the worker's range loop exit after this call
		// returns. Besides Shutdown, which closes the channels of the
		// slots still in the map, this is the only place that closes a
		// SimInstance's wake channel.
		close(sl.wake)
	}

	if err := a.attemptNotify(context.Background(), instanceID, cur); err != nil {
		slog.Warn("notify_instance_updated failed, enqueuing for retry", "instanceId", instanceID, "err", err)
		a.retry.enqueue(instanceID, cur)
	}
}

// FinishTransition is the ModeAPI admin/test hook that drives a single
// step of simulation explicitly, equivalent to what the background
// worker does in ModeAuto.
func (a *SledAgent) FinishTransition(instanceID uuid.UUID) {
	a.InstancePoke(instanceID)
}

func (a *SledAgent) attemptNotify(ctx context.Context, instanceID uuid.UUID, state instance.RuntimeState) error {
	if a.notify == nil {
		return nil
	}
	return a.notify(ctx, instanceID, state)
}
