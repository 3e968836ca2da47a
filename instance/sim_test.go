package instance

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSim(t *testing.T, startState State) (*SimInstance, Notifier) {
	t.Helper()
	tx := make(Notifier)
	s := New(uuid.New(), tx)
	if startState != StateCreating {
		s.current.RunState = startState
	}
	return s, tx
}

// Scenario 4: reboot from Running runs the full Stopping(reboot=true)
// -> Starting(reboot=false) -> Running sequence with strictly
// increasing generations and a cleared requested field at the end.
func TestReboot_FromRunning(t *testing.T) {
	s, _ := newTestSim(t, StateRunning)
	startGen := s.Current().Gen

	dropped, err := s.Ensure(RuntimeStateRequested{RunState: StateRunning, RebootWanted: true})
	require.NoError(t, err)
	assert.Nil(t, dropped)

	cur := s.Current()
	assert.Equal(t, StateStopping, cur.RunState)
	assert.True(t, cur.RebootInProgress)
	assert.Equal(t, startGen+1, cur.Gen)
	assert.True(t, s.HasOutstandingRequest())
	prevGen := cur.Gen

	// Finishing the Stopping half passes through Stopped and
	// immediately into Starting, so the generation advances more than
	// once per finish; only strict growth is guaranteed.
	s.TransitionFinish()
	cur = s.Current()
	assert.Equal(t, StateStarting, cur.RunState)
	assert.False(t, cur.RebootInProgress)
	assert.Greater(t, cur.Gen, prevGen)
	prevGen = cur.Gen

	s.TransitionFinish()
	cur = s.Current()
	assert.Equal(t, StateRunning, cur.RunState)
	assert.False(t, cur.RebootInProgress)
	assert.Greater(t, cur.Gen, prevGen)
	assert.False(t, s.HasOutstandingRequest())
}

// Scenario 5: a second reboot request issued while already
// Stopping(reboot=true) is a coalesced no-op; it returns a dropped
// target and the sequence still completes in exactly one reboot cycle.
func TestReboot_CoalescedDoubleReboot(t *testing.T) {
	s, _ := newTestSim(t, StateRunning)

	_, err := s.Ensure(RuntimeStateRequested{RunState: StateRunning, RebootWanted: true})
	require.NoError(t, err)
	genAfterFirst := s.Current().Gen

	dropped, err := s.Ensure(RuntimeStateRequested{RunState: StateRunning, RebootWanted: true})
	require.NoError(t, err)
	require.NotNil(t, dropped, "the superfluous reboot reports the pending transition")

	cur := s.Current()
	assert.Equal(t, StateStopping, cur.RunState)
	assert.True(t, cur.RebootInProgress)
	assert.GreaterOrEqual(t, cur.Gen, genAfterFirst)

	// Exactly one reboot cycle completes: Stopping -> Starting -> Running.
	s.TransitionFinish()
	assert.Equal(t, StateStarting, s.Current().RunState)
	s.TransitionFinish()
	finalState := s.Current()
	assert.Equal(t, StateRunning, finalState.RunState)
	assert.False(t, s.HasOutstandingRequest())
}

// Scenario 6: an async transition in flight can be interrupted by a
// new target; the interrupted request is returned as "dropped" and the
// instance jumps straight to the new transient state.
func TestInterruptedAsyncTransition(t *testing.T) {
	s, _ := newTestSim(t, StateStopped)

	dropped, err := s.Ensure(RuntimeStateRequested{RunState: StateRunning})
	require.NoError(t, err)
	assert.Nil(t, dropped)
	assert.Equal(t, StateStarting, s.Current().RunState)

	dropped, err = s.Ensure(RuntimeStateRequested{RunState: StateDestroyed})
	require.NoError(t, err)
	require.NotNil(t, dropped)
	assert.Equal(t, StateRunning, dropped.RunState)
	assert.Equal(t, StateStopping, s.Current().RunState)

	s.TransitionFinish()
	assert.Equal(t, StateDestroyed, s.Current().RunState)
	assert.False(t, s.HasOutstandingRequest())
}

func TestTransitionFinish_StaleWakeupIsNoop(t *testing.T) {
	s, _ := newTestSim(t, StateRunning)
	gen := s.Current().Gen

	// No requested transition outstanding: this simulates a duplicate
	// wakeup after the chain already completed.
	s.TransitionFinish()

	assert.Equal(t, gen, s.Current().Gen)
	assert.Equal(t, StateRunning, s.Current().RunState)
}

func TestEnsure_RebootRequiresRunningTarget(t *testing.T) {
	s, _ := newTestSim(t, StateRunning)
	_, err := s.Ensure(RuntimeStateRequested{RunState: StateStopped, RebootWanted: true})
	require.Error(t, err)
}

func TestEnsure_RebootInvalidFromStoppedSource(t *testing.T) {
	s, _ := newTestSim(t, StateStopped)
	_, err := s.Ensure(RuntimeStateRequested{RunState: StateRunning, RebootWanted: true})
	require.Error(t, err)
}

// A plain (non-reboot) Stopping is not a state a reboot can be issued
// from; only Stopping that is itself the first half of a reboot is.
func TestEnsure_RebootInvalidFromPlainStopping(t *testing.T) {
	s, _ := newTestSim(t, StateRunning)
	_, err := s.Ensure(RuntimeStateRequested{RunState: StateStopped})
	require.NoError(t, err)
	require.Equal(t, StateStopping, s.Current().RunState)

	_, err = s.Ensure(RuntimeStateRequested{RunState: StateRunning, RebootWanted: true})
	require.Error(t, err)
}

// A reboot issued while Starting (on the way back up from a previous
// reboot) begins a second full reboot cycle.
func TestReboot_WhileStartingBeginsSecondCycle(t *testing.T) {
	s, _ := newTestSim(t, StateRunning)

	_, err := s.Ensure(RuntimeStateRequested{RunState: StateRunning, RebootWanted: true})
	require.NoError(t, err)
	s.TransitionFinish()
	require.Equal(t, StateStarting, s.Current().RunState)

	dropped, err := s.Ensure(RuntimeStateRequested{RunState: StateRunning, RebootWanted: true})
	require.NoError(t, err)
	require.NotNil(t, dropped)
	assert.Equal(t, StateStopping, s.Current().RunState)

	s.TransitionFinish()
	assert.Equal(t, StateStarting, s.Current().RunState)
	s.TransitionFinish()
	assert.Equal(t, StateRunning, s.Current().RunState)
	assert.False(t, s.HasOutstandingRequest())
}

func TestNoopTransition_SameStateNoReboot(t *testing.T) {
	s, _ := newTestSim(t, StateRunning)
	gen := s.Current().Gen

	dropped, err := s.Ensure(RuntimeStateRequested{RunState: StateRunning})
	require.NoError(t, err)
	assert.Nil(t, dropped)
	assert.Equal(t, gen, s.Current().Gen, "exact noop must not bump generation")
}

// Clamping: Creating/Starting requests clamp to Running, Stopping
// clamps to Stopped.
func TestClampTarget(t *testing.T) {
	assert.Equal(t, StateRunning, clampTarget(StateCreating))
	assert.Equal(t, StateRunning, clampTarget(StateStarting))
	assert.Equal(t, StateStopped, clampTarget(StateStopping))
	assert.Equal(t, StateDestroyed, clampTarget(StateDestroyed))
}

func TestGenerationStrictlyMonotonic(t *testing.T) {
	s, _ := newTestSim(t, StateStopped)
	var last uint64
	seen := s.Current()
	last = seen.Gen

	steps := []RuntimeStateRequested{
		{RunState: StateRunning},
		{RunState: StateRunning, RebootWanted: true},
		{RunState: StateStopped},
	}
	for _, req := range steps {
		cur, err := s.Ensure(req)
		_ = cur
		require.NoError(t, err)
		newGen := s.Current().Gen
		assert.Greater(t, newGen, last)
		last = newGen
		for s.HasOutstandingRequest() {
			s.TransitionFinish()
			newGen = s.Current().Gen
			assert.GreaterOrEqual(t, newGen, last)
			last = newGen
		}
	}
}

// Notifier sends while the worker hasn't drained must not block, and
// must not panic.
func TestNotify_NonBlockingOnFullChannel(t *testing.T) {
	s, _ := newTestSim(t, StateStopped)
	done := make(chan struct{})
	go func() {
		_, _ = s.Ensure(RuntimeStateRequested{RunState: StateRunning})
		close(done)
	}()
	<-done
}
