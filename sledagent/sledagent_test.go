package sledagent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sledctl/sledctl/instance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures every notify call so tests can assert on
// the sequence of states the sled reported to central.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []instance.RuntimeState
	fail  bool
}

func (r *recordingNotifier) notify(ctx context.Context, id uuid.UUID, st instance.RuntimeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return assert.AnError
	}
	r.calls = append(r.calls, st)
	return nil
}

func (r *recordingNotifier) snapshot() []instance.RuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]instance.RuntimeState, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestInstanceEnsure_CreatesAndIsIdempotent(t *testing.T) {
	rec := &recordingNotifier{}
	a := New(uuid.New(), ModeAPI, rec.notify)
	defer a.Shutdown()

	id := uuid.New()
	st, err := a.InstanceEnsure(context.Background(), id, Hardware{VCPUs: 2, MemoryMiB: 512}, instance.RuntimeStateRequested{RunState: instance.StateRunning})
	require.NoError(t, err)
	assert.Equal(t, instance.StateStarting, st.RunState)

	// Idempotent: calling again for the same id/target reuses the
	// existing SimInstance rather than creating a second one. Starting
	// and Running are both non-stopped, so the repeated request moves
	// the instance straight to Running with the next generation (a
	// fresh SimInstance would instead report Starting at generation 2).
	st2, err := a.InstanceEnsure(context.Background(), id, Hardware{}, instance.RuntimeStateRequested{RunState: instance.StateRunning})
	require.NoError(t, err)
	assert.Equal(t, instance.StateRunning, st2.RunState)
	assert.Equal(t, st.Gen+1, st2.Gen)
}

func TestModeAPI_FinishTransitionDrivesCompletion(t *testing.T) {
	rec := &recordingNotifier{}
	a := New(uuid.New(), ModeAPI, rec.notify)
	defer a.Shutdown()

	id := uuid.New()
	_, err := a.InstanceEnsure(context.Background(), id, Hardware{}, instance.RuntimeStateRequested{RunState: instance.StateRunning})
	require.NoError(t, err)

	a.FinishTransition(id)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	got := rec.snapshot()[0]
	assert.Equal(t, instance.StateRunning, got.RunState)
}

func TestModeAuto_BackgroundWorkerCompletesTransition(t *testing.T) {
	rec := &recordingNotifier{}
	a := New(uuid.New(), ModeAuto, rec.notify)
	defer a.Shutdown()

	id := uuid.New()
	st, err := a.InstanceEnsure(context.Background(), id, Hardware{}, instance.RuntimeStateRequested{RunState: instance.StateRunning})
	require.NoError(t, err)
	assert.Equal(t, instance.StateStarting, st.RunState)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	got := rec.snapshot()[0]
	assert.Equal(t, instance.StateRunning, got.RunState)
}

// A reboot in ModeAuto must complete without any explicit pokes: the
// worker keeps driving the chain after the Stopping half, re-poking
// while a transition is outstanding, and the Starting leg's wakeup
// (sent while the worker is mid-poke) is held in the wakeup slot.
func TestModeAuto_RebootCompletesWithoutExplicitPokes(t *testing.T) {
	oldDelay := SettleDelay
	SettleDelay = 5 * time.Millisecond
	defer func() { SettleDelay = oldDelay }()

	rec := &recordingNotifier{}
	a := New(uuid.New(), ModeAuto, rec.notify)
	defer a.Shutdown()

	id := uuid.New()
	_, err := a.InstanceEnsure(context.Background(), id, Hardware{}, instance.RuntimeStateRequested{RunState: instance.StateRunning})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		calls := rec.snapshot()
		return len(calls) >= 1 && calls[len(calls)-1].RunState == instance.StateRunning
	}, 2*time.Second, 5*time.Millisecond)

	st, err := a.InstanceEnsure(context.Background(), id, Hardware{}, instance.RuntimeStateRequested{RunState: instance.StateRunning, RebootWanted: true})
	require.NoError(t, err)
	assert.Equal(t, instance.StateStopping, st.RunState)
	assert.True(t, st.RebootInProgress)

	require.Eventually(t, func() bool {
		calls := rec.snapshot()
		last := calls[len(calls)-1]
		return last.RunState == instance.StateRunning && last.Gen > st.Gen
	}, 2*time.Second, 5*time.Millisecond)

	// The worker reported the intermediate Starting leg on its way
	// back up, generation-ordered; a stale wakeup may redeliver the
	// final state, so equal generations are allowed.
	calls := rec.snapshot()
	var sawStarting bool
	var lastGen uint64
	for _, c := range calls {
		require.GreaterOrEqual(t, c.Gen, lastGen)
		lastGen = c.Gen
		if c.RunState == instance.StateStarting && c.Gen > st.Gen {
			sawStarting = true
		}
	}
	assert.True(t, sawStarting)
}

func TestDestroyRetiresSimInstance(t *testing.T) {
	rec := &recordingNotifier{}
	a := New(uuid.New(), ModeAPI, rec.notify)
	defer a.Shutdown()

	id := uuid.New()
	_, err := a.InstanceEnsure(context.Background(), id, Hardware{}, instance.RuntimeStateRequested{RunState: instance.StateRunning})
	require.NoError(t, err)
	a.FinishTransition(id)

	_, err = a.InstanceEnsure(context.Background(), id, Hardware{}, instance.RuntimeStateRequested{RunState: instance.StateDestroyed})
	require.NoError(t, err)
	a.FinishTransition(id)

	a.mu.Lock()
	_, stillPresent := a.instances[id]
	a.mu.Unlock()
	assert.False(t, stillPresent, "a Destroyed instance with no outstanding request must be retired from the map")
}

func TestFailedNotifyIsRetried(t *testing.T) {
	rec := &recordingNotifier{fail: true}
	a := New(uuid.New(), ModeAPI, rec.notify)
	defer a.Shutdown()

	id := uuid.New()
	_, err := a.InstanceEnsure(context.Background(), id, Hardware{}, instance.RuntimeStateRequested{RunState: instance.StateRunning})
	require.NoError(t, err)
	a.FinishTransition(id)

	require.Eventually(t, func() bool {
		a.retry.mu.Lock()
		defer a.retry.mu.Unlock()
		_, pending := a.retry.pending[id]
		return pending
	}, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	rec.fail = false
	rec.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}
