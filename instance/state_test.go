package instance

import "testing"

func TestIsStopped(t *testing.T) {
	stopped := []State{StateCreating, StateStopped, StateRepairing, StateFailed, StateDestroyed}
	for _, s := range stopped {
		if !s.IsStopped() {
			t.Errorf("%s: expected IsStopped() == true", s)
		}
	}

	running := []State{StateStarting, StateRunning, StateStopping}
	for _, s := range running {
		if s.IsStopped() {
			t.Errorf("%s: expected IsStopped() == false", s)
		}
	}
}
