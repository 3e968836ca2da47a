package instance

import "github.com/sledctl/sledctl/apierr"

// errInvalidRebootTarget is returned when a reboot is requested with a
// target run state other than Running.
func errInvalidRebootTarget() error {
	return apierr.InvalidRequest("cannot reboot to a state other than %q", StateRunning)
}

// errInvalidRebootSource is returned when a reboot is requested from a
// state that cannot participate in a reboot sequence.
func errInvalidRebootSource(current State) error {
	return apierr.InvalidRequest("cannot reboot instance in state %q", current)
}
