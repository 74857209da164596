package timetravel

import "errors"

var (
	// ErrNotEnabled is returned by operations that need virtual time.
	ErrNotEnabled = errors.New("time travel is not enabled")
	// ErrNoPendingEvents is returned when nothing is queued or scheduled.
	ErrNoPendingEvents = errors.New("no pending events")
)
