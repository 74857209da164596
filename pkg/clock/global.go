package clock

import (
	"time"

	"go.uber.org/atomic"
)

var global atomic.Pointer[VirtualClock]

// Register makes c the process-wide clock returned by Default and read by
// Now.
func Register(c *VirtualClock) {
	global.Store(c)
}

// Unregister clears the process-wide clock.
func Unregister() {
	global.Store(nil)
}

// Default returns the registered clock, or nil.
func Default() *VirtualClock {
	return global.Load()
}

// Now returns the registered clock's now, or real time when none is
// registered.
func Now() time.Time {
	if c := global.Load(); c != nil {
		return c.Now()
	}
	return time.Now()
}

// IsTimeTravelEnabled reports whether a registered clock is in virtual mode.
func IsTimeTravelEnabled() bool {
	c := global.Load()
	return c != nil && c.IsEnabled()
}
