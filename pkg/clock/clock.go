// Package clock implements the virtual clock every timewarp component reads
// "now" from.
//
// A disabled clock passes real time through. An enabled clock reports a
// virtual instant. With a scale factor other than 1 the virtual instant
// flows: now = current + (realNow - baseline) * scale, where baseline is
// the real instant at which current and scale were last fixed. Every
// mutator re-anchors the baseline inside the same critical section that
// updates the virtual instant.
//
// Real time comes from a clockwork.Clock so tests can drive dilation with
// a fake clock.
package clock

import (
	"math"
	"sync"
	"time"

	"github.com/daviddao/timewarp/pkg/logging"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/jonboulle/clockwork"
)

// Options configure a VirtualClock. Zero values select the real system
// clock and a discarding logger.
type Options struct {
	Logger logging.Logger
	Source clockwork.Clock
}

type state struct {
	current  time.Time
	hasTime  bool
	enabled  bool
	scale    float64
	baseline time.Time
}

// VirtualClock is safe for concurrent use: readers share a read lock and
// each mutator holds the write lock for its whole update.
type VirtualClock struct {
	mu      sync.RWMutex
	st      state
	real    clockwork.Clock
	logger  logging.Logger
	metrics metrics
}

// New returns a disabled clock with scale factor 1.
func New(o Options) *VirtualClock {
	if o.Source == nil {
		o.Source = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	c := &VirtualClock{
		st:      state{scale: 1},
		real:    o.Source,
		logger:  o.Logger,
		metrics: newMetrics(),
	}
	c.metrics.ScaleFactor.Set(1)
	return c
}

// NewAt returns a clock already enabled at t.
func NewAt(t time.Time, o Options) *VirtualClock {
	c := New(o)
	c.EnableAndSet(t)
	return c
}

// project returns the virtual now for st at real instant realNow.
func (st state) project(realNow time.Time) time.Time {
	if !st.enabled || !st.hasTime {
		return realNow
	}
	if math.Abs(st.scale-1) < 1e-9 {
		return st.current
	}
	return scaledAdd(st.current, realNow.Sub(st.baseline), st.scale)
}

// Dilated projections saturate at the instants RFC 3339 can encode.
var (
	minVirtual = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxVirtual = time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC)
)

// scaledAdd returns t + d*scale. Offsets beyond the int64 nanosecond range
// are added in whole seconds and the result is clamped to
// [minVirtual, maxVirtual], widened to include t itself.
func scaledAdd(t time.Time, d time.Duration, scale float64) time.Time {
	hi, lo := maxVirtual, minVirtual
	if t.After(hi) {
		hi = t
	}
	if t.Before(lo) {
		lo = t
	}

	ns := float64(d) * scale
	var out time.Time
	if math.Abs(ns) < 1<<62 {
		out = t.Add(time.Duration(ns))
	} else {
		secs := ns / 1e9
		switch {
		case secs >= float64(hi.Unix()-t.Unix()):
			return hi.In(t.Location())
		case secs <= float64(lo.Unix()-t.Unix()):
			return lo.In(t.Location())
		}
		out = time.Unix(t.Unix()+int64(secs), int64(t.Nanosecond())).In(t.Location())
	}
	switch {
	case out.After(hi):
		return hi.In(t.Location())
	case out.Before(lo):
		return lo.In(t.Location())
	}
	return out
}

// EnableAndSet switches to virtual time at t.
func (c *VirtualClock) EnableAndSet(t time.Time) {
	c.mu.Lock()
	c.st.current = t
	c.st.hasTime = true
	c.st.enabled = true
	c.st.baseline = c.real.Now()
	c.mu.Unlock()

	c.metrics.Mutations.WithLabelValues("enable").Inc()
	c.metrics.Enabled.Set(1)
	c.logger.Infof("time travel enabled at %s", t.Format(time.RFC3339Nano))
}

// Disable returns the clock to real time and forgets the virtual instant.
func (c *VirtualClock) Disable() {
	c.mu.Lock()
	c.st.enabled = false
	c.st.hasTime = false
	c.st.current = time.Time{}
	c.st.baseline = time.Time{}
	c.mu.Unlock()

	c.metrics.Mutations.WithLabelValues("disable").Inc()
	c.metrics.Enabled.Set(0)
	c.logger.Infof("time travel disabled, using real time")
}

// Reset is Disable.
func (c *VirtualClock) Reset() {
	c.Disable()
}

// IsEnabled reports whether virtual time overrides real time.
func (c *VirtualClock) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st.enabled
}

// Now returns the virtual now when enabled, real time otherwise.
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	st := c.st
	c.mu.RUnlock()
	return st.project(c.real.Now())
}

// Advance moves virtual time forward by d. It is ignored with a warning
// while the clock is disabled.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	if !c.st.enabled || !c.st.hasTime {
		c.mu.Unlock()
		c.metrics.Rejected.WithLabelValues("advance").Inc()
		c.logger.Warningf("cannot advance time: time travel is not enabled")
		return
	}
	realNow := c.real.Now()
	next := c.st.project(realNow).Add(d)
	c.st.current = next
	c.st.baseline = realNow
	c.mu.Unlock()

	c.metrics.Mutations.WithLabelValues("advance").Inc()
	c.logger.Infof("time advanced by %s to %s", d, next.Format(time.RFC3339Nano))
}

// SetScale sets the dilation factor. Non-positive factors are ignored with
// a warning.
func (c *VirtualClock) SetScale(factor float64) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		c.metrics.Rejected.WithLabelValues("scale").Inc()
		c.logger.Warningf("invalid scale factor %v, must be positive", factor)
		return
	}

	c.mu.Lock()
	realNow := c.real.Now()
	if c.st.enabled && c.st.hasTime {
		c.st.current = c.st.project(realNow)
	}
	c.st.scale = factor
	c.st.baseline = realNow
	c.mu.Unlock()

	c.metrics.Mutations.WithLabelValues("scale").Inc()
	c.metrics.ScaleFactor.Set(factor)
	c.logger.Infof("time scale set to %vx", factor)
}

// Scale returns the current dilation factor.
func (c *VirtualClock) Scale() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st.scale
}

// SetTime jumps virtual time to t, enabling the clock if needed.
func (c *VirtualClock) SetTime(t time.Time) {
	c.mu.Lock()
	enabling := !c.st.enabled
	c.st.current = t
	c.st.hasTime = true
	c.st.enabled = true
	c.st.baseline = c.real.Now()
	c.mu.Unlock()

	if enabling {
		c.metrics.Mutations.WithLabelValues("enable").Inc()
		c.metrics.Enabled.Set(1)
		c.logger.Infof("time travel enabled at %s", t.Format(time.RFC3339Nano))
		return
	}
	c.metrics.Mutations.WithLabelValues("set").Inc()
	c.logger.Infof("virtual time set to %s", t.Format(time.RFC3339Nano))
}

// Status returns a consistent snapshot of the clock.
func (c *VirtualClock) Status() model.Status {
	c.mu.RLock()
	st := c.st
	c.mu.RUnlock()

	realNow := c.real.Now()
	s := model.Status{
		Enabled:     st.enabled,
		ScaleFactor: st.scale,
		RealTime:    realNow,
	}
	if st.enabled && st.hasTime {
		now := st.project(realNow)
		s.CurrentTime = &now
	}
	return s
}
