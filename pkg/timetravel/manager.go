// Package timetravel wires the virtual clock, the response scheduler and the
// mutation rule manager into one unit that the API and the sweeper share.
package timetravel

import (
	"fmt"
	"time"

	"github.com/daviddao/timewarp/pkg/clock"
	"github.com/daviddao/timewarp/pkg/logging"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/mutation"
	"github.com/daviddao/timewarp/pkg/scheduler"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// Config is the time-travel section of the server configuration.
type Config struct {
	Enabled          bool       `json:"enabled" yaml:"enabled"`
	InitialTime      *time.Time `json:"initial_time,omitempty" yaml:"initial_time,omitempty"`
	ScaleFactor      float64    `json:"scale_factor" yaml:"scale_factor"`
	EnableScheduling bool       `json:"enable_scheduling" yaml:"enable_scheduling"`
}

func DefaultConfig() Config {
	return Config{
		ScaleFactor:      1.0,
		EnableScheduling: true,
	}
}

type Options struct {
	Logger logging.Logger
	// Source is the real-time source of the virtual clock.
	Source clockwork.Clock
}

type Manager struct {
	cfg       Config
	clock     *clock.VirtualClock
	scheduler *scheduler.Scheduler
	mutations *mutation.Manager
	logger    logging.Logger
}

// New builds a manager from cfg and registers its clock as the process-wide
// clock. An enabled config without an initial time starts at real now.
func New(cfg Config, o Options) *Manager {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Source == nil {
		o.Source = clockwork.NewRealClock()
	}
	c := clock.New(clock.Options{Logger: o.Logger, Source: o.Source})
	m := &Manager{
		cfg:       cfg,
		clock:     c,
		scheduler: scheduler.New(c, scheduler.Options{Logger: o.Logger}),
		mutations: mutation.New(c, mutation.Options{Logger: o.Logger}),
		logger:    o.Logger,
	}

	if cfg.Enabled {
		start := o.Source.Now()
		if cfg.InitialTime != nil {
			start = *cfg.InitialTime
		}
		c.EnableAndSet(start)
	}
	if cfg.ScaleFactor > 0 && cfg.ScaleFactor != 1 {
		c.SetScale(cfg.ScaleFactor)
	}
	clock.Register(c)
	return m
}

// Close unregisters the clock if it is still the process-wide one.
func (m *Manager) Close() {
	if clock.Default() == m.clock {
		clock.Unregister()
	}
}

func (m *Manager) Config() Config { return m.cfg }
func (m *Manager) Clock() *clock.VirtualClock { return m.clock }
func (m *Manager) Scheduler() *scheduler.Scheduler { return m.scheduler }
func (m *Manager) Mutations() *mutation.Manager { return m.mutations }
func (m *Manager) Now() time.Time { return m.clock.Now() }
func (m *Manager) Status() model.Status { return m.clock.Status() }
func (m *Manager) SchedulingEnabled() bool { return m.cfg.EnableScheduling }
func (m *Manager) Advance(d time.Duration) { m.clock.Advance(d) }
func (m *Manager) SetTime(t time.Time) { m.clock.SetTime(t) }
func (m *Manager) SetScale(factor float64) { m.clock.SetScale(factor) }
func (m *Manager) Enable(t time.Time) { m.clock.EnableAndSet(t) }
func (m *Manager) Disable() { m.clock.Disable() }
func (m *Manager) Reset() { m.clock.Reset() }
func (m *Manager) IsEnabled() bool { return m.clock.IsEnabled() }

// AdvanceBy parses a duration such as "2h" or "+1 week" and advances the
// clock by it.
func (m *Manager) AdvanceBy(s string) (time.Duration, error) {
	d, err := clock.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if !m.clock.IsEnabled() {
		return 0, ErrNotEnabled
	}
	m.clock.Advance(d)
	return d, nil
}

// NextEvent returns the earliest pending instant: the next queued response
// or the next rule execution, whichever comes first.
func (m *Manager) NextEvent() (time.Time, bool) {
	next, ok := m.scheduler.Next()
	if t, found := m.mutations.NextExecution(); found && (!ok || t.Before(next)) {
		next, ok = t, true
	}
	return next, ok
}

// AdvanceToNextEvent moves the clock forward to the next pending event and
// returns it. Events already due leave the clock where it is.
func (m *Manager) AdvanceToNextEvent() (time.Time, error) {
	if !m.clock.IsEnabled() {
		return time.Time{}, ErrNotEnabled
	}
	next, ok := m.NextEvent()
	if !ok {
		return time.Time{}, ErrNoPendingEvents
	}
	if d := next.Sub(m.clock.Now()); d > 0 {
		m.clock.Advance(d)
	}
	return next, nil
}

// SaveScenario captures the clock, the queued responses and the rules.
func (m *Manager) SaveScenario(name, description string) model.Scenario {
	st := m.clock.Status()
	return model.Scenario{
		Name:               name,
		Enabled:            st.Enabled,
		CurrentTime:        st.CurrentTime,
		ScaleFactor:        st.ScaleFactor,
		ScheduledResponses: m.scheduler.List(),
		MutationRules:      m.mutations.Rules(),
		CreatedAt:          st.RealTime.UTC(),
		Description:        description,
	}
}

// LoadScenario replaces the current state with s. Responses and rules that
// fail to load are skipped and reported together.
func (m *Manager) LoadScenario(s model.Scenario) error {
	if s.Enabled && s.CurrentTime != nil {
		m.clock.EnableAndSet(*s.CurrentTime)
	} else {
		m.clock.Disable()
	}
	if s.ScaleFactor > 0 {
		m.clock.SetScale(s.ScaleFactor)
	}

	m.scheduler.ClearAll()
	for _, r := range s.ScheduledResponses {
		m.scheduler.Schedule(r)
	}

	var errs *multierror.Error
	m.mutations.Clear()
	for _, r := range s.MutationRules {
		if err := m.mutations.AddRule(r); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
		}
	}

	m.logger.Infof("loaded scenario %q: %d responses, %d rules", s.Name, len(s.ScheduledResponses), len(s.MutationRules))
	return errs.ErrorOrNil()
}

// Metrics returns the collectors of every owned component.
func (m *Manager) Metrics() []prometheus.Collector {
	var cs []prometheus.Collector
	cs = append(cs, m.clock.Metrics()...)
	cs = append(cs, m.scheduler.Metrics()...)
	cs = append(cs, m.mutations.Metrics()...)
	return cs
}
