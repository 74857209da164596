// Package mutation keeps the set of rules that change virtual data as
// virtual time passes, and fires the ones that are due.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/daviddao/timewarp/pkg/logging"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
	"github.com/hashicorp/go-multierror"
)

var (
	ErrRuleNotFound   = errors.New("rule not found")
	ErrInvalidRule    = errors.New("invalid rule")
	ErrEntityNotFound = errors.New("entity not found")
)

// Clock supplies the instant rules are scheduled against.
type Clock interface {
	Now() time.Time
}

type Options struct {
	Logger logging.Logger
}

// Manager is safe for concurrent use. Its lock is never held while a rule
// talks to the store.
type Manager struct {
	clock   Clock
	logger  logging.Logger
	metrics metrics

	mu    sync.RWMutex
	rules map[string]model.MutationRule
}

func New(clock Clock, o Options) *Manager {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return &Manager{
		clock:   clock,
		logger:  o.Logger,
		metrics: newMetrics(),
		rules:   make(map[string]model.MutationRule),
	}
}

// AddRule validates r, schedules its first execution from now and stores it,
// replacing any rule with the same id.
func (m *Manager) AddRule(r model.MutationRule) error {
	if err := Validate(r); err != nil {
		return err
	}
	r = r.Clone()
	r.NextExecution = r.ComputeNextExecution(m.clock.Now())

	m.mu.Lock()
	m.rules[r.ID] = r
	n := len(m.rules)
	m.mu.Unlock()

	m.metrics.Rules.Set(float64(n))
	m.logger.Infof("added mutation rule %s for entity %s", r.ID, r.EntityName)
	return nil
}

// RemoveRule deletes the rule and reports whether it existed.
func (m *Manager) RemoveRule(id string) bool {
	m.mu.Lock()
	_, ok := m.rules[id]
	delete(m.rules, id)
	n := len(m.rules)
	m.mu.Unlock()

	if ok {
		m.metrics.Rules.Set(float64(n))
		m.logger.Infof("removed mutation rule %s", id)
	}
	return ok
}

func (m *Manager) Rule(id string) (model.MutationRule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return model.MutationRule{}, false
	}
	return r.Clone(), true
}

// Rules returns every rule ordered by id.
func (m *Manager) Rules() []model.MutationRule {
	return m.filter(func(model.MutationRule) bool { return true })
}

func (m *Manager) RulesForEntity(name string) []model.MutationRule {
	return m.filter(func(r model.MutationRule) bool { return r.EntityName == name })
}

func (m *Manager) filter(keep func(model.MutationRule) bool) []model.MutationRule {
	m.mu.RLock()
	out := make([]model.MutationRule, 0, len(m.rules))
	for _, r := range m.rules {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextExecution returns the earliest scheduled execution over all enabled
// rules.
func (m *Manager) NextExecution() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		next  time.Time
		found bool
	)
	for _, r := range m.rules {
		if !r.Enabled || r.NextExecution == nil {
			continue
		}
		if !found || r.NextExecution.Before(next) {
			next, found = *r.NextExecution, true
		}
	}
	return next, found
}

// SetRuleEnabled toggles a rule. Enabling reschedules it from now; disabling
// clears its next execution.
func (m *Manager) SetRuleEnabled(id string, enabled bool) error {
	now := m.clock.Now()

	m.mu.Lock()
	r, ok := m.rules[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	r.Enabled = enabled
	r.NextExecution = r.ComputeNextExecution(now)
	m.rules[id] = r
	m.mu.Unlock()

	m.logger.Infof("mutation rule %s enabled=%v", id, enabled)
	return nil
}

// Clear removes every rule.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.rules = make(map[string]model.MutationRule)
	m.mu.Unlock()
	m.metrics.Rules.Set(0)
}

// CheckAndExecute fires every enabled rule that is due at the clock's now
// and returns how many succeeded. A failing rule is logged and stays due.
func (m *Manager) CheckAndExecute(ctx context.Context, vs store.VirtualStore, reg store.EntityRegistry) int {
	now := m.clock.Now()

	m.mu.RLock()
	var due []model.MutationRule
	for _, r := range m.rules {
		if r.Due(now) {
			due = append(due, r.Clone())
		}
	}
	m.mu.RUnlock()
	if len(due) == 0 {
		return 0
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextExecution.Before(*due[j].NextExecution)
	})

	var (
		succeeded int
		errs      *multierror.Error
	)
	for _, r := range due {
		if err := m.executeRule(ctx, r, vs, reg); err != nil {
			m.metrics.Failures.Inc()
			m.logger.WithField("rule", r.ID).Warningf("mutation rule execution failed: %v", err)
			errs = multierror.Append(errs, fmt.Errorf("rule %s: %w", r.ID, err))
			continue
		}
		succeeded++
		m.metrics.Executions.Inc()
		m.markExecuted(r.ID, now)
	}

	if err := errs.ErrorOrNil(); err != nil {
		m.logger.Debugf("mutation sweep at %s: %d of %d rules failed: %v", now.Format(time.RFC3339), len(errs.Errors), len(due), err)
	}
	m.logger.Debugf("mutation sweep at %s: %d rules executed", now.Format(time.RFC3339), succeeded)
	return succeeded
}

func (m *Manager) markExecuted(id string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return
	}
	at := now
	r.LastExecution = &at
	r.ExecutionCount++
	r.NextExecution = r.ComputeNextExecution(now)
	m.rules[id] = r
}
