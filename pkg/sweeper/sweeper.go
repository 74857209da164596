// Package sweeper drives the time-travel engine: each sweep collects the
// responses that are due, fires due mutation rules, and keeps the delivered
// responses in a bounded outbox that clients can poll.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/daviddao/timewarp/pkg/logging"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
	"github.com/daviddao/timewarp/pkg/timetravel"
	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
)

var ErrAlreadyRunning = errors.New("sweeper already running")

const (
	DefaultInterval   = time.Second
	DefaultOutboxSize = 1000
)

type Options struct {
	Logger logging.Logger
	// Interval between sweeps in real time.
	Interval   time.Duration
	OutboxSize int
	// Ticker is the real-time source of Run.
	Ticker clockwork.Clock
}

// Delivery is a response that became due, stamped with the virtual instant
// of the sweep that found it.
type Delivery struct {
	Response    model.ScheduledResponse `json:"response"`
	DeliveredAt time.Time               `json:"delivered_at"`
}

// Result summarizes one sweep.
type Result struct {
	At            time.Time `json:"at"`
	Delivered     int       `json:"delivered"`
	RulesExecuted int       `json:"rules_executed"`
}

type Sweeper struct {
	tt       *timetravel.Manager
	store    store.VirtualStore
	registry store.EntityRegistry
	logger   logging.Logger
	interval time.Duration
	ticker   clockwork.Clock
	metrics  metrics

	running atomic.Bool
	sweeps  atomic.Uint64

	mu     sync.Mutex
	outbox []Delivery
	size   int
}

func New(tt *timetravel.Manager, vs store.VirtualStore, reg store.EntityRegistry, o Options) *Sweeper {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	if o.Ticker == nil {
		o.Ticker = clockwork.NewRealClock()
	}
	return &Sweeper{
		tt:       tt,
		store:    vs,
		registry: reg,
		logger:   o.Logger,
		interval: o.Interval,
		ticker:   o.Ticker,
		metrics:  newMetrics(),
		size:     o.OutboxSize,
	}
}

// Sweep runs one evaluation pass. The scheduler is skipped when scheduling
// is disabled in the time-travel config.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	start := time.Now()
	res := Result{At: s.tt.Now()}

	if s.tt.SchedulingEnabled() {
		due := s.tt.Scheduler().DueResponses()
		res.Delivered = len(due)
		if len(due) > 0 {
			s.deliver(due, res.At)
		}
	}
	if s.store != nil && s.registry != nil {
		res.RulesExecuted = s.tt.Mutations().CheckAndExecute(ctx, s.store, s.registry)
	}

	s.sweeps.Inc()
	s.metrics.Sweeps.Inc()
	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if res.Delivered > 0 || res.RulesExecuted > 0 {
		s.logger.Debugf("sweep at %s: %d responses delivered, %d rules executed",
			res.At.Format(time.RFC3339), res.Delivered, res.RulesExecuted)
	}
	return res
}

func (s *Sweeper) deliver(due []model.ScheduledResponse, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range due {
		s.outbox = append(s.outbox, Delivery{Response: r, DeliveredAt: at})
	}
	if over := len(s.outbox) - s.size; over > 0 {
		s.metrics.Dropped.Add(float64(over))
		s.outbox = append([]Delivery(nil), s.outbox[over:]...)
	}
	s.metrics.Outbox.Set(float64(len(s.outbox)))
}

// Delivered returns up to limit of the most recent deliveries, oldest first.
// A non-positive limit returns all of them.
func (s *Sweeper) Delivered(limit int) []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := 0
	if limit > 0 && len(s.outbox) > limit {
		from = len(s.outbox) - limit
	}
	return append([]Delivery(nil), s.outbox[from:]...)
}

// Drain removes and returns every delivery in the outbox.
func (s *Sweeper) Drain() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	s.metrics.Outbox.Set(0)
	return out
}

func (s *Sweeper) Running() bool { return s.running.Load() }

// Sweeps is the number of completed sweeps.
func (s *Sweeper) Sweeps() uint64 { return s.sweeps.Load() }

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	t := s.ticker.NewTicker(s.interval)
	defer t.Stop()

	s.logger.Infof("sweeper started, interval %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("sweeper stopped")
			return nil
		case <-t.Chan():
			s.Sweep(ctx)
		}
	}
}
