// Package scheduler holds responses that become due at a virtual instant.
//
// The queue is a b-tree ordered by trigger time whose items are buckets of
// responses sharing that instant, so "everything due by now" is a prefix
// scan. Buckets keep schedule order.
package scheduler

import (
	"sync"
	"time"

	"github.com/daviddao/timewarp/pkg/logging"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/google/btree"
	"github.com/google/uuid"
)

// Clock supplies the instant against which due-ness is decided.
type Clock interface {
	Now() time.Time
}

type Options struct {
	Logger logging.Logger
}

type bucket struct {
	at    time.Time
	items []model.ScheduledResponse
}

func bucketLess(a, b *bucket) bool { return a.at.Before(b.at) }

// Scheduler is safe for concurrent use.
type Scheduler struct {
	clock   Clock
	logger  logging.Logger
	metrics metrics

	mu    sync.RWMutex
	queue *btree.BTreeG[*bucket]
	ids   map[string]time.Time // id -> bucket key
	names map[string]string    // name -> id
}

func New(clock Clock, o Options) *Scheduler {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return &Scheduler{
		clock:   clock,
		logger:  o.Logger,
		metrics: newMetrics(),
		queue:   btree.NewG(16, bucketLess),
		ids:     make(map[string]time.Time),
		names:   make(map[string]string),
	}
}

// Schedule queues r and returns its id, generating one when r.ID is empty.
// Scheduling an id that is already queued replaces the earlier entry.
func (s *Scheduler) Schedule(r model.ScheduledResponse) string {
	r = r.Clone()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == 0 {
		r.Status = model.DefaultStatus
	}
	if r.Repeat != nil && r.Repeat.Interval <= 0 {
		s.logger.Warningf("scheduled response %s: ignoring repeat with non-positive interval %s", r.ID, r.Repeat.Interval)
		r.Repeat = nil
	}

	s.mu.Lock()
	s.remove(r.ID)
	s.insert(r)
	s.mu.Unlock()

	s.metrics.Scheduled.Inc()
	s.logger.Debugf("scheduled response %s at %s", r.ID, r.TriggerTime.Format(time.RFC3339Nano))
	return r.ID
}

// DueResponses removes and returns every response due at the clock's now,
// ordered by trigger time. Repeating responses are re-queued one interval
// later; a successor is never returned by the call that created it.
func (s *Scheduler) DueResponses() []model.ScheduledResponse {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*bucket
	s.queue.Ascend(func(b *bucket) bool {
		if b.at.After(now) {
			return false
		}
		due = append(due, b)
		return true
	})

	var (
		out        []model.ScheduledResponse
		successors []model.ScheduledResponse
	)
	for _, b := range due {
		s.queue.Delete(b)
		for _, r := range b.items {
			s.unindex(r)
			out = append(out, r)
			if next, ok := r.Successor(); ok {
				successors = append(successors, next)
			}
		}
	}
	for _, r := range successors {
		s.insert(r)
	}
	s.mu.Unlock()

	if len(out) > 0 {
		s.metrics.Delivered.Add(float64(len(out)))
		s.logger.Debugf("%d scheduled responses due at %s, %d re-queued", len(out), now.Format(time.RFC3339Nano), len(successors))
	}
	return out
}

// Cancel removes the response with the given id.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	ok := s.remove(id)
	s.mu.Unlock()
	if ok {
		s.metrics.Cancelled.Inc()
	}
	return ok
}

// CancelByName removes the response registered under name.
func (s *Scheduler) CancelByName(name string) bool {
	s.mu.Lock()
	id, ok := s.names[name]
	if ok {
		ok = s.remove(id)
	}
	s.mu.Unlock()
	if ok {
		s.metrics.Cancelled.Inc()
	}
	return ok
}

// Lookup returns the queued response registered under name.
func (s *Scheduler) Lookup(name string) (model.ScheduledResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.names[name]
	if !ok {
		return model.ScheduledResponse{}, false
	}
	return s.get(id)
}

// Get returns the queued response with the given id.
func (s *Scheduler) Get(id string) (model.ScheduledResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

// ClearAll empties the queue and the name index.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	s.queue.Clear(false)
	s.ids = make(map[string]time.Time)
	s.names = make(map[string]string)
	s.mu.Unlock()
	s.metrics.Pending.Set(0)
}

// List returns copies of all queued responses in trigger order.
func (s *Scheduler) List() []model.ScheduledResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScheduledResponse, 0, len(s.ids))
	s.queue.Ascend(func(b *bucket) bool {
		for _, r := range b.items {
			out = append(out, r.Clone())
		}
		return true
	})
	return out
}

func (s *Scheduler) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Next returns the earliest trigger time, if anything is queued.
func (s *Scheduler) Next() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.queue.Min()
	if !ok {
		return time.Time{}, false
	}
	return b.at, true
}

// insert must be called with mu held.
func (s *Scheduler) insert(r model.ScheduledResponse) {
	key := &bucket{at: r.TriggerTime}
	if b, ok := s.queue.Get(key); ok {
		b.items = append(b.items, r)
	} else {
		key.items = []model.ScheduledResponse{r}
		s.queue.ReplaceOrInsert(key)
	}
	s.ids[r.ID] = r.TriggerTime
	if r.Name != "" {
		s.names[r.Name] = r.ID
	}
	s.metrics.Pending.Set(float64(len(s.ids)))
}

// remove must be called with mu held.
func (s *Scheduler) remove(id string) bool {
	at, ok := s.ids[id]
	if !ok {
		return false
	}
	b, ok := s.queue.Get(&bucket{at: at})
	if !ok {
		delete(s.ids, id)
		return false
	}
	for i, r := range b.items {
		if r.ID != id {
			continue
		}
		b.items = append(b.items[:i], b.items[i+1:]...)
		if len(b.items) == 0 {
			s.queue.Delete(b)
		}
		s.unindex(r)
		return true
	}
	return false
}

func (s *Scheduler) unindex(r model.ScheduledResponse) {
	delete(s.ids, r.ID)
	if r.Name != "" && s.names[r.Name] == r.ID {
		delete(s.names, r.Name)
	}
	s.metrics.Pending.Set(float64(len(s.ids)))
}

func (s *Scheduler) get(id string) (model.ScheduledResponse, bool) {
	at, ok := s.ids[id]
	if !ok {
		return model.ScheduledResponse{}, false
	}
	b, ok := s.queue.Get(&bucket{at: at})
	if !ok {
		return model.ScheduledResponse{}, false
	}
	for _, r := range b.items {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return model.ScheduledResponse{}, false
}
