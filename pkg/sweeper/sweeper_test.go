package sweeper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
	"github.com/daviddao/timewarp/pkg/timetravel"
	"github.com/jonboulle/clockwork"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, cfg timetravel.Config) *timetravel.Manager {
	t.Helper()
	m := timetravel.New(cfg, timetravel.Options{Source: clockwork.NewFakeClock()})
	t.Cleanup(m.Close)
	m.Enable(epoch)
	return m
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "sweeper.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSweepDeliversDueResponses(t *testing.T) {
	m := newTestManager(t, timetravel.DefaultConfig())
	sw := New(m, nil, nil, Options{})

	m.Scheduler().Schedule(model.ScheduledResponse{ID: "a", TriggerTime: epoch.Add(time.Minute)})
	m.Scheduler().Schedule(model.ScheduledResponse{ID: "b", TriggerTime: epoch.Add(time.Hour)})

	if res := sw.Sweep(context.Background()); res.Delivered != 0 {
		t.Fatalf("nothing due yet, delivered %d", res.Delivered)
	}
	m.Advance(2 * time.Minute)
	res := sw.Sweep(context.Background())
	if res.Delivered != 1 {
		t.Fatalf("Delivered: got %d, want 1", res.Delivered)
	}
	out := sw.Delivered(0)
	if len(out) != 1 || out[0].Response.ID != "a" || !out[0].DeliveredAt.Equal(epoch.Add(2*time.Minute)) {
		t.Fatalf("outbox: %+v", out)
	}
	if sw.Sweeps() != 2 {
		t.Fatalf("Sweeps: got %d, want 2", sw.Sweeps())
	}
}

func TestSweepSkipsSchedulerWhenDisabled(t *testing.T) {
	cfg := timetravel.DefaultConfig()
	cfg.EnableScheduling = false
	m := newTestManager(t, cfg)
	sw := New(m, nil, nil, Options{})

	m.Scheduler().Schedule(model.ScheduledResponse{ID: "a", TriggerTime: epoch})
	if res := sw.Sweep(context.Background()); res.Delivered != 0 {
		t.Fatalf("scheduling disabled, delivered %d", res.Delivered)
	}
	if m.Scheduler().Count() != 1 {
		t.Fatal("response should stay queued")
	}
}

func TestSweepRunsRules(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, timetravel.DefaultConfig())
	st := newTestStore(t)
	if err := st.CreateEntity(ctx, store.EntitySchema{
		Entity: "tasks",
		Fields: []store.Field{{Name: "id"}, {Name: "status"}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Insert(ctx, "tasks", model.Record{"id": "t1", "status": "open"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Mutations().AddRule(model.NewRule("stale", "tasks", model.IntervalTrigger{DurationSeconds: 60}, model.UpdateStatusOperation{Status: "stale"})); err != nil {
		t.Fatal(err)
	}

	sw := New(m, st, st, Options{})
	m.Advance(time.Minute)
	if res := sw.Sweep(ctx); res.RulesExecuted != 1 {
		t.Fatalf("RulesExecuted: got %d, want 1", res.RulesExecuted)
	}
	recs, err := st.Query(ctx, "SELECT status FROM tasks", nil)
	if err != nil || len(recs) != 1 || recs[0]["status"] != "stale" {
		t.Fatalf("tasks: %v, %v", recs, err)
	}
}

func TestOutboxIsBounded(t *testing.T) {
	m := newTestManager(t, timetravel.DefaultConfig())
	sw := New(m, nil, nil, Options{OutboxSize: 3})
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		m.Scheduler().Schedule(model.ScheduledResponse{ID: id, TriggerTime: epoch})
	}
	sw.Sweep(context.Background())

	out := sw.Delivered(0)
	if len(out) != 3 || out[0].Response.ID != "3" || out[2].Response.ID != "5" {
		t.Fatalf("outbox: %+v", out)
	}
	if last := sw.Delivered(1); len(last) != 1 || last[0].Response.ID != "5" {
		t.Fatalf("Delivered(1): %+v", last)
	}
	if drained := sw.Drain(); len(drained) != 3 {
		t.Fatalf("Drain: got %d", len(drained))
	}
	if len(sw.Delivered(0)) != 0 {
		t.Fatal("outbox should be empty after Drain")
	}
}

func TestRunSweepsOnTicker(t *testing.T) {
	m := newTestManager(t, timetravel.DefaultConfig())
	fake := clockwork.NewFakeClock()
	sw := New(m, nil, nil, Options{Interval: time.Second, Ticker: fake})
	m.Scheduler().Schedule(model.ScheduledResponse{ID: "a", TriggerTime: epoch})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := fake.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker never created: %v", err)
	}
	if !sw.Running() {
		t.Fatal("Running should be true while Run is active")
	}
	if err := sw.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run: got %v, want ErrAlreadyRunning", err)
	}

	fake.Advance(time.Second)
	deadline := time.Now().Add(5 * time.Second)
	for sw.Sweeps() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sw.Sweeps() == 0 {
		t.Fatal("no sweep after a tick")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sw.Running() {
		t.Fatal("Running should be false after Run returns")
	}
	if len(sw.Delivered(0)) != 1 {
		t.Fatalf("outbox: %+v", sw.Delivered(0))
	}
}
