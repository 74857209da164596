package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daviddao/timewarp"
	"github.com/daviddao/timewarp/cmd/tw/cmd"
	"github.com/daviddao/timewarp/pkg/api"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
	"github.com/daviddao/timewarp/pkg/sweeper"
	"github.com/daviddao/timewarp/pkg/timetravel"
	"github.com/jonboulle/clockwork"
)

func newCommand(t *testing.T, opts ...cmd.Option) (c *cmd.Command) {
	t.Helper()

	c, err := cmd.NewCommand(append([]cmd.Option{cmd.WithHomeDir(t.TempDir())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

type testEnv struct {
	url     string
	manager *timetravel.Manager
	store   *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC))
	m := timetravel.New(timetravel.DefaultConfig(), timetravel.Options{Source: fake})
	t.Cleanup(m.Close)

	st, err := store.New(filepath.Join(t.TempDir(), "cmd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(api.New(api.Options{
		Manager: m,
		Sweeper: sweeper.New(m, st, st, sweeper.Options{Ticker: fake}),
		Store:   st,
	}))
	t.Cleanup(srv.Close)
	return &testEnv{url: srv.URL, manager: m, store: st}
}

// run executes the CLI against the test server and returns its output.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	args = append(args, "--server", e.url)
	err := newCommand(t, cmd.WithArgs(args...), cmd.WithOutput(&out)).Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("tw %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestVersionCmd(t *testing.T) {
	var outputBuf bytes.Buffer
	if err := newCommand(t,
		cmd.WithArgs("version"),
		cmd.WithOutput(&outputBuf),
	).Execute(); err != nil {
		t.Fatal(err)
	}

	want := timewarp.Version + "\n"
	got := outputBuf.String()
	if got != want {
		t.Errorf("got output %q, want %q", got, want)
	}
}

func TestTimeCommands(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "time", "status")
	if !strings.Contains(out, "time travel: disabled") {
		t.Fatalf("status output: %q", out)
	}

	var st model.Status
	out = e.mustRun(t, "time", "enable", "2025-01-01T00:00:00Z", "--json")
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Enabled || !st.CurrentTime.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("enable: %+v", st)
	}

	out = e.mustRun(t, "time", "advance", "1", "week")
	if !strings.Contains(out, "advanced by 168h0m0s") || !strings.Contains(out, "virtual now: 2025-01-08T00:00:00Z") {
		t.Fatalf("advance output: %q", out)
	}

	e.manager.Scheduler().Schedule(model.ScheduledResponse{TriggerTime: time.Date(2025, 1, 8, 6, 0, 0, 0, time.UTC)})
	out = e.mustRun(t, "time", "next")
	if !strings.Contains(out, "virtual now: 2025-01-08T06:00:00Z") {
		t.Fatalf("next output: %q", out)
	}

	e.mustRun(t, "time", "set", "+6h")
	if want := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC); !e.manager.Now().Equal(want) {
		t.Fatalf("after set: got %v, want %v", e.manager.Now(), want)
	}

	out = e.mustRun(t, "time", "scale", "24")
	if !strings.Contains(out, "scale:       24x") {
		t.Fatalf("scale output: %q", out)
	}
	if _, err := e.run(t, "time", "scale", "-1"); err == nil {
		t.Fatal("negative scale should fail")
	}
	if _, err := e.run(t, "time", "advance", "soon"); err == nil {
		t.Fatal("bad duration should fail")
	}

	e.mustRun(t, "time", "disable")
	if e.manager.IsEnabled() {
		t.Fatal("disable did not reach the server")
	}
	if _, err := e.run(t, "time", "advance", "1h"); err == nil || !strings.Contains(err.Error(), "not enabled") {
		t.Fatalf("advance while disabled: %v", err)
	}
}

func TestScenarioCommands(t *testing.T) {
	e := newTestEnv(t)
	dir := t.TempDir()

	e.mustRun(t, "time", "enable", "2025-03-01T00:00:00Z")
	e.mustRun(t, "schedule", "add", "--at", "+1h", "--id", "r1")

	out := e.mustRun(t, "time", "save", "march", "--description", "billing run", "--scenarios-dir", dir)
	if !strings.Contains(out, filepath.Join(dir, "march.json")) {
		t.Fatalf("save output: %q", out)
	}

	var list []model.Scenario
	out = e.mustRun(t, "time", "list", "--scenarios-dir", dir, "--json")
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "march" || list[0].Description != "billing run" {
		t.Fatalf("list: %+v", list)
	}

	e.mustRun(t, "time", "reset")
	e.mustRun(t, "schedule", "clear")

	out = e.mustRun(t, "time", "load", "march", "--scenarios-dir", dir)
	if !strings.Contains(out, `loaded scenario "march"`) {
		t.Fatalf("load output: %q", out)
	}
	if want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC); !e.manager.Now().Equal(want) {
		t.Fatalf("after load: got %v, want %v", e.manager.Now(), want)
	}
	if _, ok := e.manager.Scheduler().Get("r1"); !ok {
		t.Fatal("scheduled response was not restored")
	}

	if _, err := e.run(t, "time", "load", "april", "--scenarios-dir", dir); err == nil {
		t.Fatal("loading a missing scenario should fail")
	}
}

func TestScheduleCommands(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "time", "enable", "2025-01-01T00:00:00Z")

	var created struct {
		ID          string    `json:"id"`
		TriggerTime time.Time `json:"trigger_time"`
	}
	out := e.mustRun(t, "schedule", "add", "--at", "+30m", "--name", "ping", "--body", `{"ok":true}`,
		"--header", "X-Test=1", "--repeat", "1h", "--max-count", "2", "--json")
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC); !created.TriggerTime.Equal(want) {
		t.Fatalf("trigger: got %v, want %v", created.TriggerTime, want)
	}

	r, ok := e.manager.Scheduler().Get(created.ID)
	if !ok {
		t.Fatal("response not queued")
	}
	if string(r.Body) != `{"ok":true}` || r.Headers["X-Test"] != "1" || r.Repeat == nil || *r.Repeat.MaxCount != 2 {
		t.Fatalf("queued: %+v", r)
	}

	out = e.mustRun(t, "schedule", "list")
	if !strings.Contains(out, "scheduled: 1") || !strings.Contains(out, "ping") {
		t.Fatalf("list output: %q", out)
	}

	if _, err := e.run(t, "schedule", "add"); err == nil {
		t.Fatal("add without --at should fail")
	}

	e.mustRun(t, "schedule", "cancel", created.ID)
	if _, err := e.run(t, "schedule", "cancel", created.ID); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestMutationCommands(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "time", "enable", "2025-01-01T00:00:00Z")

	err := e.store.CreateEntity(context.Background(), store.EntitySchema{
		Entity: "orders",
		Fields: []store.Field{{Name: "id", Type: store.FieldText}, {Name: "total", Type: store.FieldInteger}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var rule model.MutationRule
	out := e.mustRun(t, "mutation", "create", "--id", "grow", "--entity", "orders", "--every", "1h",
		"--op", "increment", "--field", "total", "--amount", "3", "--description", "hourly growth", "--json")
	if err := json.Unmarshal([]byte(out), &rule); err != nil {
		t.Fatal(err)
	}
	if rule.ID != "grow" || rule.NextExecution == nil || rule.Description != "hourly growth" {
		t.Fatalf("created: %+v", rule)
	}
	if op, ok := rule.Operation.(model.IncrementOperation); !ok || op.Amount != 3 {
		t.Fatalf("operation: %#v", rule.Operation)
	}

	e.mustRun(t, "mutation", "create", "--id", "close", "--entity", "orders", "--at", "23:30", "--op", "updatestatus", "--status", "closed")
	if _, err := e.run(t, "mutation", "create", "--entity", "orders", "--op", "set"); err == nil {
		t.Fatal("create without trigger should fail")
	}
	if _, err := e.run(t, "mutation", "create", "--entity", "orders", "--at", "25:00", "--op", "set", "--field", "total"); err == nil {
		t.Fatal("invalid hour should be rejected by the server")
	}

	out = e.mustRun(t, "mutation", "list", "--entity", "orders")
	if !strings.Contains(out, "rules: 2") {
		t.Fatalf("list output: %q", out)
	}

	e.mustRun(t, "mutation", "disable", "grow")
	if r, _ := e.manager.Mutations().Rule("grow"); r.Enabled {
		t.Fatal("rule still enabled")
	}
	e.mustRun(t, "mutation", "enable", "grow")
	if r, _ := e.manager.Mutations().Rule("grow"); !r.Enabled {
		t.Fatal("rule still disabled")
	}

	e.mustRun(t, "mutation", "delete", "grow")
	if _, err := e.run(t, "mutation", "get", "grow"); err == nil {
		t.Fatal("deleted rule should not be found")
	}
}
