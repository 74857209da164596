package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestComputeNextExecutionInterval(t *testing.T) {
	from := mustTime(t, "2025-01-01T00:00:00Z")
	r := NewRule("r1", "User", IntervalTrigger{DurationSeconds: 3600}, SetOperation{Field: "f", Value: "v"})
	next := r.ComputeNextExecution(from)
	if next == nil {
		t.Fatal("interval trigger should produce a next execution")
	}
	if want := from.Add(time.Hour); !next.Equal(want) {
		t.Fatalf("next: got %v, want %v", next, want)
	}
}

func TestComputeNextExecutionAtTimeRollsOver(t *testing.T) {
	r := NewRule("r1", "User", AtTimeTrigger{Hour: 2, Minute: 0}, UpdateStatusOperation{Status: "expired"})

	tests := []struct {
		from string
		want string
	}{
		{"2025-03-10T03:00:00Z", "2025-03-11T02:00:00Z"},
		{"2025-03-10T01:00:00Z", "2025-03-10T02:00:00Z"},
		{"2025-03-10T02:00:00Z", "2025-03-11T02:00:00Z"},
		{"2025-12-31T23:59:00Z", "2026-01-01T02:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			next := r.ComputeNextExecution(mustTime(t, tt.from))
			if next == nil {
				t.Fatal("at-time trigger should produce a next execution")
			}
			if want := mustTime(t, tt.want); !next.Equal(want) {
				t.Fatalf("from %s: got %v, want %v", tt.from, next, want)
			}
		})
	}
}

func TestComputeNextExecutionThresholdAndDisabled(t *testing.T) {
	from := mustTime(t, "2025-01-01T00:00:00Z")
	th := NewRule("r1", "User", FieldThresholdTrigger{Field: "age", Threshold: 100, Operator: OpGt}, SetOperation{Field: "f"})
	if next := th.ComputeNextExecution(from); next != nil {
		t.Fatalf("threshold trigger: got %v, want nil", next)
	}

	off := NewRule("r2", "User", IntervalTrigger{DurationSeconds: 60}, SetOperation{Field: "f"})
	off.Enabled = false
	if next := off.ComputeNextExecution(from); next != nil {
		t.Fatalf("disabled rule: got %v, want nil", next)
	}
}

func TestRuleJSONRoundTripKeepsVariants(t *testing.T) {
	next := mustTime(t, "2025-01-01T01:00:00Z")
	r := NewRule("hourly", "Order", AtTimeTrigger{Hour: 9, Minute: 30}, IncrementOperation{Field: "count", Amount: 2})
	r.NextExecution = &next

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"type":"attime"`, `"hour":9`, `"type":"increment"`, `"amount":2`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("encoded rule %s missing %s", b, want)
		}
	}

	var got MutationRule
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if tr, ok := got.Trigger.(AtTimeTrigger); !ok || tr.Hour != 9 || tr.Minute != 30 {
		t.Fatalf("trigger: got %#v", got.Trigger)
	}
	if op, ok := got.Operation.(IncrementOperation); !ok || op.Field != "count" || op.Amount != 2 {
		t.Fatalf("operation: got %#v", got.Operation)
	}
	if got.NextExecution == nil || !got.NextExecution.Equal(next) {
		t.Fatalf("next_execution: got %v, want %v", got.NextExecution, next)
	}
}

func TestRuleJSONEnabledDefaultsTrue(t *testing.T) {
	var r MutationRule
	in := `{"id":"a","entity_name":"User","trigger":{"type":"interval","duration_seconds":5},"operation":{"type":"updatestatus","status":"done"}}`
	if err := json.Unmarshal([]byte(in), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !r.Enabled {
		t.Fatal("enabled should default to true when absent")
	}
	if op, ok := r.Operation.(UpdateStatusOperation); !ok || op.TargetField() != StatusField {
		t.Fatalf("operation: got %#v", r.Operation)
	}
}

func TestDecodeUnknownVariants(t *testing.T) {
	if _, err := DecodeTrigger([]byte(`{"type":"cron"}`)); err == nil {
		t.Fatal("expected error for unknown trigger type")
	}
	if _, err := DecodeOperation([]byte(`{"type":"explode"}`)); err == nil {
		t.Fatal("expected error for unknown operation type")
	}
}

func TestDurationJSON(t *testing.T) {
	b, err := json.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1m30s"` {
		t.Fatalf("Marshal: got %s, want \"1m30s\"", b)
	}

	var d Duration
	if err := json.Unmarshal([]byte(`5`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 5*time.Second {
		t.Fatalf("numeric seconds: got %v, want 5s", d.Std())
	}
	if err := json.Unmarshal([]byte(`"250ms"`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 250*time.Millisecond {
		t.Fatalf("string form: got %v, want 250ms", d.Std())
	}
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Fatal("expected error for invalid duration string")
	}
}

func TestSuccessorDecrementsBudget(t *testing.T) {
	two := 2
	r := ScheduledResponse{
		ID:          "a",
		TriggerTime: mustTime(t, "2025-01-01T00:00:00Z"),
		Headers:     map[string]string{"X": "1"},
		Repeat:      &RepeatConfig{Interval: Duration(5 * time.Second), MaxCount: &two},
	}

	next, ok := r.Successor()
	if !ok {
		t.Fatal("expected a successor with budget 2")
	}
	if want := r.TriggerTime.Add(5 * time.Second); !next.TriggerTime.Equal(want) {
		t.Fatalf("successor trigger: got %v, want %v", next.TriggerTime, want)
	}
	if *next.Repeat.MaxCount != 1 {
		t.Fatalf("successor budget: got %d, want 1", *next.Repeat.MaxCount)
	}
	if *r.Repeat.MaxCount != 2 {
		t.Fatal("Successor must not modify the original budget")
	}
	next.Headers["X"] = "2"
	if r.Headers["X"] != "1" {
		t.Fatal("Successor must deep-copy headers")
	}

	if _, ok := next.Successor(); ok {
		t.Fatal("budget 1 should not produce a successor")
	}
}

func TestSuccessorInfinite(t *testing.T) {
	r := ScheduledResponse{
		TriggerTime: mustTime(t, "2025-01-01T00:00:00Z"),
		Repeat:      &RepeatConfig{Interval: Duration(time.Minute)},
	}
	for i := 0; i < 3; i++ {
		var ok bool
		r, ok = r.Successor()
		if !ok {
			t.Fatalf("iteration %d: infinite repeat stopped", i)
		}
	}
	if want := mustTime(t, "2025-01-01T00:03:00Z"); !r.TriggerTime.Equal(want) {
		t.Fatalf("after 3 successors: got %v, want %v", r.TriggerTime, want)
	}

	if _, ok := (ScheduledResponse{}).Successor(); ok {
		t.Fatal("non-repeating response should not have a successor")
	}
}

func TestValidIdentifier(t *testing.T) {
	for _, s := range []string{"users", "_x", "Order_2"} {
		if !ValidIdentifier(s) {
			t.Errorf("ValidIdentifier(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "2x", "a b", "x;DROP", `a"b`} {
		if ValidIdentifier(s) {
			t.Errorf("ValidIdentifier(%q) = true, want false", s)
		}
	}
}
