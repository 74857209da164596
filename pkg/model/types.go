// Package model defines the core domain types for timewarp.
//
// Timewarp lets a mock API platform perceive a controllable "now":
//
//   - A virtual clock either passes real time through or reports a virtual
//     instant, optionally dilated by a scale factor against a real-time
//     baseline.
//
//   - Scheduled responses are deferred API replies that become due once the
//     virtual clock reaches their trigger time, optionally repeating.
//
//   - Mutation rules change records in a virtual data store on an interval
//     or at a daily wall-clock time, measured on the virtual clock.
package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Status is a read-only snapshot of the virtual clock.
type Status struct {
	Enabled bool `json:"enabled"`
	// CurrentTime is the virtual now; nil while the clock passes real time.
	CurrentTime *time.Time `json:"current_time,omitempty"`
	ScaleFactor float64    `json:"scale_factor"`
	RealTime    time.Time  `json:"real_time"`
}

// Scenario is a named capture of the time-travel state that can be saved to
// a file and replayed later.
type Scenario struct {
	Name               string              `json:"name"`
	Enabled            bool                `json:"enabled"`
	CurrentTime        *time.Time          `json:"current_time,omitempty"`
	ScaleFactor        float64             `json:"scale_factor"`
	ScheduledResponses []ScheduledResponse `json:"scheduled_responses,omitempty"`
	MutationRules      []MutationRule      `json:"mutation_rules,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	Description        string              `json:"description,omitempty"`
}

// Record is one row of a virtual data store entity, keyed by column name.
// Values are JSON-like: nil, bool, int64, float64, string.
type Record map[string]any

// ExecResult reports the effect of a store statement.
type ExecResult struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

// Duration is a time.Duration that encodes to JSON as a Go duration string
// ("1h30m") and decodes from either that form or a number of seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(x * float64(time.Second))
		return nil
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
		return nil
	}
	return fmt.Errorf("invalid duration %s", string(b))
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used unquoted as a table or
// column name in store statements.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}
