package model

import (
	"encoding/json"
	"time"
)

// DefaultStatus is the HTTP status of a scheduled response that sets none.
const DefaultStatus = 200

// ScheduledResponse is a deferred API reply that becomes due at TriggerTime.
type ScheduledResponse struct {
	ID          string            `json:"id"`
	TriggerTime time.Time         `json:"trigger_time"`
	Body        json.RawMessage   `json:"body,omitempty"`
	Status      int               `json:"status"`
	Headers     map[string]string `json:"headers,omitempty"`
	Name        string            `json:"name,omitempty"`
	Repeat      *RepeatConfig     `json:"repeat,omitempty"`
}

// RepeatConfig makes a scheduled response fire again every Interval.
// MaxCount bounds the total number of firings; nil repeats forever.
type RepeatConfig struct {
	Interval Duration `json:"interval"`
	MaxCount *int     `json:"max_count,omitempty"`
}

// Clone returns a deep copy of r.
func (r ScheduledResponse) Clone() ScheduledResponse {
	c := r
	if r.Body != nil {
		c.Body = append(json.RawMessage(nil), r.Body...)
	}
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	if r.Repeat != nil {
		rep := *r.Repeat
		if r.Repeat.MaxCount != nil {
			n := *r.Repeat.MaxCount
			rep.MaxCount = &n
		}
		c.Repeat = &rep
	}
	return c
}

// Successor returns the next firing of a repeating response, or false when
// r does not repeat or its repeat budget is spent.
func (r ScheduledResponse) Successor() (ScheduledResponse, bool) {
	if r.Repeat == nil {
		return ScheduledResponse{}, false
	}
	if r.Repeat.MaxCount != nil && *r.Repeat.MaxCount <= 1 {
		return ScheduledResponse{}, false
	}
	next := r.Clone()
	next.TriggerTime = r.TriggerTime.Add(r.Repeat.Interval.Std())
	if next.Repeat.MaxCount != nil {
		*next.Repeat.MaxCount--
	}
	return next, true
}
