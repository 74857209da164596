// Package fixtures loads a YAML file describing entities, seed records,
// mutation rules and scheduled responses, and applies it at server start.
//
//	entities:
//	  - name: orders
//	    primary_key: [id]
//	    fields:
//	      - {name: id}
//	      - {name: count, type: integer}
//	    records:
//	      - {id: o1, count: 5}
//	rules:
//	  - id: bump
//	    entity_name: orders
//	    trigger: {type: interval, duration_seconds: 3600}
//	    operation: {type: increment, field: count, amount: 1}
//	responses:
//	  - name: welcome
//	    trigger_time: "+1h"
//	    body: {hello: world}
package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/daviddao/timewarp/pkg/clock"
	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
	"gopkg.in/yaml.v3"
)

type Entity struct {
	store.EntitySchema `yaml:",inline"`
	Records            []model.Record `yaml:"records"`
}

// Response is a scheduled response whose trigger time may be relative
// ("+30m") to the virtual now at load time.
type Response struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	TriggerTime string              `json:"trigger_time"`
	Body        any                 `json:"body"`
	Status      int                 `json:"status"`
	Headers     map[string]string   `json:"headers"`
	Repeat      *model.RepeatConfig `json:"repeat"`
}

type File struct {
	Entities  []Entity
	Rules     []model.MutationRule
	Responses []Response
}

// raw mirrors File as decoded by yaml. Rules and responses go through JSON
// so their tagged unions decode the same way as over the API.
type raw struct {
	Entities  []Entity `yaml:"entities"`
	Rules     []any    `yaml:"rules"`
	Responses []any    `yaml:"responses"`
}

func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*File, error) {
	var rf raw
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	out := &File{Entities: rf.Entities}
	for i, v := range rf.Rules {
		var rule model.MutationRule
		if err := viaJSON(v, &rule); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out.Rules = append(out.Rules, rule)
	}
	for i, v := range rf.Responses {
		var resp Response
		if err := viaJSON(v, &resp); err != nil {
			return nil, fmt.Errorf("response %d: %w", i, err)
		}
		out.Responses = append(out.Responses, resp)
	}
	return out, nil
}

func viaJSON(v, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// Store is the subset of the data store fixtures write to.
type Store interface {
	CreateEntity(ctx context.Context, es store.EntitySchema) error
	Insert(ctx context.Context, entity string, rec model.Record) (model.ExecResult, error)
}

type RuleAdder interface {
	AddRule(r model.MutationRule) error
}

type Scheduler interface {
	Schedule(r model.ScheduledResponse) string
}

// Apply creates entities, inserts records, adds rules and schedules
// responses. Relative trigger times are resolved against now. Entities that
// already exist keep their records and are not seeded again.
func (f *File) Apply(ctx context.Context, st Store, rules RuleAdder, sched Scheduler, now time.Time) error {
	for _, e := range f.Entities {
		if err := st.CreateEntity(ctx, e.EntitySchema); err != nil {
			if errors.Is(err, store.ErrEntityExists) {
				continue
			}
			return fmt.Errorf("entity %s: %w", e.Entity, err)
		}
		for i, rec := range e.Records {
			if _, err := st.Insert(ctx, e.Entity, rec); err != nil {
				return fmt.Errorf("entity %s record %d: %w", e.Entity, i, err)
			}
		}
	}
	for _, r := range f.Rules {
		if err := rules.AddRule(r); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	for i, r := range f.Responses {
		sr, err := r.Resolve(now)
		if err != nil {
			return fmt.Errorf("response %d: %w", i, err)
		}
		sched.Schedule(sr)
	}
	return nil
}

// Resolve turns r into a scheduled response relative to now.
func (r Response) Resolve(now time.Time) (model.ScheduledResponse, error) {
	at, err := clock.ParseTime(r.TriggerTime, now)
	if err != nil {
		return model.ScheduledResponse{}, err
	}
	var body json.RawMessage
	if r.Body != nil {
		if body, err = json.Marshal(r.Body); err != nil {
			return model.ScheduledResponse{}, err
		}
	}
	return model.ScheduledResponse{
		ID:          r.ID,
		TriggerTime: at,
		Body:        body,
		Status:      r.Status,
		Headers:     r.Headers,
		Name:        r.Name,
		Repeat:      r.Repeat,
	}, nil
}
