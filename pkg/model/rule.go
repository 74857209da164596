package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TriggerType names a MutationTrigger variant on the wire.
type TriggerType string

const (
	TriggerInterval       TriggerType = "interval"
	TriggerAtTime         TriggerType = "attime"
	TriggerFieldThreshold TriggerType = "fieldthreshold"
)

// Trigger decides when a mutation rule fires. The variants are
// IntervalTrigger, AtTimeTrigger and FieldThresholdTrigger.
type Trigger interface {
	TriggerType() TriggerType
}

// IntervalTrigger fires every DurationSeconds of virtual time.
type IntervalTrigger struct {
	DurationSeconds int64 `json:"duration_seconds"`
}

// AtTimeTrigger fires once a day at Hour:Minute UTC of virtual time.
type AtTimeTrigger struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// FieldThresholdTrigger fires when a record field crosses Threshold. It is
// data-driven and never scheduled by the sweep.
type FieldThresholdTrigger struct {
	Field     string             `json:"field"`
	Threshold any                `json:"threshold"`
	Operator  ComparisonOperator `json:"operator"`
}

func (IntervalTrigger) TriggerType() TriggerType       { return TriggerInterval }
func (AtTimeTrigger) TriggerType() TriggerType         { return TriggerAtTime }
func (FieldThresholdTrigger) TriggerType() TriggerType { return TriggerFieldThreshold }

// Interval returns the trigger period.
func (t IntervalTrigger) Interval() time.Duration {
	return time.Duration(t.DurationSeconds) * time.Second
}

func (t IntervalTrigger) MarshalJSON() ([]byte, error) {
	type wire IntervalTrigger
	return json.Marshal(struct {
		Type TriggerType `json:"type"`
		wire
	}{TriggerInterval, wire(t)})
}

func (t AtTimeTrigger) MarshalJSON() ([]byte, error) {
	type wire AtTimeTrigger
	return json.Marshal(struct {
		Type TriggerType `json:"type"`
		wire
	}{TriggerAtTime, wire(t)})
}

func (t FieldThresholdTrigger) MarshalJSON() ([]byte, error) {
	type wire FieldThresholdTrigger
	return json.Marshal(struct {
		Type TriggerType `json:"type"`
		wire
	}{TriggerFieldThreshold, wire(t)})
}

// ComparisonOperator compares a field value against a threshold.
type ComparisonOperator string

const (
	OpGt  ComparisonOperator = "gt"
	OpLt  ComparisonOperator = "lt"
	OpEq  ComparisonOperator = "eq"
	OpGte ComparisonOperator = "gte"
	OpLte ComparisonOperator = "lte"
)

// Valid reports whether o is a known operator.
func (o ComparisonOperator) Valid() bool {
	switch o {
	case OpGt, OpLt, OpEq, OpGte, OpLte:
		return true
	}
	return false
}

// OperationType names a MutationOperation variant on the wire.
type OperationType string

const (
	OperationSet          OperationType = "set"
	OperationIncrement    OperationType = "increment"
	OperationDecrement    OperationType = "decrement"
	OperationTransform    OperationType = "transform"
	OperationUpdateStatus OperationType = "updatestatus"
)

// StatusField is the column written by UpdateStatusOperation.
const StatusField = "status"

// Operation is the change a mutation rule applies to each record.
type Operation interface {
	OperationType() OperationType
	// TargetField is the column the operation writes.
	TargetField() string
}

type SetOperation struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

type IncrementOperation struct {
	Field  string  `json:"field"`
	Amount float64 `json:"amount"`
}

type DecrementOperation struct {
	Field  string  `json:"field"`
	Amount float64 `json:"amount"`
}

// TransformOperation rewrites a field from an expression such as
// "{{count}} * 2". Evaluation is not supported yet.
type TransformOperation struct {
	Field      string `json:"field"`
	Expression string `json:"expression"`
}

type UpdateStatusOperation struct {
	Status string `json:"status"`
}

func (SetOperation) OperationType() OperationType          { return OperationSet }
func (IncrementOperation) OperationType() OperationType    { return OperationIncrement }
func (DecrementOperation) OperationType() OperationType    { return OperationDecrement }
func (TransformOperation) OperationType() OperationType    { return OperationTransform }
func (UpdateStatusOperation) OperationType() OperationType { return OperationUpdateStatus }

func (o SetOperation) TargetField() string        { return o.Field }
func (o IncrementOperation) TargetField() string  { return o.Field }
func (o DecrementOperation) TargetField() string  { return o.Field }
func (o TransformOperation) TargetField() string  { return o.Field }
func (UpdateStatusOperation) TargetField() string { return StatusField }

func (o SetOperation) MarshalJSON() ([]byte, error) {
	type wire SetOperation
	return json.Marshal(struct {
		Type OperationType `json:"type"`
		wire
	}{OperationSet, wire(o)})
}

func (o IncrementOperation) MarshalJSON() ([]byte, error) {
	type wire IncrementOperation
	return json.Marshal(struct {
		Type OperationType `json:"type"`
		wire
	}{OperationIncrement, wire(o)})
}

func (o DecrementOperation) MarshalJSON() ([]byte, error) {
	type wire DecrementOperation
	return json.Marshal(struct {
		Type OperationType `json:"type"`
		wire
	}{OperationDecrement, wire(o)})
}

func (o TransformOperation) MarshalJSON() ([]byte, error) {
	type wire TransformOperation
	return json.Marshal(struct {
		Type OperationType `json:"type"`
		wire
	}{OperationTransform, wire(o)})
}

func (o UpdateStatusOperation) MarshalJSON() ([]byte, error) {
	type wire UpdateStatusOperation
	return json.Marshal(struct {
		Type OperationType `json:"type"`
		wire
	}{OperationUpdateStatus, wire(o)})
}

// MutationRule changes the records of one entity whenever its trigger fires.
type MutationRule struct {
	ID          string    `json:"id"`
	EntityName  string    `json:"entity_name"`
	Trigger     Trigger   `json:"trigger"`
	Operation   Operation `json:"operation"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description,omitempty"`
	// Condition is a JSONPath filter. Records are skipped while it is set,
	// since condition evaluation is not supported.
	Condition      string     `json:"condition,omitempty"`
	LastExecution  *time.Time `json:"last_execution,omitempty"`
	NextExecution  *time.Time `json:"next_execution,omitempty"`
	ExecutionCount int        `json:"execution_count"`
}

// NewRule returns an enabled rule that has never run.
func NewRule(id, entityName string, trigger Trigger, operation Operation) MutationRule {
	return MutationRule{
		ID:         id,
		EntityName: entityName,
		Trigger:    trigger,
		Operation:  operation,
		Enabled:    true,
	}
}

// ComputeNextExecution returns the first firing of r strictly after from,
// or nil when r is disabled or its trigger is not time-driven.
func (r MutationRule) ComputeNextExecution(from time.Time) *time.Time {
	if !r.Enabled {
		return nil
	}
	switch t := r.Trigger.(type) {
	case IntervalTrigger:
		next := from.Add(t.Interval())
		return &next
	case AtTimeTrigger:
		from = from.UTC()
		next := time.Date(from.Year(), from.Month(), from.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return &next
	case FieldThresholdTrigger:
		return nil
	}
	return nil
}

// Due reports whether r is enabled and scheduled at or before now.
func (r MutationRule) Due(now time.Time) bool {
	return r.Enabled && r.NextExecution != nil && !now.Before(*r.NextExecution)
}

// Clone returns a copy of r that shares no timestamps with it.
func (r MutationRule) Clone() MutationRule {
	c := r
	if r.LastExecution != nil {
		t := *r.LastExecution
		c.LastExecution = &t
	}
	if r.NextExecution != nil {
		t := *r.NextExecution
		c.NextExecution = &t
	}
	return c
}

func (r *MutationRule) UnmarshalJSON(b []byte) error {
	type plain MutationRule
	var aux struct {
		plain
		Trigger   json.RawMessage `json:"trigger"`
		Operation json.RawMessage `json:"operation"`
		Enabled   *bool           `json:"enabled"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = MutationRule(aux.plain)
	r.Enabled = aux.Enabled == nil || *aux.Enabled
	if len(aux.Trigger) > 0 && string(aux.Trigger) != "null" {
		t, err := DecodeTrigger(aux.Trigger)
		if err != nil {
			return err
		}
		r.Trigger = t
	}
	if len(aux.Operation) > 0 && string(aux.Operation) != "null" {
		o, err := DecodeOperation(aux.Operation)
		if err != nil {
			return err
		}
		r.Operation = o
	}
	return nil
}

type typeTag struct {
	Type string `json:"type"`
}

// DecodeTrigger decodes a {"type": ...} tagged trigger.
func DecodeTrigger(b []byte) (Trigger, error) {
	var tag typeTag
	if err := json.Unmarshal(b, &tag); err != nil {
		return nil, err
	}
	switch TriggerType(tag.Type) {
	case TriggerInterval:
		var t IntervalTrigger
		err := json.Unmarshal(b, &t)
		return t, err
	case TriggerAtTime:
		var t AtTimeTrigger
		err := json.Unmarshal(b, &t)
		return t, err
	case TriggerFieldThreshold:
		var t FieldThresholdTrigger
		err := json.Unmarshal(b, &t)
		return t, err
	}
	return nil, fmt.Errorf("unknown trigger type %q", tag.Type)
}

// DecodeOperation decodes a {"type": ...} tagged operation.
func DecodeOperation(b []byte) (Operation, error) {
	var tag typeTag
	if err := json.Unmarshal(b, &tag); err != nil {
		return nil, err
	}
	switch OperationType(tag.Type) {
	case OperationSet:
		var o SetOperation
		err := json.Unmarshal(b, &o)
		return o, err
	case OperationIncrement:
		var o IncrementOperation
		err := json.Unmarshal(b, &o)
		return o, err
	case OperationDecrement:
		var o DecrementOperation
		err := json.Unmarshal(b, &o)
		return o, err
	case OperationTransform:
		var o TransformOperation
		err := json.Unmarshal(b, &o)
		return o, err
	case OperationUpdateStatus:
		var o UpdateStatusOperation
		err := json.Unmarshal(b, &o)
		return o, err
	}
	return nil, fmt.Errorf("unknown operation type %q", tag.Type)
}
