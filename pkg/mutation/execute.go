package mutation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/daviddao/timewarp/pkg/model"
	"github.com/daviddao/timewarp/pkg/store"
)

// executeRule applies r's operation to every record of its entity.
func (m *Manager) executeRule(ctx context.Context, r model.MutationRule, vs store.VirtualStore, reg store.EntityRegistry) error {
	entity, ok := reg.Entity(r.EntityName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, r.EntityName)
	}
	table := entity.TableName()
	keys := entity.PrimaryKey()
	if !model.ValidIdentifier(table) {
		return fmt.Errorf("%w: table name %q", ErrInvalidRule, table)
	}
	if len(keys) == 0 {
		return fmt.Errorf("entity %s has no primary key", r.EntityName)
	}
	for _, k := range keys {
		if !model.ValidIdentifier(k) {
			return fmt.Errorf("%w: key %q", ErrInvalidRule, k)
		}
	}

	if op, ok := r.Operation.(model.TransformOperation); ok {
		m.logger.Warningf("mutation rule %s: transform operations are not supported, %q left unchanged", r.ID, op.Field)
		return nil
	}
	field := r.Operation.TargetField()
	if !model.ValidIdentifier(field) {
		return fmt.Errorf("%w: field %q", ErrInvalidRule, field)
	}

	records, err := vs.Query(ctx, "SELECT * FROM "+table, nil)
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	if r.Condition != "" {
		m.logger.Debugf("mutation rule %s: skipping %d records, conditions are not evaluated", r.ID, len(records))
		return nil
	}

	where := make([]string, len(keys))
	for i, k := range keys {
		where[i] = k + " = ?"
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s", table, field, strings.Join(where, " AND "))

	var mutated int
	for _, rec := range records {
		value, ok := apply(r.Operation, rec)
		if !ok {
			continue
		}
		params := make([]any, 0, len(keys)+1)
		params = append(params, value)
		missing := false
		for _, k := range keys {
			v, ok := rec[k]
			if !ok || v == nil {
				missing = true
				break
			}
			params = append(params, v)
		}
		if missing {
			m.logger.Debugf("mutation rule %s: record without primary key skipped", r.ID)
			continue
		}
		if _, err := vs.Execute(ctx, stmt, params); err != nil {
			return fmt.Errorf("update %s: %w", table, err)
		}
		mutated++
	}
	m.metrics.Records.Add(float64(mutated))
	m.logger.Debugf("mutation rule %s mutated %d of %d %s records", r.ID, mutated, len(records), r.EntityName)
	return nil
}

// apply returns the new value of the operation's field for rec, or false
// when rec is left alone.
func apply(op model.Operation, rec model.Record) (any, bool) {
	switch o := op.(type) {
	case model.SetOperation:
		return o.Value, true
	case model.IncrementOperation:
		return addNumber(rec[o.Field], o.Amount)
	case model.DecrementOperation:
		return addNumber(rec[o.Field], -o.Amount)
	case model.UpdateStatusOperation:
		return o.Status, true
	}
	return nil, false
}

// addNumber adds delta to a numeric value. Integers stay integers when
// delta is whole.
func addNumber(v any, delta float64) (any, bool) {
	whole := delta == math.Trunc(delta) && math.Abs(delta) < 1<<53
	switch n := v.(type) {
	case int64:
		if whole {
			return n + int64(delta), true
		}
		return float64(n) + delta, true
	case int:
		if whole {
			return int64(n) + int64(delta), true
		}
		return float64(n) + delta, true
	case float64:
		return n + delta, true
	case float32:
		return float64(n) + delta, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return addNumber(i, delta)
		}
		if f, err := n.Float64(); err == nil {
			return f + delta, true
		}
	}
	return nil, false
}
