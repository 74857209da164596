package mutation

import (
	"fmt"
	"math"
	"time"

	"github.com/daviddao/timewarp/pkg/model"
)

// Validate reports why r cannot be scheduled, wrapping ErrInvalidRule.
func Validate(r model.MutationRule) error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRule)
	}
	if r.EntityName == "" {
		return fmt.Errorf("%w: missing entity name", ErrInvalidRule)
	}

	switch t := r.Trigger.(type) {
	case nil:
		return fmt.Errorf("%w: missing trigger", ErrInvalidRule)
	case model.IntervalTrigger:
		if t.DurationSeconds <= 0 {
			return fmt.Errorf("%w: interval must be positive", ErrInvalidRule)
		}
		if t.DurationSeconds > math.MaxInt64/int64(time.Second) {
			return fmt.Errorf("%w: interval of %d seconds is too long", ErrInvalidRule, t.DurationSeconds)
		}
	case model.AtTimeTrigger:
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("%w: invalid time of day %02d:%02d", ErrInvalidRule, t.Hour, t.Minute)
		}
	case model.FieldThresholdTrigger:
		if !model.ValidIdentifier(t.Field) {
			return fmt.Errorf("%w: threshold field %q", ErrInvalidRule, t.Field)
		}
		if !t.Operator.Valid() {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, t.Operator)
		}
	}

	if r.Operation == nil {
		return fmt.Errorf("%w: missing operation", ErrInvalidRule)
	}
	if f := r.Operation.TargetField(); !model.ValidIdentifier(f) {
		return fmt.Errorf("%w: field %q", ErrInvalidRule, f)
	}
	return nil
}
