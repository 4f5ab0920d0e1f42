package analytics

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoActiveRecord = errors.New("no active analytics record")
	ErrInvalidUpdate  = errors.New("invalid record update")
)

type Field string

const (
	FieldPageID            Field = "page_id"
	FieldHiddenTime        Field = "hiddenTime"
	FieldVisibilityChanges Field = "visibilityChanges"
)

type UpdateMode int

const (
	// Replace overwrites the field.
	Replace UpdateMode = iota
	// Increment adds to an integer counter.
	Increment
	// Accumulate adds to a float duration.
	Accumulate
)

func (m UpdateMode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Increment:
		return "increment"
	case Accumulate:
		return "accumulate"
	default:
		return fmt.Sprintf("UpdateMode(%d)", int(m))
	}
}

// apply mutates r in place. Counters take Increment, durations take
// Accumulate, and every field takes Replace.
func apply(r *Record, field Field, value any, mode UpdateMode) error {
	switch field {
	case FieldPageID:
		if mode != Replace {
			return fmt.Errorf("%w: %s does not support %s", ErrInvalidUpdate, field, mode)
		}
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidUpdate, field, value)
		}
		r.PageID = s

	case FieldHiddenTime:
		f, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%w: %s expects a number, got %T", ErrInvalidUpdate, field, value)
		}
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s must be a finite non-negative number, got %v", ErrInvalidUpdate, field, f)
		}
		switch mode {
		case Replace:
			r.HiddenTime = f
		case Accumulate:
			r.HiddenTime += f
		default:
			return fmt.Errorf("%w: %s does not support %s", ErrInvalidUpdate, field, mode)
		}

	case FieldVisibilityChanges:
		n, ok := value.(int)
		if !ok {
			return fmt.Errorf("%w: %s expects an int, got %T", ErrInvalidUpdate, field, value)
		}
		if n < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %d", ErrInvalidUpdate, field, n)
		}
		switch mode {
		case Replace:
			r.VisibilityChanges = n
		case Increment:
			r.VisibilityChanges += n
		default:
			return fmt.Errorf("%w: %s does not support %s", ErrInvalidUpdate, field, mode)
		}

	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidUpdate, field)
	}

	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
