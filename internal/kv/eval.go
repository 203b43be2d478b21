package kv

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Normalize converts v to the canonical attribute representation: string,
// bool, decimal.Decimal or nil.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool:
		return t, nil
	case decimal.Decimal:
		return t, nil
	case *decimal.Decimal:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case *int64:
		if t == nil {
			return nil, nil
		}
		return decimal.NewFromInt(*t), nil
	case *string:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %T", v)
	}
}

// NormalizeAttributes returns a normalised copy of attrs.
func NormalizeAttributes(attrs Attributes) (Attributes, error) {
	out := make(Attributes, len(attrs))
	for name, v := range attrs {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

// Clone returns a shallow copy of attrs. Canonical values are immutable, so a
// shallow copy is a full copy.
func Clone(attrs Attributes) Attributes {
	if attrs == nil {
		return nil
	}
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// Check evaluates conds against an item's current attributes. current is nil
// when the item does not exist.
func Check(current Attributes, conds []Condition) (bool, error) {
	for _, c := range conds {
		ok, err := checkOne(current, c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func checkOne(current Attributes, c Condition) (bool, error) {
	switch c.Kind {
	case CondExists:
		return current != nil, nil
	case CondNotExists:
		return current == nil, nil
	case CondAtLeast:
		if current == nil {
			return false, nil
		}
		want, err := Normalize(c.Value)
		if err != nil {
			return false, err
		}
		wantDec, ok := want.(decimal.Decimal)
		if !ok {
			return false, fmt.Errorf("condition on %q needs a number", c.Attribute)
		}
		have, ok := current[c.Attribute].(decimal.Decimal)
		if !ok {
			return false, nil
		}
		return have.GreaterThanOrEqual(wantDec), nil
	case CondNotEqual:
		if current == nil {
			return true, nil
		}
		have, present := current[c.Attribute]
		if !present {
			return true, nil
		}
		want, err := Normalize(c.Value)
		if err != nil {
			return false, err
		}
		return !Equal(have, want), nil
	default:
		return false, fmt.Errorf("unknown condition kind %d", c.Kind)
	}
}

// Equal compares two canonical attribute values.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case nil:
		return b == nil
	default:
		return a == b
	}
}

// Apply returns the attributes that result from applying u to current, which
// is nil for a missing item. current is not modified.
func Apply(current Attributes, u Update) (Attributes, error) {
	next := Clone(current)
	if next == nil {
		next = Attributes{}
	}
	for name, v := range u.Set {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		next[name] = n
	}
	for name, delta := range u.Add {
		base := decimal.Zero
		if existing, ok := next[name]; ok && existing != nil {
			d, ok := existing.(decimal.Decimal)
			if !ok {
				return nil, fmt.Errorf("attribute %q is not a number", name)
			}
			base = d
		}
		next[name] = base.Add(decimal.NewFromInt(delta))
	}
	return next, nil
}

// AsDecimal returns v as a decimal when it is a canonical number.
func AsDecimal(v any) (decimal.Decimal, bool) {
	d, ok := v.(decimal.Decimal)
	return d, ok
}
