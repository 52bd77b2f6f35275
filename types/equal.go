package types

import (
	"cmp"
	"fmt"
	"time"
)

// Equal reports whether two values represent the same logical value. The
// same value can arrive as a raw scalar, a pointer envelope, a date envelope
// or wrapped inside a collection depending on where it was serialized, so
// every equality check in the engine routes through here.
//
// The containment branch is deliberately asymmetric: a sequence on the left
// is equal to a value on the right when any element is.
func Equal(a, b any) bool {
	if at, ok := DateValue(a); ok {
		if bt, ok := DateValue(b); ok {
			return at.Equal(bt)
		}
	}
	if af, ok := Number(a); ok {
		if bf, ok := Number(b); ok {
			return af == bf
		}
	}
	if am, ok := a.(map[string]any); ok {
		if bm, ok := b.(map[string]any); ok {
			aid, aok := am[FieldObjectID].(string)
			bid, bok := bm[FieldObjectID].(string)
			if aok && bok {
				return aid == bid
			}
			return mapsEqual(am, bm)
		}
	}
	if as, ok := a.([]any); ok {
		if bs, ok := b.([]any); ok && slicesEqual(as, bs) {
			return true
		}
		for _, e := range as {
			if Equal(e, b) {
				return true
			}
		}
		return false
	}
	return a == b
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

func slicesEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Number converts any numeric representation to a float64. Decoded JSON
// carries float64 while decoded YAML carries int, so numeric comparisons
// must not depend on the concrete width.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Decode returns the concrete instant for date envelopes and leaves every
// other value untouched. Called before ordering comparisons so wrapped dates
// compare as instants.
func Decode(v any) any {
	if IsDate(v) {
		if t, ok := DateValue(v); ok {
			return t
		}
	}
	return v
}

// Compare orders two decoded values. Numbers, strings and instants are
// comparable; every other combination fails closed with an error.
func Compare(a, b any) (int, error) {
	a, b = Decode(a), Decode(b)
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt), nil
		}
		return 0, fmt.Errorf("cannot compare date with %T", b)
	}
	if af, ok := Number(a); ok {
		if bf, ok := Number(b); ok {
			return cmp.Compare(af, bf), nil
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return cmp.Compare(as, bs), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}
