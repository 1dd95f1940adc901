package model

import (
	"strconv"
	"time"
)

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Record is one upstream JSON object. Values are whatever the decoder produced:
// string, bool, json.Number, nil, []any or map[string]any.
type Record map[string]any

// number is satisfied by json.Number and jsoniter.Number.
type number interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

// Value returns the raw value for key and whether the key was present.
// A present key may still hold nil (JSON null).
func (r Record) Value(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[key]
	return v, ok
}

// Has reports whether key was present in the upstream object.
func (r Record) Has(key string) bool {
	_, ok := r.Value(key)
	return ok
}

// String returns the value for key rendered as text.
// Numbers keep their upstream spelling. Null, objects and arrays report false.
func (r Record) String(key string) (string, bool) {
	v, ok := r.Value(key)
	if !ok {
		return "", false
	}
	return Format(v)
}

// Format renders a scalar record value as text.
func Format(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int:
		return strconv.Itoa(val), true
	default:
		return "", false
	}
}

// Int64 returns the value for key as an integer.
// Only numeric values with no fractional part qualify.
func (r Record) Int64(key string) (int64, bool) {
	v, ok := r.Value(key)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case number:
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		if val != float64(int64(val)) {
			return 0, false
		}
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// Float64 returns the value for key as a float.
func (r Record) Float64(key string) (float64, bool) {
	v, ok := r.Value(key)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}

// Bool returns the value for key when it is a JSON boolean.
// Any other type (1, "true", "yes") is not coerced and reports false.
func (r Record) Bool(key string) (bool, bool) {
	v, ok := r.Value(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// -----------------------------------------------------------------------------
// Snapshot
// -----------------------------------------------------------------------------

// Snapshot is the merged result of one complete fetch cycle.
// It is shared by every observer and must not be modified once published.
type Snapshot struct {
	User      Record    // Account attributes (login, credits, expiration_days, ...)
	Devices   []Record  // Device list, upstream order; never nil
	Sessions  []Record  // Active sessions, upstream order; never nil
	FetchedAt time.Time // When the cycle completed
}

// Login returns the account login, if upstream sent one.
func (s *Snapshot) Login() (string, bool) {
	if s == nil {
		return "", false
	}
	return s.User.String("login")
}

// SessionFor returns the first session whose device_name equals name.
// Sessions are matched by name only; there is no identity across snapshots.
func (s *Snapshot) SessionFor(name string) (Record, bool) {
	if s == nil || name == "" {
		return nil, false
	}
	for _, sess := range s.Sessions {
		if dn, ok := sess.String("device_name"); ok && dn == name {
			return sess, true
		}
	}
	return nil, false
}
