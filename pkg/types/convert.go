package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Canonical Go representations of primitive values:
//
//	boolean                          bool
//	int, date                        int32 (date: days since epoch)
//	long, time, timestamp[tz]        int64 (time and timestamps: microseconds)
//	float                            float32
//	double                           float64
//	string, uuid, decimal            string
//	binary, fixed                    []byte

// Coerce converts v to the canonical representation of primitive type t.
// A nil value stays nil. Nested types are returned unchanged.
func Coerce(v any, t Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	p, ok := t.(PrimitiveType)
	if !ok {
		return v, nil
	}

	switch {
	case p == BooleanType:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, invalid(v, p)
			}
			return parsed, nil
		}
	case p == IntType:
		n, ok := toInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, invalid(v, p)
		}
		return int32(n), nil
	case p == DateType:
		if s, ok := v.(string); ok {
			d, err := time.Parse("2006-01-02", s)
			if err != nil {
				return nil, invalid(v, p)
			}
			return int32(d.Unix() / 86400), nil
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, invalid(v, p)
		}
		return int32(n), nil
	case p == LongType || p == TimeType:
		n, ok := toInt64(v)
		if !ok {
			return nil, invalid(v, p)
		}
		return n, nil
	case p == TimestampType || p == TimestampTzType:
		switch ts := v.(type) {
		case time.Time:
			return ts.UnixMicro(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, invalid(v, p)
			}
			return parsed.UnixMicro(), nil
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, invalid(v, p)
		}
		return n, nil
	case p == FloatType:
		f, ok := toFloat64(v)
		if !ok {
			return nil, invalid(v, p)
		}
		return float32(f), nil
	case p == DoubleType:
		f, ok := toFloat64(v)
		if !ok {
			return nil, invalid(v, p)
		}
		return f, nil
	case p == StringType || p == UUIDType || p.IsDecimal():
		switch s := v.(type) {
		case string:
			return s, nil
		case json.Number:
			return s.String(), nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case p == BinaryType || p.IsFixed():
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			decoded, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return []byte(b), nil
			}
			return decoded, nil
		}
	}
	return nil, invalid(v, p)
}

func invalid(v any, t Type) error {
	return fmt.Errorf("%w %s: %v (%T)", ErrInvalidValue, t, v, v)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		if float32(int64(n)) != n {
			return 0, false
		}
		return int64(n), true
	case float64:
		if float64(int64(n)) != n {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// Compare orders two canonical values of the same type. ok is false when the
// values are not comparable.
func Compare(a, b any) (cmp int, ok bool) {
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case int32, int64:
		ai, _ := toInt64(av)
		bi, ok := toInt64(b)
		if !ok {
			return 0, false
		}
		return compareOrdered(ai, bi), true
	case float32, float64:
		af, _ := toFloat64(av)
		bf, ok := toFloat64(b)
		if !ok {
			return 0, false
		}
		return compareOrdered(af, bf), true
	case string:
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return compareOrdered(av, bs), true
	case []byte:
		bb, ok := b.([]byte)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av, bb), true
	}
	return 0, false
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
