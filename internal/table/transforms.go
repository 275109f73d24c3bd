package table

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/metatables/pkg/types"
)

// Transform maps a source column value to a partition value.
type Transform interface {
	String() string

	// ResultType returns the partition value type produced from source.
	ResultType(source types.Type) (types.Type, error)

	// Apply transforms a canonical source value. nil maps to nil.
	Apply(v any) (any, error)
}

var (
	bucketPattern   = regexp.MustCompile(`^bucket\[(\d+)\]$`)
	truncatePattern = regexp.MustCompile(`^truncate\[(\d+)\]$`)
)

// ParseTransform parses the textual form of a transform.
func ParseTransform(s string) (Transform, error) {
	switch s {
	case "identity":
		return IdentityTransform{}, nil
	case "year":
		return YearTransform{}, nil
	case "month":
		return MonthTransform{}, nil
	case "day":
		return DayTransform{}, nil
	case "hour":
		return HourTransform{}, nil
	case "void":
		return VoidTransform{}, nil
	}
	if m := bucketPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("table: invalid bucket count in %q", s)
		}
		return BucketTransform{N: n}, nil
	}
	if m := truncatePattern.FindStringSubmatch(s); m != nil {
		w, err := strconv.Atoi(m[1])
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("table: invalid truncate width in %q", s)
		}
		return TruncateTransform{Width: w}, nil
	}
	return nil, fmt.Errorf("table: unknown transform %q", s)
}

// IdentityTransform keeps the source value.
type IdentityTransform struct{}

func (IdentityTransform) String() string { return "identity" }

func (IdentityTransform) ResultType(source types.Type) (types.Type, error) {
	if _, ok := source.(types.PrimitiveType); !ok {
		return nil, fmt.Errorf("table: identity cannot partition by %s", source)
	}
	return source, nil
}

func (IdentityTransform) Apply(v any) (any, error) { return v, nil }

// VoidTransform always produces null. It keeps the source type so that a
// dropped partition field stays readable in older manifests.
type VoidTransform struct{}

func (VoidTransform) String() string { return "void" }

func (VoidTransform) ResultType(source types.Type) (types.Type, error) { return source, nil }

func (VoidTransform) Apply(any) (any, error) { return nil, nil }

// BucketTransform hashes values with 32-bit murmur3 into N buckets.
type BucketTransform struct {
	N int
}

func (b BucketTransform) String() string { return fmt.Sprintf("bucket[%d]", b.N) }

func (b BucketTransform) ResultType(source types.Type) (types.Type, error) {
	p, ok := source.(types.PrimitiveType)
	if !ok {
		return nil, fmt.Errorf("table: bucket cannot partition by %s", source)
	}
	switch {
	case p == types.IntType, p == types.LongType, p == types.DateType, p == types.TimeType,
		p == types.TimestampType, p == types.TimestampTzType, p == types.StringType,
		p == types.UUIDType, p == types.BinaryType, p.IsFixed(), p.IsDecimal():
		return types.IntType, nil
	}
	return nil, fmt.Errorf("table: bucket cannot partition by %s", source)
}

func (b BucketTransform) Apply(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var h uint32
	switch x := v.(type) {
	case int32:
		h = hashLong(int64(x))
	case int64:
		h = hashLong(x)
	case string:
		h = murmur3.Sum32([]byte(x))
	case []byte:
		h = murmur3.Sum32(x)
	default:
		return nil, fmt.Errorf("table: cannot bucket value of type %T", v)
	}
	return int32((int64(h) & math.MaxInt32) % int64(b.N)), nil
}

func hashLong(v int64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return murmur3.Sum32(buf[:])
}

// TruncateTransform truncates integers to a multiple of Width and strings or
// binary values to at most Width characters or bytes.
type TruncateTransform struct {
	Width int
}

func (t TruncateTransform) String() string { return fmt.Sprintf("truncate[%d]", t.Width) }

func (t TruncateTransform) ResultType(source types.Type) (types.Type, error) {
	switch source {
	case types.IntType, types.LongType, types.StringType, types.BinaryType:
		return source, nil
	}
	return nil, fmt.Errorf("table: truncate cannot partition by %s", source)
}

func (t TruncateTransform) Apply(v any) (any, error) {
	w := int64(t.Width)
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int32:
		n := int64(x)
		return int32(n - (((n % w) + w) % w)), nil
	case int64:
		return x - (((x % w) + w) % w), nil
	case string:
		if utf8.RuneCountInString(x) <= t.Width {
			return x, nil
		}
		runes := []rune(x)
		return string(runes[:t.Width]), nil
	case []byte:
		if len(x) <= t.Width {
			return x, nil
		}
		return x[:t.Width], nil
	}
	return nil, fmt.Errorf("table: cannot truncate value of type %T", v)
}

// YearTransform yields years since 1970.
type YearTransform struct{}

func (YearTransform) String() string { return "year" }

func (YearTransform) ResultType(source types.Type) (types.Type, error) {
	return temporalResult(source, types.IntType, "year")
}

func (YearTransform) Apply(v any) (any, error) {
	t, ok, err := toTime(v)
	if !ok {
		return nil, err
	}
	return int32(t.Year() - 1970), nil
}

// MonthTransform yields months since 1970-01.
type MonthTransform struct{}

func (MonthTransform) String() string { return "month" }

func (MonthTransform) ResultType(source types.Type) (types.Type, error) {
	return temporalResult(source, types.IntType, "month")
}

func (MonthTransform) Apply(v any) (any, error) {
	t, ok, err := toTime(v)
	if !ok {
		return nil, err
	}
	return int32((t.Year()-1970)*12 + int(t.Month()) - 1), nil
}

// DayTransform yields the date of a value.
type DayTransform struct{}

func (DayTransform) String() string { return "day" }

func (DayTransform) ResultType(source types.Type) (types.Type, error) {
	return temporalResult(source, types.DateType, "day")
}

func (DayTransform) Apply(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int32:
		return x, nil
	case int64:
		return int32(floorDiv(x, int64(24*time.Hour/time.Microsecond))), nil
	}
	return nil, fmt.Errorf("table: cannot apply day to %T", v)
}

// HourTransform yields hours since the epoch. Only timestamps are accepted.
type HourTransform struct{}

func (HourTransform) String() string { return "hour" }

func (HourTransform) ResultType(source types.Type) (types.Type, error) {
	if source == types.TimestampType || source == types.TimestampTzType {
		return types.IntType, nil
	}
	return nil, fmt.Errorf("table: hour cannot partition by %s", source)
}

func (HourTransform) Apply(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return int32(floorDiv(x, int64(time.Hour/time.Microsecond))), nil
	}
	return nil, fmt.Errorf("table: cannot apply hour to %T", v)
}

func temporalResult(source, result types.Type, name string) (types.Type, error) {
	switch source {
	case types.DateType, types.TimestampType, types.TimestampTzType:
		return result, nil
	}
	return nil, fmt.Errorf("table: %s cannot partition by %s", name, source)
}

// toTime reads a canonical date (int32 days) or timestamp (int64 micros).
func toTime(v any) (time.Time, bool, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case int32:
		return time.Unix(int64(x)*86400, 0).UTC(), true, nil
	case int64:
		return time.UnixMicro(x).UTC(), true, nil
	}
	return time.Time{}, false, fmt.Errorf("table: expected date or timestamp, got %T", v)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
