package table

import (
	"testing"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/metatables/pkg/types"
)

func TestBucketHashMatchesReferenceValues(t *testing.T) {
	if got := hashLong(34); got != 2017239379 {
		t.Errorf("hashLong(34) = %d, want 2017239379", got)
	}
	if got := murmur3.Sum32([]byte("iceberg")); got != 1210000089 {
		t.Errorf("hash(iceberg) = %d, want 1210000089", got)
	}
}

func TestParseTransform(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"identity", "identity", false},
		{"bucket[16]", "bucket[16]", false},
		{"truncate[4]", "truncate[4]", false},
		{"day", "day", false},
		{"void", "void", false},
		{"bucket[0]", "", true},
		{"bucket[x]", "", true},
		{"zorder", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTransform(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTransform(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTransform(%q): %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Errorf("ParseTransform(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTransformApply(t *testing.T) {
	const micros2017_11_16T22 = int64(1510871468000000) // 2017-11-16T22:31:08Z
	const days2017_11_16 = int32(17486)

	tests := []struct {
		name      string
		transform Transform
		in        any
		want      any
	}{
		{"identity", IdentityTransform{}, "x", "x"},
		{"void", VoidTransform{}, int64(5), nil},
		{"truncate int", TruncateTransform{Width: 10}, int32(1), int32(0)},
		{"truncate negative int", TruncateTransform{Width: 10}, int32(-1), int32(-10)},
		{"truncate long", TruncateTransform{Width: 10}, int64(1023), int64(1020)},
		{"truncate string", TruncateTransform{Width: 3}, "iceberg", "ice"},
		{"truncate short string", TruncateTransform{Width: 10}, "ice", "ice"},
		{"year of date", YearTransform{}, days2017_11_16, int32(47)},
		{"month of date", MonthTransform{}, days2017_11_16, int32(47*12 + 10)},
		{"day of timestamp", DayTransform{}, micros2017_11_16T22, days2017_11_16},
		{"day of date", DayTransform{}, days2017_11_16, days2017_11_16},
		{"day before epoch", DayTransform{}, int64(-1), int32(-1)},
		{"hour of timestamp", HourTransform{}, micros2017_11_16T22, int32(17486*24 + 22)},
		{"null", YearTransform{}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.transform.Apply(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestTransformResultType(t *testing.T) {
	tests := []struct {
		transform Transform
		source    types.Type
		want      types.Type
		wantErr   bool
	}{
		{IdentityTransform{}, types.StringType, types.StringType, false},
		{BucketTransform{N: 8}, types.LongType, types.IntType, false},
		{BucketTransform{N: 8}, types.BooleanType, nil, true},
		{DayTransform{}, types.TimestampType, types.DateType, false},
		{HourTransform{}, types.DateType, nil, true},
		{VoidTransform{}, types.DoubleType, types.DoubleType, false},
		{TruncateTransform{Width: 2}, types.DoubleType, nil, true},
	}

	for _, tt := range tests {
		got, err := tt.transform.ResultType(tt.source)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s(%s): expected error", tt.transform, tt.source)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s(%s): %v", tt.transform, tt.source, err)
		}
		if got != tt.want {
			t.Errorf("%s(%s) = %s, want %s", tt.transform, tt.source, got, tt.want)
		}
	}
}

func TestBucketApplyRange(t *testing.T) {
	b := BucketTransform{N: 4}
	for _, v := range []any{int32(-7), int64(1 << 40), "a", []byte{0xff}} {
		got, err := b.Apply(v)
		if err != nil {
			t.Fatalf("Apply(%v): %v", v, err)
		}
		n := got.(int32)
		if n < 0 || n >= 4 {
			t.Errorf("bucket of %v = %d, out of range", v, n)
		}
	}

	got, _ := b.Apply(int32(34))
	want, _ := b.Apply(int64(34))
	if got != want {
		t.Errorf("int and long buckets differ: %v vs %v", got, want)
	}
}
