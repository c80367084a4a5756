package content

import (
	"math"
	"testing"
	"time"
)

func TestOptions_Coercion(t *testing.T) {
	opts := Options{
		"limit":     "3",
		"bad":       "3.5",
		"hex":       "0x10",
		"neg":       "-2",
		"t":         "true",
		"one":       "1",
		"no":        "yes",
		"throttle":  "250",
		"throttleX": "-1",
		"minTS":     "1501863044192",
	}

	if n, ok := opts.Int("limit"); !ok || n != 3 {
		t.Errorf("limit = %d, %v", n, ok)
	}
	if _, ok := opts.Int("bad"); ok {
		t.Error("fractional value must be unset")
	}
	if _, ok := opts.Int("hex"); ok {
		t.Error("integers are parsed in base 10 only")
	}
	if got := opts.PositiveOr("neg", 5); got != 5 {
		t.Errorf("PositiveOr negative = %d", got)
	}
	if got := opts.IntOr("neg", 5); got != -2 {
		t.Errorf("IntOr negative = %d", got)
	}
	if !opts.BoolOr("t", false) || !opts.BoolOr("one", false) || opts.BoolOr("no", true) {
		t.Error("boolean coercion")
	}
	if !opts.BoolOr("absent", true) {
		t.Error("absent boolean must take default")
	}
	if got := opts.Millis("throttle", time.Second); got != 250*time.Millisecond {
		t.Errorf("throttle = %v", got)
	}
	if got := opts.Millis("throttleX", time.Second); got != time.Second {
		t.Errorf("negative throttle = %v", got)
	}
	if v := opts.Int64("minTS"); v == nil || *v != 1501863044192 {
		t.Errorf("minTS = %v", v)
	}
	if opts.Int64("bad") != nil {
		t.Error("invalid int64 must be nil")
	}
}

func TestOptions_IntegerExtremes(t *testing.T) {
	opts := Options{
		"maxInt32": "2147483647",
		"wraps":    "4294967297",
		"minInt32": "-2147483648",
		"maxInt64": "9223372036854775807",
		"overflow": "9223372036854775808",
		"zero":     "0",
	}

	tests := []struct {
		key  string
		want int32
	}{
		{key: "maxInt32", want: math.MaxInt32},
		{key: "wraps", want: 10},
		{key: "minInt32", want: 10},
		{key: "maxInt64", want: 10},
		{key: "overflow", want: 10},
		{key: "zero", want: 10},
		{key: "absent", want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := opts.PositiveInt32Or(tt.key, 10); got != tt.want {
				t.Errorf("PositiveInt32Or(%s) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}

	if n, ok := opts.Int("maxInt64"); !ok || n != math.MaxInt64 {
		t.Errorf("Int(maxInt64) = %d, %v", n, ok)
	}
	if _, ok := opts.Int("overflow"); ok {
		t.Error("out-of-range int must be unset")
	}
	if _, ok := opts.Int32("wraps"); ok {
		t.Error("out-of-range int32 must be unset")
	}
}

func TestConfig_WithDefaultsBoundsPageSizes(t *testing.T) {
	cfg := Config{QueryTSLimit: math.MaxInt32 + 1, ScanPageSize: -1, QueryPageSize: 25}.withDefaults()
	def := DefaultConfig()
	if cfg.QueryTSLimit != def.QueryTSLimit {
		t.Errorf("QueryTSLimit = %d", cfg.QueryTSLimit)
	}
	if cfg.ScanPageSize != def.ScanPageSize {
		t.Errorf("ScanPageSize = %d", cfg.ScanPageSize)
	}
	if cfg.QueryPageSize != 25 {
		t.Errorf("QueryPageSize = %d", cfg.QueryPageSize)
	}
}

func TestOptions_WithCopies(t *testing.T) {
	opts := Options{"ids": "a"}
	next := opts.With("random", "true")
	if _, ok := opts["random"]; ok {
		t.Fatal("With must not modify the receiver")
	}
	if next["ids"] != "a" || next["random"] != "true" {
		t.Fatalf("unexpected copy %v", next)
	}
	var empty Options
	if empty.With("k", "v")["k"] != "v" {
		t.Fatal("With on nil options")
	}
}
