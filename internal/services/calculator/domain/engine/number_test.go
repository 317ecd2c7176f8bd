package engine

import (
	"math"
	"testing"
)

func TestFormatNumber(t *testing.T) {
	a, b := 0.1, 0.2
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{name: "zero", in: 0, want: "0"},
		{name: "negative zero", in: math.Copysign(0, -1), want: "0"},
		{name: "integer", in: 42, want: "42"},
		{name: "negative", in: -7.25, want: "-7.25"},
		{name: "shortest round trip", in: a + b, want: "0.30000000000000004"},
		{name: "just below upper threshold", in: 999999999999, want: "999999999999"},
		{name: "upper threshold", in: 1e12, want: "1e+12"},
		{name: "large mantissa rounded", in: 123456789012345, want: "1.23456789e+14"},
		{name: "large negative", in: -2.5e15, want: "-2.5e+15"},
		{name: "lower threshold stays plain", in: 1e-9, want: "0.000000001"},
		{name: "below lower threshold", in: 1.5e-10, want: "1.5e-10"},
		{name: "tiny negative", in: -5e-10, want: "-5e-10"},
		{name: "positive infinity", in: math.Inf(1), want: ErrorDisplay},
		{name: "negative infinity", in: math.Inf(-1), want: ErrorDisplay},
		{name: "nan", in: math.NaN(), want: ErrorDisplay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber(tt.in); got != tt.want {
				t.Fatalf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{in: "0", want: 0},
		{in: "73", want: 73},
		{in: "3.", want: 3},
		{in: "0.", want: 0},
		{in: "-0.5", want: -0.5},
		{in: "1e+12", want: 1e12},
		{in: " 12 ", want: 12},
		{in: ErrorDisplay, want: 0},
		{in: "Inf", want: 0},
		{in: "NaN", want: 0},
		{in: "", want: 0},
		{in: "-", want: 0},
	}
	for _, tt := range tests {
		if got := ParseNumber(tt.in); got != tt.want {
			t.Fatalf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumberRoundTripsPlainValues(t *testing.T) {
	for _, v := range []float64{1, -1, 0.5, 3.14159, 123456.789, 1e11, 2e-9} {
		if got := ParseNumber(FormatNumber(v)); got != v {
			t.Fatalf("ParseNumber(FormatNumber(%v)) = %v", v, got)
		}
	}
}
