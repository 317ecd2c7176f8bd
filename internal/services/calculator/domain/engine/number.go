package engine

import (
	"math"
	"strconv"
	"strings"
)

// ErrorDisplay is the only user-visible error state of the calculator.
const ErrorDisplay = "Error"

const (
	// Magnitudes at or above exponentUpper, or below exponentLower (but not
	// zero), are rendered in exponential notation.
	exponentUpper = 1e12
	exponentLower = 1e-9
	// exponentDigits bounds the mantissa's fractional digits.
	exponentDigits = 8
)

// ParseNumber converts a display string to a float64. Unparseable or
// non-finite input, including ErrorDisplay, reads as 0.
func ParseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !isFinite(v) {
		return 0
	}
	return v
}

// FormatNumber renders a result for the display.
func FormatNumber(n float64) string {
	if !isFinite(n) {
		return ErrorDisplay
	}
	if n == 0 {
		// Covers negative zero.
		return "0"
	}
	abs := math.Abs(n)
	if abs >= exponentUpper || abs < exponentLower {
		s := strconv.FormatFloat(n, 'e', exponentDigits, 64)
		mantissa, exponent, _ := strings.Cut(s, "e")
		return trimFraction(mantissa) + "e" + exponent
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func trimFraction(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
