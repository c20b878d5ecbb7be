// Package amount renders Stellar's native 64-bit fixed-point values
// ("stroops", 7 fractional digits) as decimal strings. Rendering always
// truncates; it never rounds, so a stored amount round-trips exactly.
package amount

import "fmt"

// One is the number of stroops in one whole unit of an asset.
const One = 10000000

// String renders a raw stroop value as a decimal string with exactly
// seven fractional digits: String(12345678) == "1.2345678".
func String(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%07d", sign, v/One, v%One)
}

// Price renders the rational n/d with the same truncating, zero-padded
// representation used by String. The denominator must be nonzero.
func Price(n, d int32) string {
	if d == 0 {
		return "0.0000000"
	}
	num, den := int64(n), int64(d)
	sign := ""
	if (num < 0) != (den < 0) {
		sign = "-"
	}
	if num < 0 {
		num = -num
	}
	if den < 0 {
		den = -den
	}
	whole := num / den
	frac := (num % den) * One / den
	return fmt.Sprintf("%s%d.%07d", sign, whole, frac)
}
