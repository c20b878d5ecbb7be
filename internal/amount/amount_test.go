package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want string
	}{
		{"zero", 0, "0.0000000"},
		{"one stroop", 1, "0.0000001"},
		{"fractional", 12345678, "1.2345678"},
		{"whole", 100000000, "10.0000000"},
		{"negative", -12345678, "-1.2345678"},
		{"negative fraction only", -1, "-0.0000001"},
		{"max supply", 1000000000000000000, "100000000000.0000000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, String(tc.in))
		})
	}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name string
		n, d int32
		want string
	}{
		{"unit", 1, 1, "1.0000000"},
		{"half", 1, 2, "0.5000000"},
		{"truncates repeating third", 1, 3, "0.3333333"},
		{"truncates two thirds without rounding", 2, 3, "0.6666666"},
		{"truncates sub-stroop remainder", 1, 30000000, "0.0000000"},
		{"greater than one", 7, 2, "3.5000000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Price(tc.n, tc.d))
		})
	}
}
