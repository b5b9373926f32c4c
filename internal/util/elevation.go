package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const metersPerFoot = 0.3048

// FeetToMeters converts and rounds to the nearest 10 m, the precision
// survey elevations are quoted at.
func FeetToMeters(feet int) int {
	return int(math.Round(float64(feet)*metersPerFoot/10)) * 10
}

// ParseElevation turns the numeric tokens of one elevation match into meters.
// high may be empty for a single value.
func ParseElevation(low, high string, feet bool) (int, int, error) {
	lo, err := parseToken(low)
	if err != nil {
		return 0, 0, err
	}
	hi := lo
	if strings.TrimSpace(high) != "" {
		if hi, err = parseToken(high); err != nil {
			return 0, 0, err
		}
	}
	if feet {
		lo, hi = FeetToMeters(lo), FeetToMeters(hi)
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}

// Bounds returns the smallest and largest value; ok is false for no values.
func Bounds(values []int) (min, max int, ok bool) {
	if len(values) == 0 {
		return 0, 0, false
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, true
}

func parseToken(token string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil {
		return 0, fmt.Errorf("elevation %q: %w", token, err)
	}
	return v, nil
}
