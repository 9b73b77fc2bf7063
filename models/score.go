package models

import "math"

// Clamp bounds a score to [0,100].
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampFloat rounds to the nearest integer and bounds it to [0,100].
func ClampFloat(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp(int(math.Round(v)))
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
