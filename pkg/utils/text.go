// Package utils provides shared helpers for logging and text formatting.
package utils

import (
	"fmt"
	"math"
)

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// FormatClock renders seconds as m:ss, e.g. 65.4 -> "1:05".
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Percent renders a [0,1] fraction as a whole percentage, e.g. 0.874 -> "87%".
func Percent(fraction float64) string {
	return fmt.Sprintf("%.0f%%", fraction*100)
}
