package lapping

import (
	"fmt"
	"math"
	"time"
)

// ClockFormat renders d as HH:MM:SS.t (tenths of a second). Negative
// durations are shown by magnitude.
func ClockFormat(d time.Duration) string {
	d = absDuration(d)

	secs := d.Seconds()
	whole := int64(secs)
	tenths := int64(math.Round((secs - float64(whole)) * 10))
	if tenths == 10 {
		whole++
		tenths = 0
	}

	hours := whole / 3600
	minutes := (whole / 60) % 60
	seconds := whole % 60

	return fmt.Sprintf("%02d:%02d:%02d.%d", hours, minutes, seconds, tenths)
}

// Percentage renders a confidence as a percentage with two decimals.
// Values already above 1 are taken to be percentages.
func Percentage(c float64) string {
	if c <= 1 {
		c *= 100
	}
	return fmt.Sprintf("%.2f", c)
}
