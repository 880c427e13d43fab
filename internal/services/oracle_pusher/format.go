package oracle_pusher

import (
	"fmt"
	"time"
)

// FormatAge renders a duration in whole seconds as "45s", "2m 5s", "1h 2m 3s",
// dropping zero minute and second parts. Negative durations render as "0s".
func FormatAge(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		mins, secs := seconds/60, seconds%60
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", mins, secs)
		}
		return fmt.Sprintf("%dm", mins)
	}

	hours := seconds / 3600
	mins := (seconds % 3600) / 60
	secs := seconds % 60
	switch {
	case mins > 0 && secs > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case secs > 0:
		return fmt.Sprintf("%dh %ds", hours, secs)
	default:
		return fmt.Sprintf("%dh", hours)
	}
}

// formatPrice renders a price with 4 decimals for stable feeds and 2 otherwise.
func formatPrice(price float64, stable bool) string {
	if stable {
		return fmt.Sprintf("%.4f", price)
	}
	return fmt.Sprintf("%.2f", price)
}
