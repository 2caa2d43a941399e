package timetrack

import (
	"fmt"
	"time"
)

// FormatDuration renders whole minutes as "1h 45m", or "45m" under an hour.
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// FormatTime renders a timestamp as wall-clock "15:04".
func FormatTime(t time.Time) string {
	return t.Format("15:04")
}
