package service

import (
	"fmt"
	"math"
)

// round2 rounds half up to two decimals. Dashboards depend on this
// matching exactly; do not switch to banker's rounding.
func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// roundPercent rounds half up to a whole percentage.
func roundPercent(value float64) int64 {
	return int64(math.Round(value))
}

// FormatSeconds renders a second count for the dashboard: plain seconds
// under a minute, whole minutes under an hour, hours with one decimal
// beyond that.
func FormatSeconds(seconds int64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d segundos", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d minutos", seconds/60)
	default:
		return fmt.Sprintf("%.1f horas", float64(seconds)/3600)
	}
}
