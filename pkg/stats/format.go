package stats

import "fmt"

// FormatETA renders a second count as short human-readable text.
func FormatETA(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dmin %ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%dh %dmin", seconds/3600, (seconds%3600)/60)
}
