package ui

import (
	"fmt"
	"strings"
)

// truncate shortens a string to the given limit, adding ellipsis if needed.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// padRight pads a string with spaces to the given width.
func padRight(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(r))
}

// stars renders a 0-5 rating as filled and empty stars.
func stars(n int) string {
	n = max(0, min(n, 5))
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

// formatAverage renders an average rating, or a dash when unrated.
func formatAverage(avg float64) string {
	if avg <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", avg)
}

// formatYear renders a release year, or blank when unknown.
func formatYear(year int) string {
	if year <= 0 {
		return "    "
	}
	return fmt.Sprintf("%d", year)
}

// formatRange renders a 1-based window such as "4-9 of 12".
func formatRange(start, end, total int) string {
	return fmt.Sprintf("%d-%d of %d", start+1, end, total)
}

// ternary returns a if cond is true, otherwise b.
func ternary(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
