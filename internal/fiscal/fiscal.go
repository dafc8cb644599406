// Package fiscal resolves calendar dates to Indian financial years
// (April 1 through March 31, labelled "2025-2026").
package fiscal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Now is swappable in tests.
var Now = time.Now

// Year returns the financial-year label containing t.
func Year(t time.Time) string {
	y := t.Year()
	if t.Month() >= time.April {
		return fmt.Sprintf("%d-%d", y, y+1)
	}
	return fmt.Sprintf("%d-%d", y-1, y)
}

// CurrentYear returns the financial-year label containing the current date.
func CurrentYear() string {
	return Year(Now())
}

// Range returns the inclusive start and end instants of a financial-year
// label. Start is April 1 00:00:00.000 UTC of the first year, end is
// March 31 23:59:59.999 UTC of the second year.
func Range(label string) (time.Time, time.Time, error) {
	parts := strings.SplitN(label, "-", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("fiscal: malformed year label %q", label)
	}
	first, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("fiscal: malformed year label %q", label)
	}
	second, err := strconv.Atoi(parts[1])
	if err != nil || second != first+1 {
		return time.Time{}, time.Time{}, fmt.Errorf("fiscal: malformed year label %q", label)
	}
	start := time.Date(first, time.April, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(first+1, time.March, 31, 23, 59, 59, 999_000_000, time.UTC)
	return start, end, nil
}

// YearsSince lists every financial-year label from fromYear up to the one
// containing the current date, most recent first.
func YearsSince(fromYear int) []string {
	current, _ := strconv.Atoi(strings.SplitN(CurrentYear(), "-", 2)[0])
	if fromYear > current {
		return nil
	}
	labels := make([]string, 0, current-fromYear+1)
	for y := current; y >= fromYear; y-- {
		labels = append(labels, fmt.Sprintf("%d-%d", y, y+1))
	}
	return labels
}
