// Package cursor formats timestamps into the engine's `since=<float seconds>`
// query parameter (spec §6), shared by internal/worker (logs/events
// subscriptions) and internal/discovery (the events long-poll).
package cursor

import (
	"fmt"
	"time"
)

// Format renders t as "<secs>.<nnnnnnnnn>", built from the time's integer
// unix-seconds and nanosecond fields rather than round-tripped through a
// float64 (spec Design Note §9: a float64 cannot exactly represent
// nanosecond-resolution unix timestamps, which would silently replay or
// skip events/log lines at the cursor boundary).
func Format(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

// ParseRFC3339Nano parses a persisted cursor string, the storage format
// decided for spec.md §9's Open Question ("RFC3339Nano with trailing Z").
func ParseRFC3339Nano(ts string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, ts)
}

// FormatRFC3339Nano is the canonical cursor storage format.
func FormatRFC3339Nano(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
