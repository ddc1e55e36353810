package worker

import (
	"fmt"
	"time"

	"github.com/discourse/mobystash/internal/cursor"
)

// sinceQuery formats the RFC3339Nano cursor ts as the engine's `since`
// query parameter.
func sinceQuery(ts string) (string, error) {
	t, err := cursor.ParseRFC3339Nano(ts)
	if err != nil {
		return "", fmt.Errorf("worker: parse cursor %q: %w", ts, err)
	}
	return cursor.Format(t), nil
}

// sinceQueryAfter is sinceQuery for the instant 1ns after ts. The log
// stream uses it so the line the cursor already points at is not sent
// again, and the event-wait subroutine uses it so the container's own
// "start" event (which necessarily postdates the last log line seen before
// it went away) is not missed or re-delivered (spec §4.D steps 2 and 3).
func sinceQueryAfter(ts string) (string, error) {
	t, err := cursor.ParseRFC3339Nano(ts)
	if err != nil {
		return "", fmt.Errorf("worker: parse cursor %q: %w", ts, err)
	}
	return cursor.Format(t.Add(time.Nanosecond)), nil
}
