package store

import (
	"testing"
	"time"
)

// TestSortableTimestampOrdering guards the bug the Redis CAS script must
// not reintroduce: time.RFC3339Nano drops the fractional-second component
// entirely when nanoseconds==0, so a whole-second timestamp ("...T10:00:00Z")
// sorts lexically *after* a later, sub-second timestamp in the same second
// ("...T10:00:00.5Z") since '.' (0x2E) < 'Z' (0x5A). sortableTimestamp must
// keep lexicographic order consistent with chronological order regardless.
func TestSortableTimestampOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	wholeSecond := base
	halfSecondLater := base.Add(500 * time.Millisecond)

	// Sanity check on the bug itself: RFC3339Nano formatting of these two
	// times sorts in the wrong order.
	if wholeSecond.Format(time.RFC3339Nano) < halfSecondLater.Format(time.RFC3339Nano) {
		t.Fatal("expected RFC3339Nano formatting to exhibit the ordering bug on this fixture")
	}

	got1 := sortableTimestamp(wholeSecond)
	got2 := sortableTimestamp(halfSecondLater)
	if got1 >= got2 {
		t.Fatalf("sortableTimestamp(%v)=%q should sort before sortableTimestamp(%v)=%q", wholeSecond, got1, halfSecondLater, got2)
	}
}

func TestSortableTimestampFixedWidth(t *testing.T) {
	early := time.Date(1971, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := sortableTimestamp(early)
	b := sortableTimestamp(late)
	if len(a) != len(b) {
		t.Fatalf("expected fixed-width output, got lengths %d and %d", len(a), len(b))
	}
	if a >= b {
		t.Fatalf("expected %q to sort before %q", a, b)
	}
}
