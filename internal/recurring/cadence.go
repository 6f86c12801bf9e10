package recurring

import (
	"time"

	"tally/internal/core"
)

// Cadence is the strategy that places the n-th occurrence after an anchor.
// Implementations work on civil dates at midnight UTC.
type Cadence interface {
	Step(anchor time.Time, n int) time.Time
}

// Monthly steps whole calendar months and keeps the anchor's day of month,
// clamped to the length of the target month. The day is always taken from
// the anchor, so Jan 31 yields Feb 28 and then Mar 31.
type Monthly struct{}

func (Monthly) Step(anchor time.Time, n int) time.Time {
	y, m, d := anchor.Date()
	// Day 1 never overflows, so the normalized month is exact.
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := core.DaysIn(target.Year(), target.Month())
	if d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, time.UTC)
}
