package timetrack

import (
	"fmt"
	"time"
)

const (
	minDuration = time.Minute
	maxDuration = 8 * time.Hour
)

// Result is the outcome of validating a proposed time entry. Errors reject
// the mutation; warnings are surfaced for confirmation but do not block.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks a proposed start/end pair against the order's service date
// and the sibling entries of other service types on the same order. It is
// pure: no clock, no storage.
func Validate(start, end *time.Time, referenceDate time.Time, others []Entry) Result {
	r := Result{Valid: true}
	fail := func(msg string) {
		r.Valid = false
		r.Errors = append(r.Errors, msg)
	}

	if start != nil && !sameDay(*start, referenceDate) {
		fail("start time must fall on the service date")
	}
	if end != nil && !sameDay(*end, referenceDate) {
		fail("end time must fall on the service date")
	}

	if start != nil && end != nil {
		if !end.After(*start) {
			fail("end time must be after start time")
		} else {
			for _, other := range others {
				if !other.Completed() {
					continue
				}
				if overlaps(*start, *end, *other.Start, *other.End) {
					fail(fmt.Sprintf("interval overlaps service type %s", other.ServiceTypeID))
				}
			}

			d := end.Sub(*start)
			if d < minDuration {
				r.Warnings = append(r.Warnings, "duration is shorter than one minute")
			}
			if d > maxDuration {
				r.Warnings = append(r.Warnings, "duration is longer than eight hours")
			}
		}
	}

	return r
}

// sameDay compares calendar dates in the reference date's location, so an
// entry near midnight is judged against the service day the order uses.
func sameDay(t, ref time.Time) bool {
	y1, m1, d1 := t.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// overlaps reports whether [s1,e1) and [s2,e2) intersect. Touching
// boundaries do not count: sequential work may end one service type the
// moment the next begins.
func overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}
