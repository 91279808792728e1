// Package availability expands a user's coming week into bookable slot
// candidates. Everything here is pure; persistence happens in storage.
package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Key identifies an interval by its exact UTC bounds. Removed and booked
// slots are matched by key, busy calendar blocks by overlap.
type Key struct {
	Start int64
	End   int64
}

func KeyOf(iv Interval) Key {
	return Key{Start: iv.Start.UTC().Unix(), End: iv.End.UTC().Unix()}
}

// WeekWindow returns [local midnight of today, +7 days) converted to UTC.
// The window is anchored in the owner's zone so the generated week lines up
// with the owner's calendar, not the server's.
func WeekWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc).UTC()
	return start, start.Add(7 * 24 * time.Hour)
}

// Chunk splits [windowStart, windowEnd) into contiguous duration-sized
// intervals. A trailing remainder shorter than duration is discarded.
func Chunk(windowStart, windowEnd time.Time, duration time.Duration) []Interval {
	if duration <= 0 || !windowEnd.After(windowStart) {
		return nil
	}
	var out []Interval
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(duration) {
		out = append(out, Interval{Start: t, End: t.Add(duration)})
	}
	return out
}

// Open filters candidates down to the ones not overlapping any busy interval
// and not present in taken (removed or already-booked slot keys).
func Open(candidates []Interval, busy []Interval, taken map[Key]struct{}) []Interval {
	var out []Interval
	for _, c := range candidates {
		if overlapsAny(c.Start, c.End, busy) {
			continue
		}
		if _, ok := taken[KeyOf(c)]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
