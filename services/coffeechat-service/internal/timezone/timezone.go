// Package timezone projects UTC time slots into a viewer's IANA zone.
//
// Grouping always derives the calendar date from the converted instant, never
// from a pre-formatted string, so day boundaries stay correct across DST
// transitions. All functions are pure; re-grouping the same slots under any
// sequence of zones yields the same result as grouping directly.
package timezone

import (
	"fmt"
	"sort"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

// LocalDate is a calendar date as observed in some zone.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

func localDateOf(t time.Time, loc *time.Location) LocalDate {
	y, m, d := t.In(loc).Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d LocalDate) Before(other LocalDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// LoadZone resolves an IANA zone name, falling back to UTC for empty or
// unknown names. The original profile data contains free-form zone strings,
// so a bad preference must not make listings fail.
func LoadZone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GroupByLocalDate buckets slots by the local calendar date of their UTC start
// in loc. Within each bucket slots are sorted by UTC instant; ties on local
// wall-clock time (repeated hours during fall-back) are therefore still
// well-ordered.
func GroupByLocalDate(slots []model.TimeSlot, loc *time.Location) map[LocalDate][]model.TimeSlot {
	groups := make(map[LocalDate][]model.TimeSlot)
	for _, s := range slots {
		d := localDateOf(s.StartUTC, loc)
		groups[d] = append(groups[d], s)
	}
	for d := range groups {
		g := groups[d]
		sort.Slice(g, func(i, j int) bool {
			return g[i].StartUTC.Before(g[j].StartUTC)
		})
		groups[d] = g
	}
	return groups
}

// SortedDates returns the group keys in chronological order.
func SortedDates(groups map[LocalDate][]model.TimeSlot) []LocalDate {
	dates := make([]LocalDate, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// FormatRange renders a slot's interval entirely in loc, e.g.
// "9:00 AM – 9:30 AM". The end time is rendered in the same zone even when
// the slot crosses midnight or a DST boundary.
func FormatRange(slot model.TimeSlot, loc *time.Location) string {
	start := slot.StartUTC.In(loc)
	end := slot.EndUTC.In(loc)
	return start.Format("3:04 PM") + " – " + end.Format("3:04 PM")
}
