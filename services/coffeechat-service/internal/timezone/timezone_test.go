package timezone

import (
	"testing"
	"time"

	"github.com/coffeechat-app/coffeechat/services/coffeechat-service/internal/model"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s) failed: %v", name, err)
	}
	return loc
}

func slotAt(id string, start time.Time, minutes int) model.TimeSlot {
	return model.TimeSlot{
		ID:              id,
		StartUTC:        start,
		EndUTC:          start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
	}
}

func TestGroupByLocalDateSpringForward(t *testing.T) {
	la := mustZone(t, "America/Los_Angeles")

	// 2024-03-10 is the US spring-forward date; 2:00 AM local does not exist.
	slots := []model.TimeSlot{
		// 23:00 PST on the 9th.
		slotAt("a", time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC), 30),
		// 1:30 AM PST on the 10th, before the jump.
		slotAt("b", time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC), 30),
		// 3:30 AM PDT on the 10th, after the jump.
		slotAt("c", time.Date(2024, 3, 10, 10, 30, 0, 0, time.UTC), 30),
	}

	groups := GroupByLocalDate(slots, la)

	d9 := LocalDate{Year: 2024, Month: time.March, Day: 9}
	d10 := LocalDate{Year: 2024, Month: time.March, Day: 10}
	if len(groups[d9]) != 1 || groups[d9][0].ID != "a" {
		t.Fatalf("expected slot a alone on %s, got %+v", d9, groups[d9])
	}
	if len(groups[d10]) != 2 {
		t.Fatalf("expected slots b and c on %s, got %+v", d10, groups[d10])
	}

	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total != len(slots) {
		t.Fatalf("each slot must land in exactly one group: got %d of %d", total, len(slots))
	}
}

func TestGroupByLocalDateDependsOnViewer(t *testing.T) {
	s := slotAt("x", time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC), 30)

	la := GroupByLocalDate([]model.TimeSlot{s}, mustZone(t, "America/Los_Angeles"))
	tokyo := GroupByLocalDate([]model.TimeSlot{s}, mustZone(t, "Asia/Tokyo"))

	if _, ok := la[LocalDate{2024, time.May, 31}]; !ok {
		t.Fatalf("expected May 31 group for Los Angeles, got %v", la)
	}
	if _, ok := tokyo[LocalDate{2024, time.June, 1}]; !ok {
		t.Fatalf("expected June 1 group for Tokyo, got %v", tokyo)
	}
}

func TestGroupByLocalDateOrdersWithinGroup(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	slots := []model.TimeSlot{
		slotAt("late", base.Add(2*time.Hour), 30),
		slotAt("early", base, 30),
		slotAt("mid", base.Add(time.Hour), 30),
	}

	groups := GroupByLocalDate(slots, time.UTC)
	g := groups[LocalDate{2024, time.June, 1}]
	if len(g) != 3 {
		t.Fatalf("expected 3 slots in group, got %d", len(g))
	}
	for i := 1; i < len(g); i++ {
		if g[i].StartUTC.Before(g[i-1].StartUTC) {
			t.Fatalf("group not sorted by start: %v", g)
		}
	}
}

func TestSortedDates(t *testing.T) {
	groups := map[LocalDate][]model.TimeSlot{
		{2024, time.June, 3}:      nil,
		{2024, time.June, 1}:      nil,
		{2023, time.December, 31}: nil,
	}
	dates := SortedDates(groups)
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if dates[i].Before(dates[i-1]) {
			t.Fatalf("dates not sorted: %v", dates)
		}
	}
	if dates[0].String() != "2023-12-31" {
		t.Fatalf("unexpected first date: %s", dates[0])
	}
}

func TestFormatRange(t *testing.T) {
	la := mustZone(t, "America/Los_Angeles")
	// 17:00 UTC in June is 10:00 AM PDT.
	s := slotAt("x", time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC), 30)

	got := FormatRange(s, la)
	want := "10:00 AM – 10:30 AM"
	if got != want {
		t.Fatalf("FormatRange = %q, want %q", got, want)
	}
}

func TestLoadZoneFallsBackToUTC(t *testing.T) {
	if LoadZone("") != time.UTC {
		t.Fatal("empty zone should resolve to UTC")
	}
	if LoadZone("Not/AZone") != time.UTC {
		t.Fatal("unknown zone should resolve to UTC")
	}
	if LoadZone("Asia/Tokyo") == time.UTC {
		t.Fatal("valid zone should not fall back")
	}
}
