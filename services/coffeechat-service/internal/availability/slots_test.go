package availability

import (
	"testing"
	"time"
)

func TestWeekWindowAnchorsOwnerMidnight(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}

	// 15:00 UTC on 2024-03-09 is 7:00 AM PST; local midnight is 08:00 UTC.
	now := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	start, end := WeekWindow(now, la)

	wantStart := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Fatalf("window start = %v, want %v", start, wantStart)
	}
	if got := end.Sub(start); got != 7*24*time.Hour {
		t.Fatalf("window span = %v, want 168h", got)
	}
}

func TestChunkDiscardsRemainder(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	got := Chunk(start, start.Add(time.Hour), 25*time.Minute)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if !got[0].Start.Equal(start) || !got[1].End.Equal(start.Add(50*time.Minute)) {
		t.Fatalf("unexpected chunk bounds: %+v", got)
	}

	if Chunk(start, start, 25*time.Minute) != nil {
		t.Fatal("empty window should yield no chunks")
	}
	if Chunk(start, start.Add(time.Hour), 0) != nil {
		t.Fatal("zero duration should yield no chunks")
	}
}

func TestOpenFiltersBusyAndTaken(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	candidates := Chunk(start, start.Add(2*time.Hour), 30*time.Minute)
	if len(candidates) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(candidates))
	}

	// Busy block overlaps the second candidate's tail only.
	busy := []Interval{{
		Start: start.Add(45 * time.Minute),
		End:   start.Add(55 * time.Minute),
	}}
	taken := map[Key]struct{}{
		KeyOf(candidates[3]): {},
	}

	open := Open(candidates, busy, taken)
	if len(open) != 2 {
		t.Fatalf("expected 2 open slots, got %d: %+v", len(open), open)
	}
	if !open[0].Start.Equal(candidates[0].Start) || !open[1].Start.Equal(candidates[2].Start) {
		t.Fatalf("wrong candidates survived: %+v", open)
	}
}

func TestOpenTreatsTouchingIntervalsAsFree(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	candidates := []Interval{{Start: start, End: start.Add(30 * time.Minute)}}

	// Busy block starts exactly where the candidate ends.
	busy := []Interval{{Start: start.Add(30 * time.Minute), End: start.Add(time.Hour)}}
	if got := Open(candidates, busy, nil); len(got) != 1 {
		t.Fatalf("half-open intervals sharing an endpoint must not conflict: %+v", got)
	}
}
