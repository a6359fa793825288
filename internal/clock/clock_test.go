package clock

import (
	"testing"
	"time"
)

func TestLocalDateAcrossTimezones(t *testing.T) {
	// 2024-03-02 23:30 UTC is already 2024-03-03 in Auckland.
	ts := time.Date(2024, 3, 2, 23, 30, 0, 0, time.UTC)

	utcDate, err := LocalDate(ts, "UTC")
	if err != nil {
		t.Fatalf("utc local date: %v", err)
	}
	if utcDate != "2024-03-02" {
		t.Fatalf("unexpected UTC date: %s", utcDate)
	}

	nzDate, err := LocalDate(ts, "Pacific/Auckland")
	if err != nil {
		t.Fatalf("auckland local date: %v", err)
	}
	if nzDate != "2024-03-03" {
		t.Fatalf("unexpected Auckland date: %s", nzDate)
	}
}

func TestLocalDateUnknownZoneFallsBackToUTC(t *testing.T) {
	ts := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	got, err := LocalDate(ts, "Mars/Olympus_Mons")
	if err != nil {
		t.Fatalf("local date: %v", err)
	}
	if got != "2024-03-02" {
		t.Fatalf("expected UTC fallback, got %s", got)
	}
}

func TestLocalDateRejectsZeroTimestamp(t *testing.T) {
	if _, err := LocalDate(time.Time{}, "UTC"); err == nil {
		t.Fatal("expected validation error for zero timestamp")
	}
}

func TestPrevDateAndDaysBetween(t *testing.T) {
	prev, err := PrevDate("2024-03-01")
	if err != nil {
		t.Fatalf("prev date: %v", err)
	}
	if prev != "2024-02-29" {
		t.Fatalf("leap day expected, got %s", prev)
	}

	days, err := DaysBetween("2024-02-28", "2024-03-02")
	if err != nil {
		t.Fatalf("days between: %v", err)
	}
	if days != 3 {
		t.Fatalf("expected 3 days, got %d", days)
	}

	if _, err := DaysBetween("yesterday", "2024-03-02"); err == nil {
		t.Fatal("expected validation error for malformed date")
	}
}

func TestNextUTCMidnight(t *testing.T) {
	ts := time.Date(2024, 3, 2, 17, 45, 0, 0, time.UTC)
	next := NextUTCMidnight(ts)
	want := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}
