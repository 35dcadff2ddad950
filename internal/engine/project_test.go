package engine

import (
	"errors"
	"testing"
	"time"
)

func TestProjectDayClipping(t *testing.T) {
	t.Parallel()
	// A run at 23:00 lasting 3 hours spans midnight.
	slot := Slot{
		ScheduleID:      "a",
		ScheduleName:    "night",
		Start:           time.Date(2025, time.March, 10, 23, 0, 0, 0, time.UTC),
		DurationMinutes: 180,
		Key:             "a-key",
	}

	day1 := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	got, err := ProjectDay([]Slot{slot}, day1, "UTC")
	if err != nil {
		t.Fatalf("ProjectDay error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("day 1 slots = %d, want 1", len(got))
	}
	if got[0].DurationMinutes != 60 {
		t.Fatalf("day 1 duration = %d, want 60", got[0].DurationMinutes)
	}
	if !got[0].Start.Equal(slot.Start) {
		t.Fatalf("day 1 start moved: %v", got[0].Start)
	}
	if got[0].Key != "a-key" {
		t.Fatalf("clipping changed key: %q", got[0].Key)
	}

	day2 := day1.AddDate(0, 0, 1)
	got, err = ProjectDay([]Slot{slot}, day2, "UTC")
	if err != nil {
		t.Fatalf("ProjectDay error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("day 2 slots = %d, want 1", len(got))
	}
	if got[0].DurationMinutes != 120 {
		t.Fatalf("day 2 duration = %d, want 120", got[0].DurationMinutes)
	}
	if !got[0].Start.Equal(time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day 2 start = %v, want midnight", got[0].Start)
	}
}

func TestProjectDayTimezoneShiftsDayBucket(t *testing.T) {
	t.Parallel()
	// 23:30 UTC on the 10th is 00:30 on the 11th in Madrid (CET+1 in March,
	// pre-transition).
	slot := Slot{
		ScheduleID:      "a",
		ScheduleName:    "job",
		Start:           time.Date(2025, time.March, 10, 23, 30, 0, 0, time.UTC),
		DurationMinutes: 20,
		Key:             "k",
	}
	madrid := mustZone(t, "Europe/Madrid")

	got, err := ProjectDay([]Slot{slot}, time.Date(2025, time.March, 10, 0, 0, 0, 0, madrid), "Europe/Madrid")
	if err != nil {
		t.Fatalf("ProjectDay error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("slot appeared on wrong local day: %v", got)
	}

	got, err = ProjectDay([]Slot{slot}, time.Date(2025, time.March, 11, 0, 0, 0, 0, madrid), "Europe/Madrid")
	if err != nil {
		t.Fatalf("ProjectDay error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("slots = %d, want 1", len(got))
	}
	if got[0].Start.Hour() != 0 || got[0].Start.Minute() != 30 {
		t.Fatalf("local start = %v, want 00:30", got[0].Start)
	}
	if got[0].DurationMinutes != 20 {
		t.Fatalf("duration changed: %d", got[0].DurationMinutes)
	}
}

func TestProjectDayExactBoundaryExcluded(t *testing.T) {
	t.Parallel()
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	slots := []Slot{
		// Ends exactly at the day's midnight: not part of the day.
		{ScheduleID: "ends", Start: day.Add(-30 * time.Minute), DurationMinutes: 30, Key: "e"},
		// Starts exactly at the next midnight: not part of the day.
		{ScheduleID: "starts", Start: day.AddDate(0, 0, 1), DurationMinutes: 30, Key: "s"},
		// Starts exactly at the day's midnight: included.
		{ScheduleID: "mid", Start: day, DurationMinutes: 30, Key: "m"},
	}

	got, err := ProjectDay(slots, day, "UTC")
	if err != nil {
		t.Fatalf("ProjectDay error: %v", err)
	}
	if len(got) != 1 || got[0].ScheduleID != "mid" {
		t.Fatalf("slots = %v, want only the midnight starter", got)
	}
}

func TestProjectDayDSTShortDay(t *testing.T) {
	t.Parallel()
	madrid := mustZone(t, "Europe/Madrid")
	// Madrid 2025-03-30 is 23 hours long (02:00 jumps to 03:00). A slot
	// covering the whole civil day must clip to 23 hours, not 24.
	slot := Slot{
		ScheduleID:      "all-day",
		Start:           time.Date(2025, time.March, 29, 12, 0, 0, 0, madrid),
		DurationMinutes: 3 * 24 * 60,
		Key:             "d",
	}

	got, err := ProjectDay([]Slot{slot}, time.Date(2025, time.March, 30, 0, 0, 0, 0, madrid), "Europe/Madrid")
	if err != nil {
		t.Fatalf("ProjectDay error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("slots = %d, want 1", len(got))
	}
	if got[0].DurationMinutes != 23*60 {
		t.Fatalf("short day duration = %d, want %d", got[0].DurationMinutes, 23*60)
	}
}

func TestProjectDayUnknownTimezone(t *testing.T) {
	t.Parallel()
	_, err := ProjectDay(nil, time.Now(), "Not/AZone")
	if !errors.Is(err, ErrUnknownTimezone) {
		t.Fatalf("error = %v, want ErrUnknownTimezone", err)
	}
}
