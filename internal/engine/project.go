package engine

import "time"

// ProjectDay re-expresses slots in projectionTZ and clips them to the
// calendar day containing dayStart in that zone. The day runs from its first
// midnight to the next midnight, so DST transition days are genuinely 23 or
// 25 hours long.
//
// A slot is kept when its interval [Start, End) intersects the day. Slots
// starting before the day are trimmed to begin at midnight with a shortened
// duration; slots running past the day end are trimmed to stop at the next
// midnight. Trimming produces new Slot values; Key is preserved so a clipped
// view still identifies the run it was derived from. Slots trimmed to zero
// length are dropped.
func ProjectDay(slots []Slot, dayStart time.Time, projectionTZ string) ([]Slot, error) {
	loc, err := LoadTimezone(projectionTZ)
	if err != nil {
		return nil, err
	}

	d := dayStart.In(loc)
	day0 := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	dayEnd := day0.AddDate(0, 0, 1)

	var out []Slot
	for _, s := range slots {
		start := s.Start.In(loc)
		end := s.End().In(loc)
		if !end.After(day0) || !start.Before(dayEnd) {
			continue
		}

		clipped := s
		clipped.Start = start
		if start.Before(day0) {
			trimmed := int(day0.Sub(start) / time.Minute)
			clipped.Start = day0
			clipped.DurationMinutes = s.DurationMinutes - trimmed
		}
		if end.After(dayEnd) {
			clipped.DurationMinutes = int(dayEnd.Sub(clipped.Start) / time.Minute)
		}
		if clipped.DurationMinutes <= 0 {
			continue
		}
		out = append(out, clipped)
	}
	return out, nil
}
