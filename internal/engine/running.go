package engine

import "time"

// RunningScheduleIDs reports which schedules have a slot covering now, using
// the half-open interval [Start, End): a slot is running at its start
// instant and no longer running at its end instant.
func RunningScheduleIDs(slots []Slot, now time.Time) map[string]struct{} {
	running := make(map[string]struct{})
	for _, s := range slots {
		if !now.Before(s.Start) && now.Before(s.End()) {
			running[s.ScheduleID] = struct{}{}
		}
	}
	return running
}
