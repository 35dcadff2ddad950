package engine

import (
	"errors"
	"fmt"
	"time"
)

// Duration bounds for a schedule, in minutes. The upper bound is 28 days.
const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 28 * 24 * 60
)

var (
	// ErrInvalidExpression marks a cron string that does not parse into five
	// valid fields.
	ErrInvalidExpression = errors.New("invalid cron expression")

	// ErrInvalidDuration marks a duration outside [MinDurationMinutes, MaxDurationMinutes].
	ErrInvalidDuration = errors.New("duration out of range")

	// ErrUnknownTimezone marks an IANA zone name the calendar library cannot
	// resolve.
	ErrUnknownTimezone = errors.New("unknown timezone")
)

// Schedule is an immutable snapshot of one recurring job definition.
//
// The engine treats the snapshot as read-only per call; callers own the
// schedule list and may mutate their copies between calls.
type Schedule struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Expression      string `json:"expression"`
	DurationMinutes int    `json:"duration_minutes"`
	IsActive        bool   `json:"is_active"`

	// Color is display bookkeeping owned by the caller. The engine never
	// reads it, and it does not participate in memo fingerprints.
	Color string `json:"color,omitempty" hash:"ignore"`
}

// Slot is one run of a schedule: a timezone-aware start instant plus a
// duration. Its effective interval is [Start, Start+DurationMinutes).
type Slot struct {
	ScheduleID      string    `json:"schedule_id"`
	ScheduleName    string    `json:"schedule_name"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`

	// Key deterministically identifies (ScheduleID, original Start). It is
	// preserved across projection/clipping so a clipped view keeps the
	// identity of the slot it was derived from.
	Key string `json:"key"`
}

// End returns the exclusive end instant of the slot.
func (s Slot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

func slotKey(scheduleID string, start time.Time) string {
	return fmt.Sprintf("%s-%d", scheduleID, start.UnixMilli())
}

// SlotRef identifies a contributing slot inside collision attribution lists.
type SlotRef struct {
	ScheduleName string    `json:"schedule_name"`
	Start        time.Time `json:"start"`
}

// Segment is a sub-interval of a slot confined to one hour bucket (0-23) of
// one day, possibly further split by collision detection. Offsets and
// durations are seconds relative to the owning hour.
type Segment struct {
	Slot               Slot      `json:"slot"`
	HourBucket         int       `json:"hour_bucket"`
	StartOffsetSeconds int       `json:"start_offset_seconds"`
	DurationSeconds    int       `json:"duration_seconds"`
	IsCollision        bool      `json:"is_collision"`
	CollidingWith      []SlotRef `json:"colliding_with,omitempty"`
}

// ScheduleError reports a per-schedule evaluation failure. A batch call
// returns these as diagnostics instead of aborting the other schedules.
type ScheduleError struct {
	ScheduleID string `json:"schedule_id"`
	Err        error  `json:"-"`
}

func (e ScheduleError) Error() string {
	return fmt.Sprintf("schedule %s: %v", e.ScheduleID, e.Err)
}

func (e ScheduleError) Unwrap() error { return e.Err }
