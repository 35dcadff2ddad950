// Package engine computes when cron schedules run and where their runs
// overlap.
//
// # Overview
//
// The engine is the pure core of cronlens. Given an immutable snapshot of
// schedules it can:
//
//   - evaluate each 5-field cron expression over one calendar month in a
//     runner timezone (EvaluateMonth), producing time slots;
//   - re-express those slots in a projection timezone and clip them to a
//     single day (ProjectDay);
//   - split a day's slots into per-hour segments with maximal, transitively
//     merged collision regions (SegmentDay);
//   - report which schedules are live at an instant (RunningScheduleIDs).
//
// All operations are synchronous and side-effect free. Slots and segments
// are value types: projection and clipping return new values rather than
// mutating inputs, so one month evaluation can be reused across many
// projected days.
//
// # Timezones
//
// Cron fields are always interpreted in the runner timezone. The projection
// timezone only changes how an instant is displayed and which day bucket it
// lands in; absolute instants never move. Evaluation is DST-aware: wall
// times inside a spring-forward gap produce no occurrences, and a repeated
// fall-back hour produces at most the genuinely repeated instants.
//
// # Failure model
//
// Every failure is input-validation class (ErrInvalidExpression,
// ErrInvalidDuration, ErrUnknownTimezone). A bad schedule degrades to "no
// occurrences" plus a ScheduleError diagnostic and never aborts evaluation
// of the other schedules in the batch.
package engine
