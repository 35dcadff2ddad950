package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// Engine materializes slots for schedule sets. The zero value works without
// caching; New enables a small memo cache keyed by (schedule fingerprint,
// month, timezone).
type Engine struct {
	mu         sync.Mutex
	memo       map[memoKey]monthResult
	order      []memoKey
	maxEntries int
}

type memoKey struct {
	fingerprint uint64
	year        int
	month       time.Month
	timezone    string
}

type monthResult struct {
	slots []Slot
	errs  []ScheduleError
}

// New returns an Engine with a memo cache of at most maxCacheEntries
// months. maxCacheEntries <= 0 disables caching.
func New(maxCacheEntries int) *Engine {
	e := &Engine{maxEntries: maxCacheEntries}
	if maxCacheEntries > 0 {
		e.memo = make(map[memoKey]monthResult, maxCacheEntries)
	}
	return e
}

// EvaluateMonth materializes one Slot per occurrence of every active
// schedule within ref's calendar month, interpreted in the runner timezone
// tz. Inactive schedules are skipped. A schedule with an invalid expression
// or out-of-range duration contributes a ScheduleError diagnostic and no
// slots; the rest of the batch is unaffected.
//
// The result is sorted ascending by start instant; slots with equal starts
// keep (schedule insertion order, occurrence order). Returned slices must be
// treated as immutable: they may be served again from the memo cache.
func (e *Engine) EvaluateMonth(schedules []Schedule, ref time.Time, tz string) ([]Slot, []ScheduleError, error) {
	loc, err := LoadTimezone(tz)
	if err != nil {
		return nil, nil, err
	}

	start, end := MonthWindow(ref, loc)

	key, memoable := e.memoKeyFor(schedules, start, tz)
	if memoable {
		if res, ok := e.lookup(key); ok {
			return res.slots, res.errs, nil
		}
	}

	var slots []Slot
	var errs []ScheduleError
	for _, sc := range schedules {
		if !sc.IsActive {
			continue
		}
		if sc.DurationMinutes < MinDurationMinutes || sc.DurationMinutes > MaxDurationMinutes {
			errs = append(errs, ScheduleError{
				ScheduleID: sc.ID,
				Err:        fmt.Errorf("%w: %d minutes", ErrInvalidDuration, sc.DurationMinutes),
			})
			continue
		}
		sched, err := ParseExpression(sc.Expression)
		if err != nil {
			errs = append(errs, ScheduleError{ScheduleID: sc.ID, Err: err})
			continue
		}
		for _, occ := range occurrencesBetween(sched, start, end) {
			slots = append(slots, Slot{
				ScheduleID:      sc.ID,
				ScheduleName:    sc.Name,
				Start:           occ,
				DurationMinutes: sc.DurationMinutes,
				Key:             slotKey(sc.ID, occ),
			})
		}
	}

	// Stable: equal starts keep schedule insertion then occurrence order,
	// which collision attribution and first-touch consumers rely on.
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

	if memoable {
		e.store(key, monthResult{slots: slots, errs: errs})
	}
	return slots, errs, nil
}

func (e *Engine) memoKeyFor(schedules []Schedule, monthStart time.Time, tz string) (memoKey, bool) {
	if e == nil || e.maxEntries <= 0 {
		return memoKey{}, false
	}
	fp, err := hashstructure.Hash(schedules, hashstructure.FormatV2, nil)
	if err != nil {
		return memoKey{}, false
	}
	return memoKey{
		fingerprint: fp,
		year:        monthStart.Year(),
		month:       monthStart.Month(),
		timezone:    tz,
	}, true
}

func (e *Engine) lookup(key memoKey) (monthResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.memo[key]
	return res, ok
}

func (e *Engine) store(key memoKey, res monthResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.memo[key]; exists {
		e.memo[key] = res
		return
	}
	// FIFO eviction; the cache is tiny and recomputation is cheap.
	for len(e.order) >= e.maxEntries {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.memo, oldest)
	}
	e.memo[key] = res
	e.order = append(e.order, key)
}
