package engine

import "sort"

const secondsPerHour = 3600

// bar is one slot's footprint inside a single hour bucket, in seconds
// relative to that hour.
type bar struct {
	slot         Slot
	hour         int
	startSeconds int
	endSeconds   int
}

// collisionRegion is a maximal overlapping span inside one hour, with every
// slot that touches it.
type collisionRegion struct {
	start int
	end   int
	slots []SlotRef
}

// SegmentDay splits a day's (already projected and clipped) slots into
// per-hour segments and marks where schedules collide.
//
// Every slot is first cut at hour boundaries into bars. Within each hour,
// pairwise overlaps are merged into maximal collision regions: overlap
// regions that themselves overlap or touch coalesce into one region
// attributed to every contributing slot, while overlaps separated by clear
// air stay distinct.
// Each bar is then subtracted against the regions it belongs to, yielding
// plain segments for its uncontested parts and collision segments, clamped
// to the bar's own bounds, for the contested ones. The union of one slot's
// segments therefore reconstructs exactly its clipped interval.
//
// Two overlapping runs of the same schedule collide like any other pair;
// attribution is deduplicated by (schedule name, occurrence start), so each
// occurrence appears once in CollidingWith.
//
// Segments come back sorted by (hour, start offset).
func SegmentDay(daySlots []Slot) []Segment {
	bars := splitIntoBars(daySlots)

	byHour := make(map[int][]bar)
	for _, b := range bars {
		byHour[b.hour] = append(byHour[b.hour], b)
	}

	var out []Segment
	for _, hourBars := range byHour {
		regions := detectCollisions(hourBars)
		for _, b := range hourBars {
			out = append(out, subtractRegions(b, regions)...)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].HourBucket != out[j].HourBucket {
			return out[i].HourBucket < out[j].HourBucket
		}
		if out[i].StartOffsetSeconds != out[j].StartOffsetSeconds {
			return out[i].StartOffsetSeconds < out[j].StartOffsetSeconds
		}
		return out[i].Slot.Key < out[j].Slot.Key
	})
	return out
}

// splitIntoBars cuts each slot at hour boundaries. A bar never extends past
// its hour, and anything past hour 23 is dropped to fit the 24-row day grid.
// On a fall-back day the projected day lasts 25 wall-clock hours, so a slot
// clipped against such a day can lose its final hour here; those segments
// have no row to land on.
func splitIntoBars(slots []Slot) []bar {
	var bars []bar
	for _, s := range slots {
		remaining := s.DurationMinutes * 60
		hour := s.Start.Hour()
		offset := s.Start.Minute()*60 + s.Start.Second()
		for remaining > 0 && hour < 24 {
			span := secondsPerHour - offset
			if span > remaining {
				span = remaining
			}
			bars = append(bars, bar{
				slot:         s,
				hour:         hour,
				startSeconds: offset,
				endSeconds:   offset + span,
			})
			remaining -= span
			hour++
			offset = 0
		}
	}
	return bars
}

// detectCollisions finds maximal overlap regions among the bars of one hour.
// Every distinct pair of bars counts, including two occurrences of the same
// schedule.
func detectCollisions(hourBars []bar) []collisionRegion {
	sorted := make([]bar, len(hourBars))
	copy(sorted, hourBars)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].startSeconds != sorted[j].startSeconds {
			return sorted[i].startSeconds < sorted[j].startSeconds
		}
		return sorted[i].slot.Key < sorted[j].slot.Key
	})

	var regions []collisionRegion
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if b.startSeconds >= a.endSeconds {
				break
			}
			// A slot duplicated in the input must not overlap itself.
			if a.slot.Key == b.slot.Key {
				continue
			}
			start := b.startSeconds
			end := a.endSeconds
			if b.endSeconds < end {
				end = b.endSeconds
			}
			regions = addRegion(regions, collisionRegion{
				start: start,
				end:   end,
				slots: []SlotRef{refOf(a.slot), refOf(b.slot)},
			})
		}
	}
	return regions
}

// addRegion inserts a region and re-normalizes the whole list so regions
// that overlap or touch always end up merged, with deduplicated
// contributors. Re-normalizing after every insert keeps each region maximal
// no matter what order pairwise overlaps are discovered in.
func addRegion(regions []collisionRegion, r collisionRegion) []collisionRegion {
	regions = append(regions, r)
	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })

	merged := regions[:1]
	for _, next := range regions[1:] {
		last := &merged[len(merged)-1]
		if next.start <= last.end {
			if next.end > last.end {
				last.end = next.end
			}
			last.slots = mergeRefs(last.slots, next.slots)
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

func mergeRefs(dst, src []SlotRef) []SlotRef {
	for _, ref := range src {
		if !containsRef(dst, ref) {
			dst = append(dst, ref)
		}
	}
	return dst
}

func containsRef(refs []SlotRef, ref SlotRef) bool {
	for _, r := range refs {
		if r.ScheduleName == ref.ScheduleName && r.Start.Equal(ref.Start) {
			return true
		}
	}
	return false
}

func refOf(s Slot) SlotRef {
	return SlotRef{ScheduleName: s.ScheduleName, Start: s.Start}
}

// subtractRegions splits one bar into plain and collision segments. Only
// regions that intersect the bar and list the bar's own slot apply; each
// applied region is clamped to the bar so collision segments never spill
// past the interval the slot actually occupies.
func subtractRegions(b bar, regions []collisionRegion) []Segment {
	var applicable []collisionRegion
	for _, r := range regions {
		if r.end <= b.startSeconds || r.start >= b.endSeconds {
			continue
		}
		if !containsRef(r.slots, refOf(b.slot)) {
			continue
		}
		clamped := r
		if clamped.start < b.startSeconds {
			clamped.start = b.startSeconds
		}
		if clamped.end > b.endSeconds {
			clamped.end = b.endSeconds
		}
		applicable = append(applicable, clamped)
	}
	sort.Slice(applicable, func(i, j int) bool { return applicable[i].start < applicable[j].start })

	var segs []Segment
	cursor := b.startSeconds
	for _, r := range applicable {
		if r.start > cursor {
			segs = append(segs, plainSegment(b, cursor, r.start))
		}
		refs := make([]SlotRef, len(r.slots))
		copy(refs, r.slots)
		segs = append(segs, Segment{
			Slot:               b.slot,
			HourBucket:         b.hour,
			StartOffsetSeconds: r.start,
			DurationSeconds:    r.end - r.start,
			IsCollision:        true,
			CollidingWith:      refs,
		})
		cursor = r.end
	}
	if cursor < b.endSeconds {
		segs = append(segs, plainSegment(b, cursor, b.endSeconds))
	}
	return segs
}

func plainSegment(b bar, start, end int) Segment {
	return Segment{
		Slot:               b.slot,
		HourBucket:         b.hour,
		StartOffsetSeconds: start,
		DurationSeconds:    end - start,
	}
}
