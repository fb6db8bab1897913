package scheduling

import (
	"sort"
	"time"
)

// minutesOfDay converts HH:MM to minutes since midnight, or -1 when the
// string does not parse.
func minutesOfDay(hhmm string) int {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// sortSlotsChronologically orders slots by date then time.
func sortSlotsChronologically(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		return minutesOfDay(slots[i].Time) < minutesOfDay(slots[j].Time)
	})
}

// resolveSpecificTime applies the shared slot-search policy: report whether
// the exact requested time is free on the requested day and, if not, pick
// the time-distance-ordered nearest free slot. Candidates on the requested
// day always win over other days; other days are considered only when the
// requested day has zero capacity.
//
// daySlots holds the requested day's openings; laterSlots holds openings on
// subsequent days inside the search window, already in chronological order.
func resolveSpecificTime(requested string, daySlots []Slot, laterSlots []Slot) *SpecificTimeCheck {
	check := &SpecificTimeCheck{Requested: requested}

	want := minutesOfDay(requested)
	if want < 0 {
		return check
	}

	var nearest *Slot
	nearestDist := -1
	for i := range daySlots {
		got := minutesOfDay(daySlots[i].Time)
		if got == want {
			check.IsAvailable = true
			return check
		}
		dist := got - want
		if dist < 0 {
			dist = -dist
		}
		if nearestDist < 0 || dist < nearestDist {
			nearestDist = dist
			nearest = &daySlots[i]
		}
	}

	if nearest != nil {
		check.NearestSlot = nearest
		check.NearestOnSame = true
		return check
	}

	// Requested day has zero capacity; fall back to the first opening on a
	// later day within the window.
	if len(laterSlots) > 0 {
		check.NearestSlot = &laterSlots[0]
	}
	return check
}

// buildAvailabilityResult assembles the adapter-independent result shape for
// a query, given the per-day openings the backend reported.
func buildAvailabilityResult(q AvailabilityQuery, byDate map[string][]Slot) *AvailabilityResult {
	daySlots := append([]Slot(nil), byDate[q.Date]...)
	sortSlotsChronologically(daySlots)

	result := &AvailabilityResult{Date: q.Date, Slots: daySlots}
	if q.Time == "" {
		return result
	}

	var later []Slot
	for date, slots := range byDate {
		if date > q.Date {
			later = append(later, slots...)
		}
	}
	sortSlotsChronologically(later)

	result.SpecificTimeCheck = resolveSpecificTime(q.Time, daySlots, later)
	return result
}
