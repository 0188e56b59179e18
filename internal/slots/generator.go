// Package slots produces candidate booking windows for a calendar date.
package slots

import (
	"fmt"
	"time"

	"leadbook/internal/models"
)

// Generate produces the ordered sequence of candidate slots covering
// [startBound, endBound) on the given date. Slots are contiguous,
// non-overlapping and each exactly one granularity long; a trailing partial
// slot that would cross the end bound is dropped. Pure and deterministic.
func Generate(date, startBound, endBound string, granularity time.Duration) ([]models.TimeSlot, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("granularity must be positive, got %s", granularity)
	}
	step := int(granularity / time.Minute)
	if step <= 0 || granularity%time.Minute != 0 {
		return nil, fmt.Errorf("granularity must be a whole number of minutes, got %s", granularity)
	}

	if _, err := models.ParseDate(date); err != nil {
		return nil, err
	}

	start, err := models.MinutesOfDay(startBound)
	if err != nil {
		return nil, fmt.Errorf("parse start bound: %w", err)
	}
	end, err := models.MinutesOfDay(endBound)
	if err != nil {
		return nil, fmt.Errorf("parse end bound: %w", err)
	}
	if end == 0 && start != 0 {
		end = models.MinutesPerDay // "00:00" as an end bound means end of day
	}
	if start >= end {
		return nil, fmt.Errorf("start bound %s is not before end bound %s", startBound, endBound)
	}

	var out []models.TimeSlot
	for cursor := start; cursor+step <= end; cursor += step {
		slotStart := models.FormatMinutes(cursor)
		out = append(out, models.TimeSlot{
			ID:        date + "-" + slotStart,
			Date:      date,
			StartTime: slotStart,
			// Wrap so a midnight-ending slot reads "00:00", the engine's
			// end-of-day convention.
			EndTime: models.FormatMinutes((cursor + step) % models.MinutesPerDay),
			State:   models.SlotUnbooked,
		})
	}
	return out, nil
}
