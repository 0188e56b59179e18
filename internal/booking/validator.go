// Package booking implements the booking-conflict engine: request validation,
// the slot lifecycle state machine, the booked-slots read model and the
// commit/cancel flows against the upstream CRM.
package booking

import (
	"time"

	"leadbook/internal/models"
)

// IsBookable reports whether the requested [start, end] range is fully
// contained in at least one availability window. Containment is tested per
// window (logical OR), not against the union of windows: a request spanning
// two adjacent windows is not bookable.
func IsBookable(start, end string, windows []models.AvailabilityWindow) bool {
	reqStart, reqEnd, ok := rangeMinutes(start, end)
	if !ok {
		return false
	}

	for _, w := range windows {
		wStart, wEnd, ok := rangeMinutes(w.StartTime, w.EndTime)
		if !ok {
			continue
		}
		if reqStart >= wStart && reqEnd <= wEnd {
			return true
		}
	}
	return false
}

// ValidDuration reports whether [start, end] is a well-formed range whose
// duration is a positive multiple of the granularity.
func ValidDuration(start, end string, granularity time.Duration) bool {
	g := int(granularity / time.Minute)
	if g <= 0 {
		return false
	}
	s, e, ok := rangeMinutes(start, end)
	if !ok {
		return false
	}
	d := e - s
	return d > 0 && d%g == 0
}

// rangeMinutes converts a (start, end) pair to minutes since midnight.
// A "00:00" end is read as end of day (1440) unless the start is also
// "00:00"; bare wall-clock strings cannot express a midnight crossing any
// other way. Returns ok=false when either boundary is unparsable or the
// range is inverted.
func rangeMinutes(start, end string) (int, int, bool) {
	s, err := models.MinutesOfDay(start)
	if err != nil {
		return 0, 0, false
	}
	e, err := models.MinutesOfDay(end)
	if err != nil {
		return 0, 0, false
	}
	if e == 0 && s != 0 {
		e = models.MinutesPerDay
	}
	if s >= e {
		return 0, 0, false
	}
	return s, e, true
}
