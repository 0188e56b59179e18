package models

import "time"

// DefaultGranularity is the fixed minimum bookable duration.
const DefaultGranularity = 15 * time.Minute

// DateLayout is the canonical calendar date format used throughout the engine.
const DateLayout = "2006-01-02"

// SlotState is the client-observed lifecycle state of a time slot.
//
// Pending states are provisional: they record a local optimistic mutation that
// has not yet been confirmed by a server refresh. A pending state is only ever
// resolved from refetched server data, never by trusting the local write.
type SlotState string

const (
	SlotUnbooked      SlotState = "unbooked"
	SlotPendingCommit SlotState = "pending_commit"
	SlotBooked        SlotState = "booked"
	SlotPendingCancel SlotState = "pending_cancel"
)

// Pending reports whether the state is provisional.
func (s SlotState) Pending() bool {
	return s == SlotPendingCommit || s == SlotPendingCancel
}

// Occupied reports whether the slot should be treated as taken for display.
// A slot pending cancellation is still occupied until the server confirms.
func (s SlotState) Occupied() bool {
	return s == SlotBooked || s == SlotPendingCancel
}

// Resource is a bookable staff member from the upstream directory.
type Resource struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ResourceRef identifies who a slot is booked by.
type ResourceRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// TimeSlot is one candidate window of a day sheet. Start and end are
// wall-clock "HH:MM" strings, resource-local.
type TimeSlot struct {
	ID        string       `json:"id"`
	Date      string       `json:"date"`
	StartTime string       `json:"start_time"`
	EndTime   string       `json:"end_time"`
	State     SlotState    `json:"state"`
	BookedBy  *ResourceRef `json:"booked_by,omitempty"`
}

// AvailabilityWindow is a sub-interval of one day during which a resource may
// be booked, scoped to a single (resource, date) pair. Windows from the feed
// may overlap or duplicate each other; the engine never assumes merged input.
type AvailabilityWindow struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Valid reports whether the window has parseable boundaries with start < end.
// A "00:00" end is read as end of day unless the start is also "00:00".
func (w AvailabilityWindow) Valid() bool {
	start, err := MinutesOfDay(w.StartTime)
	if err != nil {
		return false
	}
	end, err := MinutesOfDay(w.EndTime)
	if err != nil {
		return false
	}
	if end == 0 && start != 0 {
		end = MinutesPerDay
	}
	return start < end
}

// BookingRecord is a committed booking as projected from the upstream feed.
// Records are never edited in place; a change is a cancel followed by a new
// booking.
type BookingRecord struct {
	ID            string `json:"id"`
	LeadID        string `json:"lead_id"`
	ResourceID    string `json:"resource_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CreatedBy     string `json:"created_by,omitempty"`
	ResourceName  string `json:"resource_name,omitempty"`
	ResourceEmail string `json:"resource_email,omitempty"`
}

// Covers reports whether the record occupies the minute given by a slot start.
// Uses half-open interval [start, end) semantics.
func (b BookingRecord) Covers(slotStart string) bool {
	s, err := MinutesOfDay(b.StartTime)
	if err != nil {
		return false
	}
	e, err := MinutesOfDay(b.EndTime)
	if err != nil {
		return false
	}
	if e == 0 && s != 0 {
		e = MinutesPerDay // "00:00" as an end means end of day
	}
	m, err := MinutesOfDay(slotStart)
	if err != nil {
		return false
	}
	return m >= s && m < e
}
