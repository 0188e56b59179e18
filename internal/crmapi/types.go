package crmapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexString decodes a JSON value that may arrive as a string or a number.
// The upstream CRM is not consistent about identifier types.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// RawWindow is one availability entry as the feed sends it. Boundary values
// may appear under several key variants and may be absolute timestamps or
// wall-clock strings; internal/availability normalizes them.
type RawWindow struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	StartSnake string `json:"start_time"`
	EndSnake   string `json:"end_time"`
	StartCamel string `json:"startTime"`
	EndCamel   string `json:"endTime"`
}

// Bounds coalesces the key variants into one (start, end) pair. Empty strings
// mean the boundary is missing.
func (w RawWindow) Bounds() (start, end string) {
	start = firstNonEmpty(w.Start, w.StartSnake, w.StartCamel)
	end = firstNonEmpty(w.End, w.EndSnake, w.EndCamel)
	return start, end
}

// AvailabilityResponse is the envelope of the availability feed. The raw
// window list may appear under any of these keys depending on the upstream
// version.
type AvailabilityResponse struct {
	AvailableSlots []RawWindow `json:"available_slots"`
	AvailableCamel []RawWindow `json:"availableSlots"`
	Slots          []RawWindow `json:"slots"`
	Data           []RawWindow `json:"data"`
}

// Windows returns the first populated window list in the envelope.
func (r *AvailabilityResponse) Windows() []RawWindow {
	for _, list := range [][]RawWindow{r.AvailableSlots, r.AvailableCamel, r.Slots, r.Data} {
		if len(list) > 0 {
			return list
		}
	}
	return nil
}

// RawBooking is one booking record as the feed sends it, with every known
// field-name variant declared. internal/booking coalesces it into a canonical
// BookingRecord.
type RawBooking struct {
	ID            FlexString `json:"id"`
	LeadID        FlexString `json:"lead_id"`
	LeadIDCamel   FlexString `json:"leadId"`
	Date          string     `json:"date"`
	StartTime     string     `json:"start_time"`
	StartCamel    string     `json:"startTime"`
	EndTime       string     `json:"end_time"`
	EndCamel      string     `json:"endTime"`
	ResourceID    FlexString `json:"resource_id"`
	UserID        FlexString `json:"user_id"`
	ResourceName  string     `json:"resource_name"`
	ResourceEmail string     `json:"resource_email"`
	CreatedBy     string     `json:"created_by"`
}

// BookingsQuery filters the bookings listing. Zero-value fields are omitted.
type BookingsQuery struct {
	ResourceID string
	LeadID     string
	Date       string
}

// CheckRequest asks whether one exact range is available.
type CheckRequest struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

// CheckResponse is the advisory pre-check result.
type CheckResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// BookRequest commits a booking upstream.
type BookRequest struct {
	LeadID     string `json:"lead_id"`
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	CreatedBy  string `json:"created_by,omitempty"`
}

// APIError is a non-2xx response from the upstream CRM. The message is what
// conflict classification operates on.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("crm api: http %d", e.Status)
}

// Resource is a directory entry as the feed sends it.
type Resource struct {
	ID    FlexString `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
