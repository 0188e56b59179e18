package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leadbook/internal/booking"
	"leadbook/internal/crmapi"
	"leadbook/internal/metrics"
	"leadbook/internal/models"
)

// SlotDTO is one day-sheet slot as the API presents it.
type SlotDTO struct {
	ID        string             `json:"id"`
	StartTime string             `json:"start_time"`
	EndTime   string             `json:"end_time"`
	State     models.SlotState   `json:"state"`
	Bookable  bool               `json:"bookable"`
	BookedBy  *models.ResourceRef `json:"booked_by,omitempty"`
}

// DaySheetResponse is the response for GET /api/day-sheet.
type DaySheetResponse struct {
	ResourceID string                      `json:"resource_id"`
	Date       string                      `json:"date"`
	Windows    []models.AvailabilityWindow `json:"windows"`
	Slots      []SlotDTO                   `json:"slots"`
}

// handleDaySheet returns the annotated slot grid for a resource and date.
// GET /api/day-sheet?resource_id=&date=YYYY-MM-DD&tz_offset=minutes
func (s *Server) handleDaySheet(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("day_sheet")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resourceID := r.URL.Query().Get("resource_id")
	date := r.URL.Query().Get("date")
	if resourceID == "" || date == "" {
		writeError(w, http.StatusBadRequest, "resource_id and date are required")
		return
	}
	if _, err := models.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	offset, err := parseOffset(r.URL.Query().Get("tz_offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots, windows, err := s.svc.DaySheet(r.Context(), resourceID, date, offset)
	if err != nil {
		s.logger.Error().Err(err).Str("resource_id", resourceID).Str("date", date).Msg("day sheet failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := DaySheetResponse{ResourceID: resourceID, Date: date, Windows: windows, Slots: make([]SlotDTO, len(slots))}
	for i, sl := range slots {
		resp.Slots[i] = SlotDTO{
			ID:        sl.ID,
			StartTime: sl.StartTime,
			EndTime:   sl.EndTime,
			State:     sl.State,
			Bookable:  sl.State == models.SlotUnbooked && booking.IsBookable(sl.StartTime, sl.EndTime, windows),
			BookedBy:  sl.BookedBy,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// BookRequestDTO is the request body for POST /api/bookings.
type BookRequestDTO struct {
	LeadID     string `json:"lead_id"`
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`       // Format: YYYY-MM-DD
	StartTime  string `json:"start_time"` // Format: HH:MM
	EndTime    string `json:"end_time"`   // Format: HH:MM
	CreatedBy  string `json:"created_by"`
	TZOffset   int    `json:"tz_offset"`
}

func (req *BookRequestDTO) validate() error {
	if req.LeadID == "" || req.ResourceID == "" {
		return fmt.Errorf("lead_id and resource_id are required")
	}
	if _, err := models.ParseDate(req.Date); err != nil {
		return fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	if _, err := models.MinutesOfDay(req.StartTime); err != nil {
		return fmt.Errorf("invalid start_time; expected HH:MM")
	}
	if _, err := models.MinutesOfDay(req.EndTime); err != nil {
		return fmt.Errorf("invalid end_time; expected HH:MM")
	}
	return nil
}

// handleBookings lists bookings or commits a new one.
// GET  /api/bookings?lead_id=  |  ?resource_id=&date=
// POST /api/bookings
func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBookings(w, r)
	case http.MethodPost:
		s.commitBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_list")

	leadID := r.URL.Query().Get("lead_id")
	resourceID := r.URL.Query().Get("resource_id")
	date := r.URL.Query().Get("date")

	switch {
	case leadID != "":
		records, err := s.svc.LeadBookings(r.Context(), leadID)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": records})
	case resourceID != "" && date != "":
		if _, err := models.ParseDate(date); err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		// Day-scope listing serves the active booking flow; go through the
		// day sheet so the projection is refreshed first.
		if _, _, err := s.svc.DaySheet(r.Context(), resourceID, date, 0); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": s.svc.Store().ForDay(resourceID, date)})
	default:
		writeError(w, http.StatusBadRequest, "either lead_id or resource_id+date is required")
	}
}

func (s *Server) commitBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_commit")

	var req BookRequestDTO
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.svc.Commit(r.Context(), booking.BookRequest{
		LeadID:              req.LeadID,
		ResourceID:          req.ResourceID,
		Date:                req.Date,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		CreatedBy:           req.CreatedBy,
		ViewerOffsetMinutes: req.TZOffset,
	})
	if err != nil {
		status, msg := commitErrorStatus(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// handleBookingByID cancels a booking.
// DELETE /api/bookings/{id}?resource_id=&date=&tz_offset=
func (s *Server) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_cancel")
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	bookingID := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	if bookingID == "" || strings.Contains(bookingID, "/") {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}
	offset, err := parseOffset(r.URL.Query().Get("tz_offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.svc.Cancel(r.Context(), booking.CancelRequest{
		BookingID:           bookingID,
		ResourceID:          r.URL.Query().Get("resource_id"),
		Date:                r.URL.Query().Get("date"),
		ViewerOffsetMinutes: offset,
		Actor:               r.Header.Get("x-operator"),
	})
	if err != nil {
		if errors.Is(err, booking.ErrOperationInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleAuditExport streams the audit trail as an xlsx workbook.
// GET /api/audit/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("audit_export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.auditLog == nil {
		writeError(w, http.StatusNotFound, "audit trail is disabled")
		return
	}

	from, to, err := parseExportRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="bookings-audit.xlsx"`)
	if err := s.auditLog.ExportXLSX(r.Context(), w, from, to); err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
	}
}

func parseExportRange(fromStr, toStr string) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, -1, 0)
	if fromStr != "" {
		d, err := models.ParseDate(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = d
	}
	if toStr != "" {
		d, err := models.ParseDate(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = d.AddDate(0, 0, 1) // inclusive end date
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be before to")
	}
	return from, to, nil
}

func parseOffset(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid tz_offset; expected minutes east of UTC")
	}
	return offset, nil
}

func commitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrInvalidRange):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, booking.ErrNotBookable),
		errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrOperationInFlight):
		return http.StatusConflict, err.Error()
	}

	var apiErr *crmapi.APIError
	if errors.As(err, &apiErr) && booking.IsConflictMessage(apiErr.Message) {
		return http.StatusConflict, apiErr.Message
	}
	return http.StatusBadGateway, err.Error()
}
