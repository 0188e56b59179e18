package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadbook/internal/booking"
	"leadbook/internal/crmapi"
	"leadbook/internal/events"
	"leadbook/internal/models"
	"leadbook/internal/notify"
)

// stubFeed is a minimal in-memory upstream: bookings live in a slice and
// conflicts are detected on exact start-time collisions.
type stubFeed struct {
	mu       sync.Mutex
	nextID   int
	bookings []crmapi.RawBooking
	bookErr  error
}

func (f *stubFeed) GetBookings(ctx context.Context, q crmapi.BookingsQuery) ([]crmapi.RawBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []crmapi.RawBooking
	for _, b := range f.bookings {
		if q.ResourceID != "" && b.ResourceID.String() != q.ResourceID {
			continue
		}
		if q.Date != "" && b.Date != q.Date {
			continue
		}
		if q.LeadID != "" && b.LeadID.String() != q.LeadID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *stubFeed) CheckAvailability(ctx context.Context, req crmapi.CheckRequest) (*crmapi.CheckResponse, error) {
	return &crmapi.CheckResponse{Available: true}, nil
}

func (f *stubFeed) BookSlot(ctx context.Context, req crmapi.BookRequest, idempotencyKey string) (*crmapi.RawBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	for _, b := range f.bookings {
		if b.ResourceID.String() == req.ResourceID && b.Date == req.Date && b.StartTime == req.StartTime {
			return nil, &crmapi.APIError{Status: 409, Message: "slot already booked"}
		}
	}
	f.nextID++
	rec := crmapi.RawBooking{
		ID:         crmapi.FlexString(strconv.Itoa(f.nextID)),
		LeadID:     crmapi.FlexString(req.LeadID),
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		ResourceID: crmapi.FlexString(req.ResourceID),
	}
	f.bookings = append(f.bookings, rec)
	return &rec, nil
}

func (f *stubFeed) CancelBooking(ctx context.Context, bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.bookings {
		if b.ID.String() == bookingID {
			f.bookings = append(f.bookings[:i], f.bookings[i+1:]...)
			return nil
		}
	}
	return &crmapi.APIError{Status: 404, Message: "booking not found"}
}

func (f *stubFeed) InvalidateDay(ctx context.Context, resourceID, date string) {}

type stubResolver struct {
	windows []models.AvailabilityWindow
}

func (r *stubResolver) Resolve(ctx context.Context, resourceID, date string, viewerOffsetMinutes int) []models.AvailabilityWindow {
	return r.windows
}

func newTestServer(t *testing.T, feed *stubFeed, windows []models.AvailabilityWindow) *Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	svc := booking.NewService(
		feed,
		&stubResolver{windows: windows},
		booking.NewStore(&logger),
		&notify.Collector{},
		events.NewBus(),
		&logger,
		booking.Config{},
	)
	return NewServer(":0", svc, nil, &logger)
}

func doRequest(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestDaySheetEndpoint(t *testing.T) {
	feed := &stubFeed{bookings: []crmapi.RawBooking{
		{ID: "b-1", ResourceID: "r1", Date: "2026-09-01", StartTime: "10:00", EndTime: "10:30"},
	}}
	s := newTestServer(t, feed, []models.AvailabilityWindow{{StartTime: "09:00", EndTime: "12:00"}})

	rec := doRequest(s, http.MethodGet, "/api/day-sheet?resource_id=r1&date=2026-09-01&tz_offset=120", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DaySheetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "r1", resp.ResourceID)
	require.Len(t, resp.Windows, 1)
	require.Len(t, resp.Slots, 36)

	byStart := make(map[string]SlotDTO, len(resp.Slots))
	for _, sl := range resp.Slots {
		byStart[sl.StartTime] = sl
	}

	assert.Equal(t, models.SlotBooked, byStart["10:00"].State)
	assert.False(t, byStart["10:00"].Bookable)
	require.NotNil(t, byStart["10:00"].BookedBy)

	// Free slot inside the availability window.
	assert.Equal(t, models.SlotUnbooked, byStart["09:00"].State)
	assert.True(t, byStart["09:00"].Bookable)

	// Free but outside availability.
	assert.Equal(t, models.SlotUnbooked, byStart["14:00"].State)
	assert.False(t, byStart["14:00"].Bookable)
}

func TestDaySheetValidation(t *testing.T) {
	s := newTestServer(t, &stubFeed{}, nil)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing params", "/api/day-sheet", http.StatusBadRequest},
		{"missing date", "/api/day-sheet?resource_id=r1", http.StatusBadRequest},
		{"bad date", "/api/day-sheet?resource_id=r1&date=01.09.2026", http.StatusBadRequest},
		{"bad offset", "/api/day-sheet?resource_id=r1&date=2026-09-01&tz_offset=two", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := doRequest(s, http.MethodPost, "/api/day-sheet?resource_id=r1&date=2026-09-01", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCommitEndpoint(t *testing.T) {
	feed := &stubFeed{}
	s := newTestServer(t, feed, []models.AvailabilityWindow{{StartTime: "09:00", EndTime: "18:00"}})

	body := []byte(`{"lead_id": "lead-1", "resource_id": "r1", "date": "2026-09-01", "start_time": "10:00", "end_time": "10:15", "created_by": "op@crm"}`)
	rec := doRequest(s, http.MethodPost, "/api/bookings", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record models.BookingRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "lead-1", record.LeadID)
	assert.Equal(t, "10:00", record.StartTime)
}

func TestCommitEndpointValidation(t *testing.T) {
	s := newTestServer(t, &stubFeed{}, []models.AvailabilityWindow{{StartTime: "09:00", EndTime: "18:00"}})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"unknown field", `{"lead_id": "l", "resource_id": "r", "date": "2026-09-01", "start_time": "10:00", "end_time": "10:15", "surprise": 1}`},
		{"missing lead", `{"resource_id": "r", "date": "2026-09-01", "start_time": "10:00", "end_time": "10:15"}`},
		{"bad date", `{"lead_id": "l", "resource_id": "r", "date": "tomorrow", "start_time": "10:00", "end_time": "10:15"}`},
		{"bad start", `{"lead_id": "l", "resource_id": "r", "date": "2026-09-01", "start_time": "10am", "end_time": "10:15"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/bookings", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCommitEndpointConflictStatuses(t *testing.T) {
	body := []byte(`{"lead_id": "lead-1", "resource_id": "r1", "date": "2026-09-01", "start_time": "10:00", "end_time": "10:15"}`)

	t.Run("outside availability", func(t *testing.T) {
		s := newTestServer(t, &stubFeed{}, nil)
		rec := doRequest(s, http.MethodPost, "/api/bookings", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("upstream conflict", func(t *testing.T) {
		feed := &stubFeed{bookErr: &crmapi.APIError{Status: 409, Message: "slot already booked"}}
		s := newTestServer(t, feed, []models.AvailabilityWindow{{StartTime: "09:00", EndTime: "18:00"}})
		rec := doRequest(s, http.MethodPost, "/api/bookings", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "already booked")
	})

	t.Run("upstream hard failure", func(t *testing.T) {
		feed := &stubFeed{bookErr: &crmapi.APIError{Status: 500, Message: "internal server error"}}
		s := newTestServer(t, feed, []models.AvailabilityWindow{{StartTime: "09:00", EndTime: "18:00"}})
		rec := doRequest(s, http.MethodPost, "/api/bookings", body)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestListBookings(t *testing.T) {
	feed := &stubFeed{bookings: []crmapi.RawBooking{
		{ID: "b-1", LeadID: "lead-1", ResourceID: "r1", Date: "2026-09-01", StartTime: "10:00", EndTime: "10:15"},
		{ID: "b-2", LeadID: "lead-1", ResourceID: "r2", Date: "2026-09-03", StartTime: "11:00", EndTime: "11:15"},
	}}
	s := newTestServer(t, feed, nil)

	rec := doRequest(s, http.MethodGet, "/api/bookings?lead_id=lead-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Bookings []models.BookingRecord `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Bookings, 2)

	rec = doRequest(s, http.MethodGet, "/api/bookings?resource_id=r1&date=2026-09-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Bookings, 1)

	rec = doRequest(s, http.MethodGet, "/api/bookings", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	feed := &stubFeed{bookings: []crmapi.RawBooking{
		{ID: "b-1", ResourceID: "r1", Date: "2026-09-01", StartTime: "10:00", EndTime: "10:15"},
	}}
	s := newTestServer(t, feed, nil)

	rec := doRequest(s, http.MethodDelete, "/api/bookings/b-1?resource_id=r1&date=2026-09-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelled")

	// Already gone upstream.
	rec = doRequest(s, http.MethodDelete, "/api/bookings/b-1", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/api/bookings/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/bookings/b-1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuditExportDisabled(t *testing.T) {
	s := newTestServer(t, &stubFeed{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/audit/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &stubFeed{}, nil)

	rec := doRequest(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
