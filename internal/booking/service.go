package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leadbook/internal/crmapi"
	"leadbook/internal/events"
	"leadbook/internal/metrics"
	"leadbook/internal/models"
	"leadbook/internal/notify"
	"leadbook/internal/slots"
)

var (
	ErrInvalidRange      = errors.New("invalid booking range")
	ErrNotBookable       = errors.New("requested range is outside availability")
	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrOperationInFlight = errors.New("another operation is in flight for this slot")
)

// conflictPatterns are the server failure messages that mean an expected,
// recoverable booking conflict rather than a hard error.
var conflictPatterns = []string{
	"unavailable",
	"already booked",
	"buffer period",
}

// IsConflictMessage classifies a server failure message.
func IsConflictMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range conflictPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Feed is the subset of the upstream CRM client the engine depends on.
type Feed interface {
	GetBookings(ctx context.Context, q crmapi.BookingsQuery) ([]crmapi.RawBooking, error)
	CheckAvailability(ctx context.Context, req crmapi.CheckRequest) (*crmapi.CheckResponse, error)
	BookSlot(ctx context.Context, req crmapi.BookRequest, idempotencyKey string) (*crmapi.RawBooking, error)
	CancelBooking(ctx context.Context, bookingID string) error
	InvalidateDay(ctx context.Context, resourceID, date string)
}

// AvailabilityResolver yields a resource's normalized free windows for a date.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, resourceID, date string, viewerOffsetMinutes int) []models.AvailabilityWindow
}

// Service ties the engine together: day sheets, commits and cancellations.
// The server stays the sole authority for conflicts; everything the service
// holds locally is provisional until the next refresh.
type Service struct {
	feed        Feed
	resolver    AvailabilityResolver
	store       *Store
	notifier    notify.Notifier
	bus         *events.Bus
	logger      *zerolog.Logger
	granularity time.Duration
	dayStart    string
	dayEnd      string

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// Config holds the service's tunables.
type Config struct {
	Granularity time.Duration // default 15m
	DayStart    string        // default "09:00"
	DayEnd      string        // default "18:00"
}

// NewService wires the booking engine.
func NewService(feed Feed, resolver AvailabilityResolver, store *Store, notifier notify.Notifier, bus *events.Bus, logger *zerolog.Logger, cfg Config) *Service {
	if cfg.Granularity <= 0 {
		cfg.Granularity = models.DefaultGranularity
	}
	if cfg.DayStart == "" {
		cfg.DayStart = "09:00"
	}
	if cfg.DayEnd == "" {
		cfg.DayEnd = "18:00"
	}
	return &Service{
		feed:        feed,
		resolver:    resolver,
		store:       store,
		notifier:    notifier,
		bus:         bus,
		logger:      logger,
		granularity: cfg.Granularity,
		dayStart:    cfg.DayStart,
		dayEnd:      cfg.DayEnd,
		inflight:    make(map[string]struct{}),
	}
}

// Store exposes the read model, for display-only consumers.
func (s *Service) Store() *Store { return s.store }

// DaySheet returns the generated slot grid for a (resource, date) pair,
// annotated with booking state, plus the resolved availability windows.
func (s *Service) DaySheet(ctx context.Context, resourceID, date string, viewerOffsetMinutes int) ([]models.TimeSlot, []models.AvailabilityWindow, error) {
	grid, err := slots.Generate(date, s.dayStart, s.dayEnd, s.granularity)
	if err != nil {
		return nil, nil, err
	}

	windows := s.resolver.Resolve(ctx, resourceID, date, viewerOffsetMinutes)

	raw, err := s.feed.GetBookings(ctx, crmapi.BookingsQuery{ResourceID: resourceID, Date: date})
	if err != nil {
		metrics.IncFeedError("bookings")
		return nil, nil, fmt.Errorf("fetch bookings: %w", err)
	}
	s.store.ReplaceForDay(resourceID, date, raw)
	s.store.ResolveDay(resourceID, date)

	for i := range grid {
		grid[i].State = s.store.SlotState(resourceID, date, grid[i].StartTime)
		if grid[i].State.Occupied() {
			grid[i].BookedBy = s.store.BookedBy(resourceID, date, grid[i].StartTime)
		}
	}
	return grid, windows, nil
}

// LeadBookings returns all bookings of a lead across dates, for the read-only
// summary view.
func (s *Service) LeadBookings(ctx context.Context, leadID string) ([]models.BookingRecord, error) {
	raw, err := s.feed.GetBookings(ctx, crmapi.BookingsQuery{LeadID: leadID})
	if err != nil {
		metrics.IncFeedError("bookings")
		return nil, fmt.Errorf("fetch lead bookings: %w", err)
	}
	return s.store.ReplaceForLead(leadID, raw), nil
}

// BookRequest is one commit attempt.
type BookRequest struct {
	LeadID              string
	ResourceID          string
	Date                string
	StartTime           string
	EndTime             string
	CreatedBy           string
	ViewerOffsetMinutes int
}

// Commit runs the full commit flow: client-side gate, advisory pre-check,
// authoritative submission, provisional local mark, then reconciliation by
// refetch. The local mark is never treated as final.
func (s *Service) Commit(ctx context.Context, req BookRequest) (*models.BookingRecord, error) {
	if _, err := models.ParseDate(req.Date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if !ValidDuration(req.StartTime, req.EndTime, s.granularity) {
		return nil, fmt.Errorf("%w: duration must be a positive multiple of %s", ErrInvalidRange, s.granularity)
	}

	key := SlotKey(req.ResourceID, req.Date, req.StartTime)
	if !s.acquire(key) {
		return nil, ErrOperationInFlight
	}
	defer s.release(key)

	// Client-side gate against current availability. Advisory like the
	// pre-check: the server re-validates at commit time.
	windows := s.resolver.Resolve(ctx, req.ResourceID, req.Date, req.ViewerOffsetMinutes)
	if !IsBookable(req.StartTime, req.EndTime, windows) {
		s.notifier.Notify(notify.Notification{
			Message:  fmt.Sprintf("%s-%s on %s is outside the resource's availability", req.StartTime, req.EndTime, req.Date),
			Severity: notify.SeverityWarning,
		})
		metrics.IncCommit("not_bookable")
		return nil, ErrNotBookable
	}

	if err := s.precheck(ctx, req); err != nil {
		return nil, err
	}

	raw, err := s.feed.BookSlot(ctx, crmapi.BookRequest{
		LeadID:     req.LeadID,
		ResourceID: req.ResourceID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		CreatedBy:  req.CreatedBy,
	}, uuid.New().String())
	if err != nil {
		s.handleCommitFailure(ctx, req, err)
		return nil, err
	}

	s.store.MarkPending(req.ResourceID, req.Date, req.StartTime, models.SlotPendingCommit)
	s.bus.Publish(events.Event{
		Type:       events.TypeBookingCommitted,
		BookingID:  raw.ID.String(),
		LeadID:     req.LeadID,
		ResourceID: req.ResourceID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Actor:      req.CreatedBy,
	})
	metrics.IncCommit("ok")

	// Reconcile with server truth; the provisional mark above is resolved
	// here, not trusted.
	s.refreshDay(ctx, req.ResourceID, req.Date, req.ViewerOffsetMinutes)

	records := s.store.ForDay(req.ResourceID, req.Date)
	for i := range records {
		if records[i].ID == raw.ID.String() {
			return &records[i], nil
		}
	}
	// Refresh did not see the new booking yet; fall back to the commit
	// response so the caller still gets a record.
	rec, ok := s.store.normalize(*raw)
	if !ok {
		return nil, fmt.Errorf("server accepted booking but returned an unparsable record")
	}
	return &rec, nil
}

// precheck runs the advisory availability check. Only a definitive "not
// available" answer aborts the commit; a failed call is ignored because the
// authoritative check happens at submission.
func (s *Service) precheck(ctx context.Context, req BookRequest) error {
	resp, err := s.feed.CheckAvailability(ctx, crmapi.CheckRequest{
		ResourceID: req.ResourceID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		metrics.IncFeedError("precheck")
		s.logger.Warn().Err(err).Msg("availability pre-check failed; proceeding to commit")
		return nil
	}
	if resp.Available {
		return nil
	}

	msg := resp.Message
	if msg == "" {
		msg = fmt.Sprintf("%s-%s on %s is no longer available", req.StartTime, req.EndTime, req.Date)
	}
	s.notifier.Notify(notify.Notification{Message: msg, Severity: notify.SeverityWarning})
	metrics.IncCommit("precheck_rejected")
	s.refreshDay(ctx, req.ResourceID, req.Date, req.ViewerOffsetMinutes)
	return ErrSlotUnavailable
}

func (s *Service) handleCommitFailure(ctx context.Context, req BookRequest, err error) {
	severity := notify.SeverityError
	outcome := "error"
	eventType := events.TypeBookingFailed
	if IsConflictMessage(err.Error()) {
		severity = notify.SeverityWarning
		outcome = "conflict"
		eventType = events.TypeBookingConflict
		metrics.IncConflict()
	}
	metrics.IncCommit(outcome)

	s.notifier.Notify(notify.Notification{Message: err.Error(), Severity: severity})
	s.bus.Publish(events.Event{
		Type:       eventType,
		LeadID:     req.LeadID,
		ResourceID: req.ResourceID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Actor:      req.CreatedBy,
		Message:    err.Error(),
	})

	// Self-heal any partial local state regardless of failure kind.
	s.refreshDay(ctx, req.ResourceID, req.Date, req.ViewerOffsetMinutes)
}

// CancelRequest identifies a booking to release. ResourceID/Date/Offset are
// the active day context, if any; availability is only re-resolved when they
// are set.
type CancelRequest struct {
	BookingID           string
	ResourceID          string
	Date                string
	ViewerOffsetMinutes int
	Actor               string
}

// Cancel releases a booking. Deliberately not optimistic: the slot is freed
// locally only after the server confirms, because prematurely freeing a slot
// that is still booked invites a concurrent double-booking.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) error {
	guard := "cancel|" + req.BookingID
	if !s.acquire(guard) {
		return ErrOperationInFlight
	}
	defer s.release(guard)

	rec, known := s.store.FindByID(req.BookingID)

	if err := s.feed.CancelBooking(ctx, req.BookingID); err != nil {
		metrics.IncCancel("error")
		s.notifier.Notify(notify.Notification{
			Message:  fmt.Sprintf("cancellation failed: %s", err.Error()),
			Severity: notify.SeverityError,
		})
		s.bus.Publish(events.Event{
			Type:      events.TypeCancelFailed,
			BookingID: req.BookingID,
			Actor:     req.Actor,
			Message:   err.Error(),
		})
		return err
	}

	if known {
		s.store.MarkPending(rec.ResourceID, rec.Date, rec.StartTime, models.SlotPendingCancel)
	}
	metrics.IncCancel("ok")
	s.bus.Publish(events.Event{
		Type:       events.TypeBookingCancelled,
		BookingID:  req.BookingID,
		LeadID:     rec.LeadID,
		ResourceID: rec.ResourceID,
		Date:       rec.Date,
		StartTime:  rec.StartTime,
		EndTime:    rec.EndTime,
		Actor:      req.Actor,
	})

	if req.ResourceID != "" && req.Date != "" {
		s.refreshDay(ctx, req.ResourceID, req.Date, req.ViewerOffsetMinutes)
	} else if known {
		s.refreshBookings(ctx, rec.ResourceID, rec.Date)
	}
	return nil
}

// refreshDay refetches both the booked-slots projection and availability for
// a (resource, date) pair and resolves any pending slot states from the
// result.
func (s *Service) refreshDay(ctx context.Context, resourceID, date string, viewerOffsetMinutes int) {
	s.refreshBookings(ctx, resourceID, date)
	s.resolver.Resolve(ctx, resourceID, date, viewerOffsetMinutes)
}

func (s *Service) refreshBookings(ctx context.Context, resourceID, date string) {
	s.feed.InvalidateDay(ctx, resourceID, date)
	raw, err := s.feed.GetBookings(ctx, crmapi.BookingsQuery{ResourceID: resourceID, Date: date})
	if err != nil {
		metrics.IncFeedError("bookings")
		// Pending states stay pending; the next successful refresh
		// resolves them.
		s.logger.Error().Err(err).
			Str("resource_id", resourceID).
			Str("date", date).
			Msg("post-mutation refresh failed")
		return
	}
	s.store.ReplaceForDay(resourceID, date, raw)
	s.store.ResolveDay(resourceID, date)
}

func (s *Service) acquire(key string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) release(key string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, key)
}
