package booking

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"leadbook/internal/crmapi"
	"leadbook/internal/models"
)

// PlaceholderResourceName is shown when a booking's resource is no longer in
// the directory and the record carries no name of its own.
const PlaceholderResourceName = "Unknown resource"

// Store is the read model of committed bookings plus the provisional slot
// states layered on top of it. It is display-oriented and explicitly soft:
// its contents are replaced wholesale from server data on every refresh.
type Store struct {
	mu        sync.RWMutex
	logger    *zerolog.Logger
	resources map[string]models.Resource
	days      map[string][]models.BookingRecord // key: resourceID|date
	leads     map[string][]models.BookingRecord // key: leadID
	pending   map[string]models.SlotState       // key: SlotKey, pending states only
}

// NewStore creates an empty store.
func NewStore(logger *zerolog.Logger) *Store {
	return &Store{
		logger:    logger,
		resources: make(map[string]models.Resource),
		days:      make(map[string][]models.BookingRecord),
		leads:     make(map[string][]models.BookingRecord),
		pending:   make(map[string]models.SlotState),
	}
}

// SetResources replaces the in-memory resource directory.
func (s *Store) SetResources(resources []models.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = make(map[string]models.Resource, len(resources))
	for _, r := range resources {
		s.resources[r.ID] = r
	}
}

// ReplaceForDay normalizes raw feed records and replaces the (resource, date)
// projection with them. Records that cannot be normalized are dropped with a
// warning.
func (s *Store) ReplaceForDay(resourceID, date string, raw []crmapi.RawBooking) []models.BookingRecord {
	records := s.normalizeAll(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[dayKey(resourceID, date)] = records
	return records
}

// ForDay returns the committed bookings for one (resource, date) pair.
func (s *Store) ForDay(resourceID, date string) []models.BookingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.BookingRecord(nil), s.days[dayKey(resourceID, date)]...)
}

// ReplaceForLead replaces the cross-date projection for one lead.
func (s *Store) ReplaceForLead(leadID string, raw []crmapi.RawBooking) []models.BookingRecord {
	records := s.normalizeAll(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[leadID] = records
	return records
}

// ForLead returns all bookings of a lead across dates.
func (s *Store) ForLead(leadID string) []models.BookingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.BookingRecord(nil), s.leads[leadID]...)
}

// FindByID looks a booking up in any projection.
func (s *Store) FindByID(bookingID string) (models.BookingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, records := range s.days {
		for _, r := range records {
			if r.ID == bookingID {
				return r, true
			}
		}
	}
	for _, records := range s.leads {
		for _, r := range records {
			if r.ID == bookingID {
				return r, true
			}
		}
	}
	return models.BookingRecord{}, false
}

// SlotState returns the client-observed state of one slot: a pending marker
// if a mutation is awaiting confirmation, otherwise the state derived from
// the committed records.
func (s *Store) SlotState(resourceID, date, start string) models.SlotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.pending[SlotKey(resourceID, date, start)]; ok {
		return st
	}
	return s.derivedStateLocked(resourceID, date, start)
}

// BookedBy returns who occupies the slot, if anyone.
func (s *Store) BookedBy(resourceID, date, start string) *models.ResourceRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.days[dayKey(resourceID, date)] {
		if r.Covers(start) {
			return &models.ResourceRef{ID: r.ResourceID, Name: r.ResourceName, Email: r.ResourceEmail}
		}
	}
	return nil
}

// MarkPending records the optimistic half of a mutation. The transition is
// checked against the slot's current effective state; an illegal transition
// is rejected and logged rather than applied.
func (s *Store) MarkPending(resourceID, date, start string, to models.SlotState) bool {
	if !to.Pending() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := SlotKey(resourceID, date, start)
	from, ok := s.pending[key]
	if !ok {
		from = s.derivedStateLocked(resourceID, date, start)
	}
	if !CanTransition(from, to) {
		s.logger.Warn().
			Str("slot", key).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("illegal slot state transition rejected")
		return false
	}
	s.pending[key] = to
	return true
}

// ResolveDay clears every pending marker for a (resource, date) pair. Called
// after the day projection has been replaced from server data: once the
// refreshed records are in, the derived state is the server's answer and the
// optimistic markers are obsolete.
func (s *Store) ResolveDay(resourceID, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := resourceID + "|" + date + "|"
	for key := range s.pending {
		if strings.HasPrefix(key, prefix) {
			delete(s.pending, key)
		}
	}
}

func (s *Store) derivedStateLocked(resourceID, date, start string) models.SlotState {
	for _, r := range s.days[dayKey(resourceID, date)] {
		if r.Covers(start) {
			return models.SlotBooked
		}
	}
	return models.SlotUnbooked
}

func (s *Store) normalizeAll(raw []crmapi.RawBooking) []models.BookingRecord {
	records := make([]models.BookingRecord, 0, len(raw))
	for _, rb := range raw {
		rec, ok := s.normalize(rb)
		if !ok {
			s.logger.Warn().Str("booking_id", rb.ID.String()).Msg("dropping unparsable booking record")
			continue
		}
		records = append(records, rec)
	}
	return records
}

// normalize coalesces the feed's field-name variants into one canonical
// BookingRecord and resolves the resource display name: directory first, then
// whatever name/email the record itself carries, then a placeholder.
func (s *Store) normalize(raw crmapi.RawBooking) (models.BookingRecord, bool) {
	start := firstNonEmpty(raw.StartTime, raw.StartCamel)
	end := firstNonEmpty(raw.EndTime, raw.EndCamel)
	if raw.ID == "" || start == "" || end == "" {
		return models.BookingRecord{}, false
	}

	resourceID := firstNonEmpty(raw.ResourceID.String(), raw.UserID.String())
	name := raw.ResourceName
	email := raw.ResourceEmail

	s.mu.RLock()
	if r, ok := s.resources[resourceID]; ok {
		name = r.Name
		email = r.Email
	}
	s.mu.RUnlock()
	if name == "" {
		name = PlaceholderResourceName
	}

	return models.BookingRecord{
		ID:            raw.ID.String(),
		LeadID:        firstNonEmpty(raw.LeadID.String(), raw.LeadIDCamel.String()),
		ResourceID:    resourceID,
		Date:          raw.Date,
		StartTime:     start,
		EndTime:       end,
		CreatedBy:     raw.CreatedBy,
		ResourceName:  name,
		ResourceEmail: email,
	}, true
}

func dayKey(resourceID, date string) string {
	return resourceID + "|" + date
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
