package booking

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadbook/internal/crmapi"
	"leadbook/internal/models"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestStoreNormalizeFieldVariants(t *testing.T) {
	store := NewStore(testLogger())

	raw := []crmapi.RawBooking{
		{
			ID:         "1",
			LeadID:     "lead-1",
			Date:       "2026-09-01",
			StartTime:  "10:00",
			EndTime:    "10:30",
			ResourceID: "r1",
			CreatedBy:  "op@crm",
		},
		{
			ID:          "2",
			LeadIDCamel: "lead-2",
			Date:        "2026-09-01",
			StartCamel:  "11:00",
			EndCamel:    "11:15",
			UserID:      "r1", // resource under the legacy user_id key
		},
		{
			// missing end boundary: dropped
			ID:        "3",
			StartTime: "12:00",
		},
	}

	records := store.ReplaceForDay("r1", "2026-09-01", raw)
	require.Len(t, records, 2)

	assert.Equal(t, "lead-1", records[0].LeadID)
	assert.Equal(t, "10:00", records[0].StartTime)
	assert.Equal(t, "op@crm", records[0].CreatedBy)

	assert.Equal(t, "lead-2", records[1].LeadID)
	assert.Equal(t, "r1", records[1].ResourceID)
	assert.Equal(t, "11:00", records[1].StartTime)
	assert.Equal(t, "11:15", records[1].EndTime)
}

func TestStoreResourceNameResolution(t *testing.T) {
	store := NewStore(testLogger())
	store.SetResources([]models.Resource{{ID: "r1", Name: "Dana Voss", Email: "dana@clinic.example"}})

	raw := []crmapi.RawBooking{
		{ID: "1", ResourceID: "r1", StartTime: "09:00", EndTime: "09:15", ResourceName: "stale name"},
		{ID: "2", ResourceID: "r2", StartTime: "10:00", EndTime: "10:15", ResourceName: "Former Staff", ResourceEmail: "gone@clinic.example"},
		{ID: "3", ResourceID: "r3", StartTime: "11:00", EndTime: "11:15"},
	}
	records := store.ReplaceForDay("r1", "2026-09-01", raw)
	require.Len(t, records, 3)

	// Directory wins over the name carried on the record.
	assert.Equal(t, "Dana Voss", records[0].ResourceName)
	assert.Equal(t, "dana@clinic.example", records[0].ResourceEmail)
	// Unlisted resource falls back to the record's own name.
	assert.Equal(t, "Former Staff", records[1].ResourceName)
	// Neither listed nor carried: placeholder.
	assert.Equal(t, PlaceholderResourceName, records[2].ResourceName)
}

func TestStoreLeadScope(t *testing.T) {
	store := NewStore(testLogger())

	raw := []crmapi.RawBooking{
		{ID: "1", LeadID: "lead-9", Date: "2026-09-01", StartTime: "09:00", EndTime: "09:30", ResourceID: "r1"},
		{ID: "2", LeadID: "lead-9", Date: "2026-09-03", StartTime: "14:00", EndTime: "14:15", ResourceID: "r2"},
	}
	records := store.ReplaceForLead("lead-9", raw)
	require.Len(t, records, 2)
	assert.Equal(t, records, store.ForLead("lead-9"))
	assert.Empty(t, store.ForLead("lead-0"))
}

func TestStoreSlotStateDerivation(t *testing.T) {
	store := NewStore(testLogger())
	store.ReplaceForDay("r1", "2026-09-01", []crmapi.RawBooking{
		{ID: "1", ResourceID: "r1", Date: "2026-09-01", StartTime: "10:00", EndTime: "10:30"},
	})

	// A half-hour booking covers both quarter-hour slots.
	assert.Equal(t, models.SlotBooked, store.SlotState("r1", "2026-09-01", "10:00"))
	assert.Equal(t, models.SlotBooked, store.SlotState("r1", "2026-09-01", "10:15"))
	assert.Equal(t, models.SlotUnbooked, store.SlotState("r1", "2026-09-01", "10:30"))
	assert.Equal(t, models.SlotUnbooked, store.SlotState("r1", "2026-09-01", "09:45"))
}

func TestStorePendingResolution(t *testing.T) {
	store := NewStore(testLogger())

	ok := store.MarkPending("r1", "2026-09-01", "09:00", models.SlotPendingCommit)
	require.True(t, ok)
	assert.Equal(t, models.SlotPendingCommit, store.SlotState("r1", "2026-09-01", "09:00"))

	// Server accepted the booking: the refresh carries it, resolution
	// flips the slot to booked.
	store.ReplaceForDay("r1", "2026-09-01", []crmapi.RawBooking{
		{ID: "1", ResourceID: "r1", Date: "2026-09-01", StartTime: "09:00", EndTime: "09:15"},
	})
	store.ResolveDay("r1", "2026-09-01")
	assert.Equal(t, models.SlotBooked, store.SlotState("r1", "2026-09-01", "09:00"))

	// Cancel flow: pending marker, then a refresh without the record.
	require.True(t, store.MarkPending("r1", "2026-09-01", "09:00", models.SlotPendingCancel))
	assert.Equal(t, models.SlotPendingCancel, store.SlotState("r1", "2026-09-01", "09:00"))

	store.ReplaceForDay("r1", "2026-09-01", nil)
	store.ResolveDay("r1", "2026-09-01")
	assert.Equal(t, models.SlotUnbooked, store.SlotState("r1", "2026-09-01", "09:00"))
}

// Resolution always goes through refresh; a rejected mutation simply reverts
// to whatever the server says, never to a locally toggled value.
func TestStorePendingRejectedByRefresh(t *testing.T) {
	store := NewStore(testLogger())

	require.True(t, store.MarkPending("r1", "2026-09-01", "09:00", models.SlotPendingCommit))

	// Server did not accept: refresh comes back without the record.
	store.ReplaceForDay("r1", "2026-09-01", nil)
	store.ResolveDay("r1", "2026-09-01")
	assert.Equal(t, models.SlotUnbooked, store.SlotState("r1", "2026-09-01", "09:00"))

	// Cancel rejected: the record is still there after refresh.
	store.ReplaceForDay("r1", "2026-09-01", []crmapi.RawBooking{
		{ID: "1", ResourceID: "r1", Date: "2026-09-01", StartTime: "09:00", EndTime: "09:15"},
	})
	require.True(t, store.MarkPending("r1", "2026-09-01", "09:00", models.SlotPendingCancel))
	store.ReplaceForDay("r1", "2026-09-01", []crmapi.RawBooking{
		{ID: "1", ResourceID: "r1", Date: "2026-09-01", StartTime: "09:00", EndTime: "09:15"},
	})
	store.ResolveDay("r1", "2026-09-01")
	assert.Equal(t, models.SlotBooked, store.SlotState("r1", "2026-09-01", "09:00"))
}

func TestStoreMarkPendingIllegal(t *testing.T) {
	store := NewStore(testLogger())

	// Cancelling an unbooked slot is not a legal transition.
	assert.False(t, store.MarkPending("r1", "2026-09-01", "09:00", models.SlotPendingCancel))
	assert.Equal(t, models.SlotUnbooked, store.SlotState("r1", "2026-09-01", "09:00"))

	// Committing over an already pending commit is rejected too.
	require.True(t, store.MarkPending("r1", "2026-09-01", "09:00", models.SlotPendingCommit))
	assert.False(t, store.MarkPending("r1", "2026-09-01", "09:00", models.SlotPendingCommit))

	// Non-pending targets are refused outright.
	assert.False(t, store.MarkPending("r1", "2026-09-01", "10:00", models.SlotBooked))
}

func TestStoreFindByID(t *testing.T) {
	store := NewStore(testLogger())
	store.ReplaceForDay("r1", "2026-09-01", []crmapi.RawBooking{
		{ID: "b-7", ResourceID: "r1", Date: "2026-09-01", StartTime: "09:00", EndTime: "09:15"},
	})

	rec, ok := store.FindByID("b-7")
	require.True(t, ok)
	assert.Equal(t, "09:00", rec.StartTime)

	_, ok = store.FindByID("missing")
	assert.False(t, ok)
}
