package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinutesOfDay(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"9:05", 545, false},
		{"13:30:45", 810, false}, // seconds truncated
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := MinutesOfDay(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "09:00", FormatMinutes(540))
	assert.Equal(t, "00:05", FormatMinutes(5))
	assert.Equal(t, "17:45", FormatMinutes(1065))
}

func TestAvailabilityWindowValid(t *testing.T) {
	assert.True(t, AvailabilityWindow{StartTime: "09:00", EndTime: "10:00"}.Valid())
	assert.False(t, AvailabilityWindow{StartTime: "10:00", EndTime: "10:00"}.Valid())
	assert.False(t, AvailabilityWindow{StartTime: "11:00", EndTime: "10:00"}.Valid())
	assert.False(t, AvailabilityWindow{StartTime: "bad", EndTime: "10:00"}.Valid())

	// "00:00" as an end means end of day.
	assert.True(t, AvailabilityWindow{StartTime: "22:00", EndTime: "00:00"}.Valid())
	assert.False(t, AvailabilityWindow{StartTime: "00:00", EndTime: "00:00"}.Valid())
}

func TestBookingRecordCovers(t *testing.T) {
	rec := BookingRecord{StartTime: "10:00", EndTime: "11:00"}

	assert.True(t, rec.Covers("10:00"))
	assert.True(t, rec.Covers("10:45"))
	assert.False(t, rec.Covers("11:00")) // end exclusive
	assert.False(t, rec.Covers("09:45"))

	// "00:00" as an end means end of day.
	openEnd := BookingRecord{StartTime: "23:00", EndTime: "00:00"}
	assert.True(t, openEnd.Covers("23:45"))
	assert.False(t, openEnd.Covers("22:45"))
}

func TestSlotStateHelpers(t *testing.T) {
	assert.True(t, SlotPendingCommit.Pending())
	assert.True(t, SlotPendingCancel.Pending())
	assert.False(t, SlotBooked.Pending())

	assert.True(t, SlotBooked.Occupied())
	assert.True(t, SlotPendingCancel.Occupied())
	assert.False(t, SlotUnbooked.Occupied())
	assert.False(t, SlotPendingCommit.Occupied())
}
