package booking

import (
	"fmt"

	"leadbook/internal/models"
)

// transitions is the allowed slot lifecycle. Entering a pending state is the
// local optimistic half of a mutation; leaving one happens only in refresh
// resolution, where the server decides whether the mutation stuck.
var transitions = map[models.SlotState][]models.SlotState{
	models.SlotUnbooked:      {models.SlotPendingCommit},
	models.SlotPendingCommit: {models.SlotBooked, models.SlotUnbooked},
	models.SlotBooked:        {models.SlotPendingCancel},
	models.SlotPendingCancel: {models.SlotUnbooked, models.SlotBooked},
}

// CanTransition checks if a slot state transition is allowed.
func CanTransition(from, to models.SlotState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SlotKey identifies one slot for state tracking and in-flight guarding.
func SlotKey(resourceID, date, start string) string {
	return fmt.Sprintf("%s|%s|%s", resourceID, date, start)
}
