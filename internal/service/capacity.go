package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// CapacityLimit is the most guests a GROUP slot admits.  PRIVATE bookings
// are not bound by it since they take the whole slot.
const CapacityLimit = 6

// Snapshot is the derived occupancy of one slot.
type Snapshot struct {
	AdmittedSoFar int  // guests across occupying bookings
	ExclusiveHeld bool // a PRIVATE booking occupies the slot
	Occupied      int  // number of occupying bookings
}

// snapshotOf folds the bookings of a date into the occupancy of one slot.
// Only REQUESTED and CONFIRMED bookings count.
func snapshotOf(bookings []model.Booking, slotTime string) Snapshot {
	var s Snapshot
	for i := range bookings {
		b := &bookings[i]
		if b.Time != slotTime || !b.Status.Occupies() {
			continue
		}
		s.Occupied++
		s.AdmittedSoFar += b.GuestCounts.Total()
		if b.Kind == model.KindPrivate {
			s.ExclusiveHeld = true
		}
	}
	return s
}

// Admits applies the admission rule for a new request of kind with
// requested guests.
func (s Snapshot) Admits(kind model.ReservationKind, requested int) bool {
	switch kind {
	case model.KindPrivate:
		return s.Occupied == 0
	case model.KindGroup:
		return !s.ExclusiveHeld && s.AdmittedSoFar+requested <= CapacityLimit
	}
	return false
}

// Available is the display rule used by the calendar widget.  It differs
// from Admits in that the requested headcount is not known yet.
func (s Snapshot) Available(kind model.ReservationKind) bool {
	switch kind {
	case model.KindPrivate:
		return s.Occupied == 0
	case model.KindGroup:
		return !s.ExclusiveHeld && s.AdmittedSoFar < CapacityLimit
	}
	return false
}

// Evaluate reads the ledger and returns the occupancy of a slot.
func (s *BookingService) Evaluate(ctx context.Context, date, slotTime string) (Snapshot, error) {
	bookings, err := s.bookings.ListByDate(ctx, date)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list bookings for %s: %w", date, err)
	}
	return snapshotOf(bookings, slotTime), nil
}
