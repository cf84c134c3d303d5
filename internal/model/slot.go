package model

// Date and time layouts shared by slots and bookings.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Slot is a bookable date+time exposed by the venue's scheduler.  It is
// read-only input; the service never writes slots back.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Key returns the same slot key as Booking.SlotKey.
func (s Slot) Key() string { return s.Date + " " + s.Time }

// SlotAvailability is what the booking widget renders for one slot.
type SlotAvailability struct {
	Time              string `json:"time"`
	Available         bool   `json:"available"`
	CurrentGroupCount int    `json:"currentGroupCount"`
}

// DayStatus summarises one calendar day for the month view.  A day is
// available when at least one of its slots is.
type DayStatus struct {
	Available bool               `json:"available"`
	Slots     []SlotAvailability `json:"slots"`
}
