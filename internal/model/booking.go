package model

import "time"

// ReservationKind distinguishes an exclusive private tasting from a shared
// group tasting.  PRIVATE occupies the whole slot; GROUP seats are shared
// up to the venue capacity.
type ReservationKind string

const (
	KindPrivate ReservationKind = "PRIVATE"
	KindGroup   ReservationKind = "GROUP"
)

// Valid reports whether k is one of the known reservation kinds.
func (k ReservationKind) Valid() bool {
	return k == KindPrivate || k == KindGroup
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusRequested BookingStatus = "REQUESTED"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusRejected  BookingStatus = "REJECTED"
	StatusCancelled BookingStatus = "CANCELLED"
)

// Occupies reports whether a booking in this status still holds seats.
// REJECTED and CANCELLED bookings free their slot.
func (s BookingStatus) Occupies() bool {
	return s != StatusRejected && s != StatusCancelled
}

// OnSiteStatus records what happened on the day.  It is only meaningful
// once the booking is CONFIRMED.
type OnSiteStatus string

const (
	OnSiteUnset   OnSiteStatus = ""
	OnSiteArrived OnSiteStatus = "ARRIVED"
	OnSiteNoShow  OnSiteStatus = "NO_SHOW"
)

// Valid reports whether s is an accepted on-site value (including unset).
func (s OnSiteStatus) Valid() bool {
	return s == OnSiteUnset || s == OnSiteArrived || s == OnSiteNoShow
}

// Guest describes a person attending a tasting.  The representative is the
// contact for the booking; accompanying guests may omit email and phone.
type Guest struct {
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	Email               string `json:"email,omitempty"`
	Phone               string `json:"phone,omitempty"`
	Country             string `json:"country,omitempty"`
	DietaryRestrictions string `json:"dietaryRestrictions,omitempty"`
}

// FullName returns "Last First", the order used in guest correspondence.
func (g Guest) FullName() string {
	if g.FirstName == "" {
		return g.LastName
	}
	return g.LastName + " " + g.FirstName
}

// GuestCounts holds the four headcount buckets used for pricing and
// capacity.  Adults are 20+, AdultsNonAlc 13+ without alcohol, Children
// 5-12 and Infants 0-4.
type GuestCounts struct {
	Adults       int `json:"adults"`
	AdultsNonAlc int `json:"adultsNonAlc"`
	Children     int `json:"children"`
	Infants      int `json:"infants"`
}

// Total returns the headcount across all buckets.  Infants count toward
// capacity even though they are free of charge.
func (c GuestCounts) Total() int {
	return c.Adults + c.AdultsNonAlc + c.Children + c.Infants
}

// Booking is the durable record of a confirmed-or-pending reservation.
// It corresponds to a row in the `bookings` table.
//
// Fields:
//
//	ID               – opaque identifier assigned at finalization.
//	Kind             – PRIVATE or GROUP.
//	Date, Time       – the slot in the venue time zone (YYYY-MM-DD, HH:MM).
//	GuestCounts      – the four headcount buckets.
//	TotalPrice       – amount held on the card, in yen.
//	Representative   – contact person.
//	Guests           – accompanying guests.
//	DietaryNotes     – free text from the request form.
//	Status           – lifecycle state.
//	OnSiteStatus     – ARRIVED / NO_SHOW once confirmed.
//	PaymentSessionID – checkout session id, the idempotency key.
//	PaymentIntentID  – authorization hold to capture, cancel or refund.
type Booking struct {
	ID   string          `json:"id"`
	Kind ReservationKind `json:"type"`
	Date string          `json:"date"`
	Time string          `json:"time"`
	GuestCounts
	TotalPrice     int64         `json:"totalPrice"`
	Representative Guest         `json:"representative"`
	Guests         []Guest       `json:"guests"`
	DietaryNotes   string        `json:"dietaryNotes,omitempty"`
	Status         BookingStatus `json:"status"`
	OnSiteStatus   OnSiteStatus  `json:"secondaryStatus,omitempty"`
	AdminNotes     string        `json:"adminNotes,omitempty"`

	PaymentSessionID string `json:"stripeSessionId,omitempty"`
	PaymentIntentID  string `json:"paymentIntentId,omitempty"`
	// CancellationFee and RefundAmount are set when a confirmed booking is
	// cancelled.  RefundID is only present when the refund was issued
	// through the gateway rather than by hand.
	CancellationFee *int64 `json:"cancellationFee,omitempty"`
	RefundAmount    *int64 `json:"refundAmount,omitempty"`
	RefundID        string `json:"refundId,omitempty"`
	// PaymentFollowUp carries a best-effort payment failure that an
	// operator has to resolve outside the system.
	PaymentFollowUp string `json:"paymentFollowUp,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// SlotKey returns the date+time key the booking occupies.
func (b *Booking) SlotKey() string { return b.Date + " " + b.Time }
