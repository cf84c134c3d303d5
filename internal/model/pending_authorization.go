package model

import "time"

// ReservationRequest is the payload a guest submits before paying.  It is
// stored verbatim inside a PendingAuthorization and becomes a Booking once
// the payment provider reports the authorization as complete.
type ReservationRequest struct {
	Kind ReservationKind `json:"type"`
	Date string          `json:"date"`
	Time string          `json:"time"`
	GuestCounts
	TotalPrice     int64   `json:"totalPrice"`
	Representative Guest   `json:"representative"`
	Guests         []Guest `json:"guests"`
	DietaryNotes   string  `json:"dietaryNotes,omitempty"`
	// ReturnURL is where the payment provider sends the browser back.  The
	// success redirect carries the session id for finalization.
	ReturnURL string `json:"returnUrl,omitempty"`
}

// PendingAuthorization bridges a successful card authorization and the
// persisted booking.  Rows live in `pending_authorizations` and are
// removed once converted.
//
// Fields:
//
//	SessionID – checkout session id; unique, consumed at most once.
//	Request   – the reservation payload supplied before payment.
//	CreatedAt – when the authorization was started.
type PendingAuthorization struct {
	SessionID string             // pending_authorizations.session_id
	Request   ReservationRequest // pending_authorizations.payload (JSON)
	CreatedAt time.Time          // pending_authorizations.created_at
}
