package model

// EventType names a booking lifecycle notification.  The values double as
// the e-mail template prefixes (RECEIVED_SUBJECT, CONFIRMED_BODY, ...).
type EventType string

const (
	EventReceived  EventType = "RECEIVED"
	EventConfirmed EventType = "CONFIRMED"
	EventRejected  EventType = "REJECTED"
	EventCancelled EventType = "CANCELLED"
)

// BookingEvent is published after a booking is created or changes status.
// It carries a snapshot so consumers never need to query the ledger.
type BookingEvent struct {
	Type         EventType `json:"type"`
	Booking      Booking   `json:"booking"`
	RefundAmount *int64    `json:"refund_amount,omitempty"`
	OccurredAt   string    `json:"occurred_at"`
}
