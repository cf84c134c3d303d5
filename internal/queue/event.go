// Package queue carries booking lifecycle events over RabbitMQ.  The
// publisher is called from request handlers; the consumer runs in the
// background and turns each event into e-mail.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// BookingEventsQueue is the durable queue holding model.BookingEvent
// messages encoded as JSON.
const BookingEventsQueue = "booking.events"

func decodeEvent(body []byte) (model.BookingEvent, error) {
	var ev model.BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.Booking.ID == "" {
		return ev, fmt.Errorf("event without type or booking id")
	}
	return ev, nil
}
