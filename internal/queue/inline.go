package queue

import (
	"context"
	"encoding/json"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// InlineNotifier hands events straight to a Consumer without a broker.
// Used when RABBITMQ_URL is unset.
type InlineNotifier struct{ c *Consumer }

func NewInlineNotifier(c *Consumer) *InlineNotifier { return &InlineNotifier{c: c} }

func (n *InlineNotifier) Notify(ctx context.Context, ev model.BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.c.Handle(ctx, body)
}
