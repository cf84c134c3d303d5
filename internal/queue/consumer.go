package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/notification"
)

// Consumer reads BookingEventsQueue, renders each event with the current
// templates and hands the messages to a Mailer.
type Consumer struct {
	url       string
	queue     string
	templates *notification.Templates
	mailer    notification.Mailer
	log       *zap.Logger
}

func NewConsumer(url string, templates *notification.Templates, mailer notification.Mailer, log *zap.Logger) *Consumer {
	return &Consumer{url: url, queue: BookingEventsQueue, templates: templates, mailer: mailer, log: log}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.  A message that cannot be handled is rejected without
// requeue so one bad event cannot spin the loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("booking-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !wait(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("booking-consumer: consume loop ended, reconnecting", zap.Error(err))
		if !wait(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.log.Warn("booking-consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(ctx, d.Body); err != nil {
			c.log.Error("booking-consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle renders and sends the messages for one encoded event.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	ev, err := decodeEvent(body)
	if err != nil {
		return err
	}
	msgs, err := c.templates.Compose(ctx, ev)
	if err != nil {
		return fmt.Errorf("compose %s for %s: %w", ev.Type, ev.Booking.ID, err)
	}
	for _, m := range msgs {
		if err := c.mailer.Send(ctx, m); err != nil {
			return fmt.Errorf("send to %s: %w", m.To, err)
		}
	}
	c.log.Info("booking notification sent", zap.String("booking_id", ev.Booking.ID),
		zap.String("event", string(ev.Type)), zap.Int("messages", len(msgs)))
	return nil
}
