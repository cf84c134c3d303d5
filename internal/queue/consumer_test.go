package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
	"github.com/iliyamo/sake-tasting-reservation/internal/notification"
	"github.com/iliyamo/sake-tasting-reservation/internal/repository"
)

type memMailer struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (m *memMailer) Send(_ context.Context, msg notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newTestConsumer(m notification.Mailer) *Consumer {
	tpl := notification.NewTemplates(repository.NewMemoryStore().Settings(), "staff@example.com")
	return NewConsumer("", tpl, m, zap.NewNop())
}

func TestInlineNotifierDeliversThroughConsumer(t *testing.T) {
	m := &memMailer{}
	n := NewInlineNotifier(newTestConsumer(m))
	refund := int64(5000)
	ev := model.BookingEvent{
		Type: model.EventCancelled,
		Booking: model.Booking{
			ID: "bk_1", Kind: model.KindPrivate, Date: "2024-05-10", Time: "11:00",
			Representative: model.Guest{LastName: "Sato", Email: "sato@example.com"},
		},
		RefundAmount: &refund,
	}
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("sent %d messages", len(m.sent))
	}
	if m.sent[0].To != "sato@example.com" || m.sent[0].Subject != "Reservation Cancelled" {
		t.Fatalf("message %+v", m.sent[0])
	}
}

func TestHandleRejectsMalformedEvents(t *testing.T) {
	c := newTestConsumer(&memMailer{})
	for _, body := range []string{`not json`, `{}`, `{"type":"RECEIVED","booking":{}}`} {
		if err := c.Handle(context.Background(), []byte(body)); err == nil {
			t.Errorf("Handle(%s) accepted", body)
		}
	}
	if err := c.Handle(context.Background(), []byte(`{"type":"SHIPPED","booking":{"id":"bk_1"}}`)); err == nil {
		t.Error("unknown event type accepted")
	}
}

func TestHandleReportsMailerFailure(t *testing.T) {
	boom := errors.New("smtp down")
	c := newTestConsumer(&memMailer{err: boom})
	body := []byte(`{"type":"RECEIVED","booking":{"id":"bk_1","representative":{"lastName":"Sato","email":"s@example.com"}}}`)
	if err := c.Handle(context.Background(), body); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}
