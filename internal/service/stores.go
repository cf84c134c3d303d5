package service

import (
	"context"
	"time"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// BookingStore is the booking ledger.  Implemented by
// repository.BookingRepo and repository.MemoryBookings.
type BookingStore interface {
	Insert(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	FindBySession(ctx context.Context, sessionID string) (*model.Booking, error)
	ListByDate(ctx context.Context, date string) ([]model.Booking, error)
	ListByMonth(ctx context.Context, year, month int) ([]model.Booking, error)
	List(ctx context.Context) ([]model.Booking, error)
	Update(ctx context.Context, b *model.Booking, expected model.BookingStatus) error
	Delete(ctx context.Context, id string) error
}

// PendingStore holds reservation payloads between card authorization and
// finalization.
type PendingStore interface {
	Create(ctx context.Context, p *model.PendingAuthorization) error
	Get(ctx context.Context, sessionID string) (*model.PendingAuthorization, error)
	Delete(ctx context.Context, sessionID string) error
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Notifier publishes booking lifecycle events.  Failures never undo the
// operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev model.BookingEvent) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, model.BookingEvent) error { return nil }
