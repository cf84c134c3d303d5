package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
	"github.com/iliyamo/sake-tasting-reservation/internal/repository"
)

// transitions lists the legal status moves.  REJECTED and CANCELLED are
// terminal.
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.StatusRequested: {model.StatusConfirmed, model.StatusRejected},
	model.StatusConfirmed: {model.StatusCancelled},
}

// CanTransition reports whether a booking may move from one status to
// another.  Staying in the same status is not a transition.
func CanTransition(from, to model.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusUpdate is a staff change to a booking.  Nil fields are left alone;
// at least one must be set.  RefundAmount is what the operator expects to
// refund on cancellation; the fee schedule is authoritative and a
// differing value is only logged.
type StatusUpdate struct {
	ID           string
	Status       *model.BookingStatus
	OnSite       *model.OnSiteStatus
	Notes        *string
	RefundAmount *int64
}

// UpdateStatus applies a staff change.  For a status transition the payment
// side effect runs first and the new status is written only after it
// succeeded, or, for a release on rejection, after it was attempted.  The
// write is conditional on the status read under the booking lock.
func (s *BookingService) UpdateStatus(ctx context.Context, u StatusUpdate) (*model.Booking, error) {
	if u.ID == "" {
		return nil, errorf(CodeInvalidRequest, "id is required")
	}
	if u.Status == nil && u.OnSite == nil && u.Notes == nil {
		return nil, errorf(CodeInvalidRequest, "nothing to update")
	}
	if u.OnSite != nil && !u.OnSite.Valid() {
		return nil, errorf(CodeInvalidRequest, "secondaryStatus must be ARRIVED, NO_SHOW or empty")
	}

	unlock := s.bookingLocks.Lock(u.ID)
	defer unlock()

	b, err := s.GetBooking(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	from := b.Status
	to := from
	if u.Status != nil {
		to = *u.Status
		if !CanTransition(from, to) {
			return nil, errorf(CodeInvalidTransition, "cannot move booking from %s to %s", from, to)
		}
	}
	if u.OnSite != nil && to != model.StatusConfirmed {
		return nil, errorf(CodeInvalidTransition, "on-site status requires a CONFIRMED booking, booking is %s", to)
	}

	var event model.EventType
	if to != from {
		if event, err = s.applyTransition(ctx, b, to, u.RefundAmount); err != nil {
			return nil, err
		}
		b.Status = to
	}
	if u.OnSite != nil {
		b.OnSiteStatus = *u.OnSite
	}
	if u.Notes != nil {
		b.AdminNotes = *u.Notes
	}

	if err := s.bookings.Update(ctx, b, from); err != nil {
		if to != from {
			s.log.Error("payment side effect applied but status write failed",
				zap.String("booking_id", b.ID), zap.String("from", string(from)), zap.String("to", string(to)),
				zap.Error(err))
		}
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, NewError(CodeConflict, "booking changed concurrently", err)
		case errors.Is(err, repository.ErrBookingNotFound):
			return nil, errorf(CodeNotFound, "booking %s not found", b.ID)
		}
		return nil, fmt.Errorf("update booking: %w", err)
	}

	if to != from {
		s.log.Info("booking status changed", zap.String("booking_id", b.ID),
			zap.String("from", string(from)), zap.String("to", string(to)))
		s.cache.InvalidateDate(ctx, b.Date)
		s.notify(ctx, event, b, b.RefundAmount)
	}
	return b, nil
}

// applyTransition performs the payment side effect of moving b to status
// to and records its outcome on b.  b.Status is not changed here.
func (s *BookingService) applyTransition(ctx context.Context, b *model.Booking, to model.BookingStatus, requestedRefund *int64) (model.EventType, error) {
	now := s.opts.Now().UTC()
	switch to {
	case model.StatusConfirmed:
		if b.PaymentIntentID != "" {
			if err := s.gateway.Capture(ctx, b.PaymentIntentID); err != nil {
				s.log.Warn("capture failed", zap.String("booking_id", b.ID),
					zap.String("payment_intent_id", b.PaymentIntentID), zap.Error(err))
				return "", NewError(CodeCaptureFailed, "could not capture payment", err)
			}
		}
		b.ConfirmedAt = &now
		return model.EventConfirmed, nil

	case model.StatusRejected:
		if b.PaymentIntentID != "" {
			if err := s.gateway.Cancel(ctx, b.PaymentIntentID); err != nil {
				b.PaymentFollowUp = "release of payment hold failed: " + err.Error()
				s.log.Warn("release on reject failed", zap.String("booking_id", b.ID),
					zap.String("payment_intent_id", b.PaymentIntentID), zap.Error(err))
			}
		}
		return model.EventRejected, nil

	case model.StatusCancelled:
		days, err := LeadDays(s.opts.Now(), b.Date, s.opts.Location)
		if err != nil {
			return "", NewError(CodeInvalidRequest, "booking date is malformed", err)
		}
		fee, refund := CancellationFee(b.TotalPrice, days)
		if requestedRefund != nil && *requestedRefund != refund {
			s.log.Info("requested refund differs from fee schedule",
				zap.String("booking_id", b.ID), zap.Int64("requested", *requestedRefund), zap.Int64("scheduled", refund))
		}
		if s.opts.RefundPolicy == RefundAuto && b.PaymentIntentID != "" && refund > 0 {
			id, err := s.gateway.Refund(ctx, b.PaymentIntentID, refund)
			if err != nil {
				s.log.Warn("refund failed", zap.String("booking_id", b.ID),
					zap.String("payment_intent_id", b.PaymentIntentID), zap.Int64("refund", refund), zap.Error(err))
				return "", NewError(CodeRefundFailed, "could not refund payment", err)
			}
			b.RefundID = id
		}
		b.CancellationFee = &fee
		b.RefundAmount = &refund
		b.CancelledAt = &now
		return model.EventCancelled, nil
	}
	return "", errorf(CodeInvalidTransition, "unsupported target status %s", to)
}
