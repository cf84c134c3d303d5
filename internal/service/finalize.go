package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
	"github.com/iliyamo/sake-tasting-reservation/internal/payment"
	"github.com/iliyamo/sake-tasting-reservation/internal/repository"
)

// FinalizeResult is returned by Finalize.
type FinalizeResult struct {
	BookingID        string `json:"id"`
	AlreadyFinalized bool   `json:"alreadyFinalized,omitempty"`
}

// Finalize turns a completed checkout session into exactly one REQUESTED
// booking.  The client may report the same session any number of times,
// concurrently or after a crash: every call after the first returns the
// existing booking with AlreadyFinalized set and publishes nothing.
//
// The booking is written before the pending authorization is deleted, so a
// failure in between leaves a booking plus a stale pending row, never a
// paid session with no booking.
func (s *BookingService) Finalize(ctx context.Context, sessionID string) (FinalizeResult, error) {
	if sessionID == "" {
		return FinalizeResult{}, errorf(CodeInvalidRequest, "sessionId is required")
	}
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	sess, err := s.awaitAuthorization(ctx, sessionID)
	if err != nil {
		return FinalizeResult{}, err
	}

	if b, err := s.bookings.FindBySession(ctx, sessionID); err == nil {
		// A crash after the insert can leave the pending row behind.
		if err := s.pending.Delete(ctx, sessionID); err != nil {
			s.log.Warn("delete pending authorization failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return FinalizeResult{BookingID: b.ID, AlreadyFinalized: true}, nil
	} else if !errors.Is(err, repository.ErrBookingNotFound) {
		return FinalizeResult{}, fmt.Errorf("find booking by session: %w", err)
	}

	p, err := s.pending.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrPendingNotFound) {
		s.log.Error("authorized payment has no pending reservation",
			zap.String("session_id", sessionID), zap.String("payment_intent_id", sess.PaymentIntentID))
		return FinalizeResult{}, errorf(CodeDataNotFound, "no reservation data for session %s", sessionID)
	}
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("load pending authorization: %w", err)
	}

	b := newBooking(p.Request, s.opts.Now())
	b.PaymentSessionID = sessionID
	b.PaymentIntentID = sess.PaymentIntentID
	if err := s.bookings.Insert(ctx, b); err != nil {
		if errors.Is(err, repository.ErrDuplicateSession) {
			existing, ferr := s.bookings.FindBySession(ctx, sessionID)
			if ferr != nil {
				return FinalizeResult{}, fmt.Errorf("re-read booking after duplicate insert: %w", ferr)
			}
			return FinalizeResult{BookingID: existing.ID, AlreadyFinalized: true}, nil
		}
		s.log.Error("persist finalized booking failed", zap.String("session_id", sessionID), zap.Error(err))
		return FinalizeResult{}, fmt.Errorf("insert booking: %w", err)
	}

	if err := s.pending.Delete(ctx, sessionID); err != nil {
		s.log.Warn("delete pending authorization failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	s.warnIfOverbooked(ctx, b)
	s.log.Info("booking finalized", zap.String("booking_id", b.ID), zap.String("session_id", sessionID),
		zap.String("slot", b.SlotKey()))
	s.cache.InvalidateDate(ctx, b.Date)
	s.notify(ctx, model.EventReceived, b, nil)
	return FinalizeResult{BookingID: b.ID}, nil
}

// awaitAuthorization polls the session until the provider reports it
// complete.  An expired session stops the poll immediately.
func (s *BookingService) awaitAuthorization(ctx context.Context, sessionID string) (payment.Session, error) {
	var sess payment.Session
	res, err := poll(ctx, s.opts.FinalizeAttempts, s.opts.FinalizeDelay, s.sleep, func(ctx context.Context) (bool, error) {
		got, err := s.gateway.SessionStatus(ctx, sessionID)
		if errors.Is(err, payment.ErrUnknownSession) {
			return false, errorf(CodeNotFound, "unknown payment session %s", sessionID)
		}
		if err != nil {
			s.log.Debug("session status failed", zap.String("session_id", sessionID), zap.Error(err))
			return false, err
		}
		sess = got
		switch got.State {
		case payment.SessionComplete:
			return true, nil
		case payment.SessionExpired:
			return false, errorf(CodePaymentExpired, "payment session %s expired", sessionID)
		}
		return false, nil
	})
	switch {
	case err != nil:
		return sess, err
	case res.Done:
		return sess, nil
	case res.Failures == res.Attempts:
		return sess, NewError(CodeUpstreamUnavailable, "payment provider unavailable", res.LastErr)
	}
	return sess, errorf(CodePaymentNotCompleted, "payment for session %s is not completed", sessionID)
}

// warnIfOverbooked logs when a finalized booking breaks the admission rule.
// Pending authorizations do not reserve seats, so two paid requests can
// race for the last seats; staff resolve that by hand.
func (s *BookingService) warnIfOverbooked(ctx context.Context, b *model.Booking) {
	bookings, err := s.bookings.ListByDate(ctx, b.Date)
	if err != nil {
		return
	}
	others := bookings[:0]
	for _, o := range bookings {
		if o.ID != b.ID {
			others = append(others, o)
		}
	}
	if snap := snapshotOf(others, b.Time); !snap.Admits(b.Kind, b.GuestCounts.Total()) {
		s.log.Warn("finalized booking exceeds slot capacity",
			zap.String("booking_id", b.ID), zap.String("slot", b.SlotKey()),
			zap.Int("admitted", snap.AdmittedSoFar), zap.Bool("exclusive", snap.ExclusiveHeld))
	}
}
