// Package payment talks to the card payment provider.  A booking's money
// moves in two steps: Authorize opens a checkout session that places a hold
// on the card, and staff later Capture, Cancel (release) or Refund it.
package payment

import (
	"context"
	"errors"
)

// SessionState is the provider-side state of a checkout session.
type SessionState string

const (
	SessionOpen     SessionState = "open"
	SessionComplete SessionState = "complete"
	SessionExpired  SessionState = "expired"
)

// ErrUnknownSession is returned by SessionStatus for ids the provider has
// never issued.
var ErrUnknownSession = errors.New("unknown payment session")

// CheckoutRequest describes the hold to place on the guest's card.
// SuccessURL may contain the literal {CHECKOUT_SESSION_ID}, which the
// provider replaces with the session id on redirect.
type CheckoutRequest struct {
	Amount      int64
	Email       string
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// Session is the subset of a checkout session the booking engine needs.
type Session struct {
	ID              string
	URL             string
	State           SessionState
	PaymentIntentID string
}

// Gateway is the payment provider as seen by the booking engine.
type Gateway interface {
	Authorize(ctx context.Context, req CheckoutRequest) (Session, error)
	SessionStatus(ctx context.Context, sessionID string) (Session, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
	Refund(ctx context.Context, paymentIntentID string, amount int64) (string, error)
}
