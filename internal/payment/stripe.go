package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway implements Gateway with Stripe Checkout and a manually
// captured PaymentIntent.
type StripeGateway struct {
	api         *client.API
	currency    string
	productName string
}

// NewStripeGateway returns a gateway using its own API client, so the
// package-level stripe.Key is never touched.  timeout bounds every call.
func NewStripeGateway(secretKey, currency, productName string, timeout time.Duration) *StripeGateway {
	httpClient := &http.Client{Timeout: timeout}
	return &StripeGateway{
		api:         client.New(secretKey, stripe.NewBackends(httpClient)),
		currency:    currency,
		productName: productName,
	}
}

func (g *StripeGateway) Authorize(ctx context.Context, req CheckoutRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(g.productName),
				},
				UnitAmount: stripe.Int64(req.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		},
	}
	if req.Description != "" {
		params.LineItems[0].PriceData.ProductData.Description = stripe.String(req.Description)
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return toSession(s), nil
}

func (g *StripeGateway) SessionStatus(ctx context.Context, sessionID string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return Session{}, ErrUnknownSession
		}
		return Session{}, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	return toSession(s), nil
}

func (g *StripeGateway) Capture(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Capture(paymentIntentID, params); err != nil {
		return fmt.Errorf("stripe: capture %s: %w", paymentIntentID, err)
	}
	return nil
}

func (g *StripeGateway) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(paymentIntentID, params); err != nil {
		return fmt.Errorf("stripe: cancel %s: %w", paymentIntentID, err)
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string, amount int64) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	r, err := g.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: refund %s: %w", paymentIntentID, err)
	}
	return r.ID, nil
}

// toSession treats a paid session as complete even if Stripe has not yet
// flipped the session status.
func toSession(s *stripe.CheckoutSession) Session {
	out := Session{ID: s.ID, URL: s.URL, State: SessionOpen}
	switch {
	case s.Status == stripe.CheckoutSessionStatusComplete,
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		out.State = SessionComplete
	case s.Status == stripe.CheckoutSessionStatusExpired:
		out.State = SessionExpired
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}
