package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// OfflineGateway is an in-process Gateway for development without provider
// credentials.  Every session completes immediately and the checkout URL is
// the success URL itself, so the client goes straight to finalization.
type OfflineGateway struct {
	mu       sync.Mutex
	sessions map[string]Session
	captured map[string]bool
	released map[string]bool
	refunds  map[string]int64
}

func NewOfflineGateway() *OfflineGateway {
	return &OfflineGateway{
		sessions: map[string]Session{},
		captured: map[string]bool{},
		released: map[string]bool{},
		refunds:  map[string]int64{},
	}
}

func (g *OfflineGateway) Authorize(_ context.Context, req CheckoutRequest) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := "cs_offline_" + uuid.NewString()
	s := Session{
		ID:              id,
		URL:             strings.ReplaceAll(req.SuccessURL, "{CHECKOUT_SESSION_ID}", id),
		State:           SessionComplete,
		PaymentIntentID: "pi_offline_" + uuid.NewString(),
	}
	g.sessions[id] = s
	return s, nil
}

func (g *OfflineGateway) SessionStatus(_ context.Context, sessionID string) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return Session{}, ErrUnknownSession
	}
	return s, nil
}

func (g *OfflineGateway) Capture(_ context.Context, paymentIntentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captured[paymentIntentID] = true
	return nil
}

func (g *OfflineGateway) Cancel(_ context.Context, paymentIntentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released[paymentIntentID] = true
	return nil
}

func (g *OfflineGateway) Refund(_ context.Context, paymentIntentID string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds[paymentIntentID] += amount
	return "re_offline_" + uuid.NewString(), nil
}

// Captured reports whether the intent was captured.
func (g *OfflineGateway) Captured(paymentIntentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captured[paymentIntentID]
}

// Released reports whether the hold on the intent was cancelled.
func (g *OfflineGateway) Released(paymentIntentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released[paymentIntentID]
}

// Refunded returns the total refunded against the intent.
func (g *OfflineGateway) Refunded(paymentIntentID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[paymentIntentID]
}
