package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

func statusPtr(s model.BookingStatus) *model.BookingStatus { return &s }

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.BookingStatus
		want     bool
	}{
		{model.StatusRequested, model.StatusConfirmed, true},
		{model.StatusRequested, model.StatusRejected, true},
		{model.StatusConfirmed, model.StatusCancelled, true},
		{model.StatusRequested, model.StatusCancelled, false},
		{model.StatusRequested, model.StatusRequested, false},
		{model.StatusConfirmed, model.StatusRejected, false},
		{model.StatusRejected, model.StatusConfirmed, false},
		{model.StatusCancelled, model.StatusConfirmed, false},
		{model.StatusCancelled, model.StatusRequested, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestConfirmCapturesPayment(t *testing.T) {
	h := newHarness(t, Options{})
	b := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-10", Time: "14:00",
		GuestCounts: model.GuestCounts{Adults: 2}, TotalPrice: 22330, PaymentIntentID: "pi_1"})

	got, err := h.svc.UpdateStatus(context.Background(), StatusUpdate{ID: b.ID, Status: statusPtr(model.StatusConfirmed)})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != model.StatusConfirmed || got.ConfirmedAt == nil {
		t.Fatalf("confirmed booking %+v", got)
	}
	if len(h.gw.captured) != 1 || h.gw.captured[0] != "pi_1" {
		t.Fatalf("captured %v", h.gw.captured)
	}
	if h.notes.count(model.EventConfirmed) != 1 {
		t.Fatal("CONFIRMED event not published")
	}
}

func TestCaptureFailureKeepsRequested(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	b := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-10", Time: "14:00",
		GuestCounts: model.GuestCounts{Adults: 2}, TotalPrice: 22330, PaymentIntentID: "pi_1"})
	h.gw.captureErr = errors.New("card declined")

	_, err := h.svc.UpdateStatus(ctx, StatusUpdate{ID: b.ID, Status: statusPtr(model.StatusConfirmed)})
	wantCode(t, err, CodeCaptureFailed)

	stored, err := h.svc.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != model.StatusRequested || stored.ConfirmedAt != nil {
		t.Fatalf("booking changed after failed capture: %+v", stored)
	}
	if len(h.notes.events) != 0 {
		t.Fatalf("events published after failed capture: %v", h.notes.events)
	}
}

func TestRejectReleaseFailureIsRecorded(t *testing.T) {
	h := newHarness(t, Options{})
	b := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-10", Time: "14:00",
		GuestCounts: model.GuestCounts{Adults: 2}, TotalPrice: 22330, PaymentIntentID: "pi_1"})
	h.gw.cancelErr = errors.New("provider unavailable")

	got, err := h.svc.UpdateStatus(context.Background(), StatusUpdate{ID: b.ID, Status: statusPtr(model.StatusRejected)})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != model.StatusRejected {
		t.Fatalf("status %s", got.Status)
	}
	if got.PaymentFollowUp == "" {
		t.Fatal("release failure not recorded on the booking")
	}
	if h.notes.count(model.EventRejected) != 1 {
		t.Fatal("REJECTED event not published")
	}
}

func TestRejectReleasesHold(t *testing.T) {
	h := newHarness(t, Options{})
	b := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-10", Time: "14:00",
		GuestCounts: model.GuestCounts{Adults: 2}, TotalPrice: 22330, PaymentIntentID: "pi_1"})

	got, err := h.svc.UpdateStatus(context.Background(), StatusUpdate{ID: b.ID, Status: statusPtr(model.StatusRejected)})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if len(h.gw.released) != 1 || got.PaymentFollowUp != "" {
		t.Fatalf("released=%v followUp=%q", h.gw.released, got.PaymentFollowUp)
	}
}

func TestCancelAppliesFeeSchedule(t *testing.T) {
	tests := []struct {
		name       string
		policy     string
		wantRefund int64 // issued through the gateway
	}{
		{"manual", RefundManual, 0},
		{"auto", RefundAuto, 7500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{RefundPolicy: tt.policy})
			b := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-15", Time: "14:00",
				GuestCounts: model.GuestCounts{Adults: 1}, TotalPrice: 10000, PaymentIntentID: "pi_1",
				Status: model.StatusConfirmed})
			asked := int64(10000)

			got, err := h.svc.UpdateStatus(context.Background(), StatusUpdate{
				ID: b.ID, Status: statusPtr(model.StatusCancelled), RefundAmount: &asked,
			})
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if got.CancellationFee == nil || *got.CancellationFee != 2500 {
				t.Fatalf("fee %v", got.CancellationFee)
			}
			if got.RefundAmount == nil || *got.RefundAmount != 7500 {
				t.Fatalf("refund %v", got.RefundAmount)
			}
			if got.CancelledAt == nil {
				t.Fatal("cancelledAt not set")
			}
			if h.gw.refunds["pi_1"] != tt.wantRefund {
				t.Fatalf("gateway refunded %d, want %d", h.gw.refunds["pi_1"], tt.wantRefund)
			}
			if (got.RefundID != "") != (tt.wantRefund > 0) {
				t.Fatalf("refund id %q", got.RefundID)
			}

			h.notes.mu.Lock()
			ev := h.notes.events[len(h.notes.events)-1]
			h.notes.mu.Unlock()
			if ev.Type != model.EventCancelled || ev.RefundAmount == nil || *ev.RefundAmount != 7500 {
				t.Fatalf("cancel event %+v", ev)
			}
		})
	}
}

func TestAutoRefundFailureKeepsConfirmed(t *testing.T) {
	h := newHarness(t, Options{RefundPolicy: RefundAuto})
	ctx := context.Background()
	b := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-06-30", Time: "14:00",
		GuestCounts: model.GuestCounts{Adults: 1}, TotalPrice: 10000, PaymentIntentID: "pi_1",
		Status: model.StatusConfirmed})
	h.gw.refundErr = errors.New("provider unavailable")

	_, err := h.svc.UpdateStatus(ctx, StatusUpdate{ID: b.ID, Status: statusPtr(model.StatusCancelled)})
	wantCode(t, err, CodeRefundFailed)
	stored, _ := h.svc.GetBooking(ctx, b.ID)
	if stored.Status != model.StatusConfirmed {
		t.Fatalf("status %s after failed refund", stored.Status)
	}
}

func TestIllegalTransitions(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	requested := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-10", Time: "14:00",
		GuestCounts: model.GuestCounts{Adults: 1}})
	rejected := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-10", Time: "11:00",
		GuestCounts: model.GuestCounts{Adults: 1}, Status: model.StatusRejected})

	_, err := h.svc.UpdateStatus(ctx, StatusUpdate{ID: requested.ID, Status: statusPtr(model.StatusCancelled)})
	wantCode(t, err, CodeInvalidTransition)
	_, err = h.svc.UpdateStatus(ctx, StatusUpdate{ID: rejected.ID, Status: statusPtr(model.StatusConfirmed)})
	wantCode(t, err, CodeInvalidTransition)

	arrived := model.OnSiteArrived
	_, err = h.svc.UpdateStatus(ctx, StatusUpdate{ID: requested.ID, OnSite: &arrived})
	wantCode(t, err, CodeInvalidTransition)

	bogus := model.OnSiteStatus("LATE")
	_, err = h.svc.UpdateStatus(ctx, StatusUpdate{ID: requested.ID, OnSite: &bogus})
	wantCode(t, err, CodeInvalidRequest)

	_, err = h.svc.UpdateStatus(ctx, StatusUpdate{ID: requested.ID})
	wantCode(t, err, CodeInvalidRequest)

	_, err = h.svc.UpdateStatus(ctx, StatusUpdate{ID: "missing", Status: statusPtr(model.StatusConfirmed)})
	wantCode(t, err, CodeNotFound)

	if len(h.gw.captured)+len(h.gw.released) != 0 {
		t.Fatal("payment side effect ran for an illegal transition")
	}
}

func TestConfirmWithOnSiteAndNotes(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	b := h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-10", Time: "14:00",
		GuestCounts: model.GuestCounts{Adults: 1}})

	arrived := model.OnSiteArrived
	notes := "window seat"
	got, err := h.svc.UpdateStatus(ctx, StatusUpdate{ID: b.ID, Status: statusPtr(model.StatusConfirmed), OnSite: &arrived, Notes: &notes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.OnSiteStatus != model.OnSiteArrived || got.AdminNotes != notes {
		t.Fatalf("booking %+v", got)
	}
	if len(h.gw.captured) != 0 {
		t.Fatal("booking without a payment intent was captured")
	}

	noShow := model.OnSiteNoShow
	got, err = h.svc.UpdateStatus(ctx, StatusUpdate{ID: b.ID, OnSite: &noShow})
	if err != nil {
		t.Fatalf("on-site update: %v", err)
	}
	if got.OnSiteStatus != model.OnSiteNoShow || got.Status != model.StatusConfirmed {
		t.Fatalf("booking %+v", got)
	}
	if h.notes.count(model.EventConfirmed) != 1 {
		t.Fatal("on-site change published a status event")
	}
}
