package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/sake-tasting-reservation/internal/config"
	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

func groupCount(t *testing.T, ms MonthStatus, date, slot string) int {
	t.Helper()
	day, ok := ms[date]
	if !ok {
		t.Fatalf("no entry for %s", date)
	}
	for _, s := range day.Slots {
		if s.Time == slot {
			return s.CurrentGroupCount
		}
	}
	t.Fatalf("no slot %s on %s", slot, date)
	return 0
}

func TestMonthStatusCachingAndInvalidation(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	ms, err := h.svc.MonthStatus(ctx, 2024, 5, model.KindGroup, false)
	if err != nil {
		t.Fatalf("month status: %v", err)
	}
	if len(ms) != 31 {
		t.Fatalf("want 31 days, got %d", len(ms))
	}
	if !ms["2024-05-10"].Available || len(ms["2024-05-10"].Slots) != 3 {
		t.Fatalf("day %+v", ms["2024-05-10"])
	}

	// Written behind the service's back: the cached month does not see it.
	h.seed(t, model.Booking{Kind: model.KindGroup, Date: "2024-05-10", Time: "14:00", GuestCounts: model.GuestCounts{Adults: 2}})
	ms, _ = h.svc.MonthStatus(ctx, 2024, 5, model.KindGroup, false)
	if n := groupCount(t, ms, "2024-05-10", "14:00"); n != 0 {
		t.Fatalf("cached month changed without invalidation: %d", n)
	}

	ms, _ = h.svc.MonthStatus(ctx, 2024, 5, model.KindGroup, true)
	if n := groupCount(t, ms, "2024-05-10", "14:00"); n != 2 {
		t.Fatalf("forced refresh shows %d", n)
	}

	// Creating through the service invalidates both kinds.
	if _, err := h.svc.MonthStatus(ctx, 2024, 5, model.KindPrivate, false); err != nil {
		t.Fatalf("private month: %v", err)
	}
	if _, err := h.svc.CreateBooking(ctx, request(model.KindGroup, "2024-05-10", "14:00", 3, 0)); err != nil {
		t.Fatalf("create: %v", err)
	}
	ms, _ = h.svc.MonthStatus(ctx, 2024, 5, model.KindGroup, false)
	if n := groupCount(t, ms, "2024-05-10", "14:00"); n != 5 {
		t.Fatalf("group month after create shows %d", n)
	}
	ms, _ = h.svc.MonthStatus(ctx, 2024, 5, model.KindPrivate, false)
	if ms["2024-05-10"].Slots[1].Available {
		t.Fatal("private month still shows the booked slot as free")
	}
}

func TestMonthStatusRejectsBadInput(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.svc.MonthStatus(context.Background(), 2024, 13, model.KindGroup, false)
	wantCode(t, err, CodeInvalidRequest)
	_, err = h.svc.MonthStatus(context.Background(), 2024, 5, "", false)
	wantCode(t, err, CodeInvalidRequest)
}

func TestMonthCacheExpiry(t *testing.T) {
	c := NewMonthCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "t"}, nil, nil)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	loads := 0
	load := func(context.Context) (MonthStatus, error) {
		loads++
		return MonthStatus{}, nil
	}
	ctx := context.Background()

	c.Load(ctx, model.KindGroup, 2024, 5, false, load)
	c.Load(ctx, model.KindGroup, 2024, 5, false, load)
	if loads != 1 {
		t.Fatalf("loads=%d before expiry", loads)
	}
	now = now.Add(2 * time.Minute)
	c.Load(ctx, model.KindGroup, 2024, 5, false, load)
	if loads != 2 {
		t.Fatalf("loads=%d after expiry", loads)
	}
	c.Load(ctx, model.KindPrivate, 2024, 5, false, load)
	c.Load(ctx, model.KindGroup, 2024, 6, false, load)
	if loads != 4 {
		t.Fatalf("loads=%d, keys must be per kind and month", loads)
	}
}

func TestMonthCacheDropsLoadRacingInvalidation(t *testing.T) {
	c := NewMonthCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "t"}, nil, nil)
	ctx := context.Background()
	loads := 0
	racing := func(ctx context.Context) (MonthStatus, error) {
		loads++
		if loads == 1 {
			c.InvalidateDate(ctx, "2024-05-20")
		}
		return MonthStatus{}, nil
	}

	c.Load(ctx, model.KindGroup, 2024, 5, false, racing)
	c.Load(ctx, model.KindGroup, 2024, 5, false, racing)
	if loads != 2 {
		t.Fatalf("stale load was cached: loads=%d", loads)
	}
	c.Load(ctx, model.KindGroup, 2024, 5, false, racing)
	if loads != 2 {
		t.Fatalf("fresh load was not cached: loads=%d", loads)
	}
}

func TestMonthCacheDisabledAndErrors(t *testing.T) {
	var nilCache *MonthCache
	loads := 0
	load := func(context.Context) (MonthStatus, error) {
		loads++
		return MonthStatus{}, nil
	}
	ctx := context.Background()
	nilCache.Load(ctx, model.KindGroup, 2024, 5, false, load)
	nilCache.Load(ctx, model.KindGroup, 2024, 5, false, load)
	nilCache.Invalidate(ctx, 2024, 5)
	if loads != 2 {
		t.Fatalf("nil cache loads=%d", loads)
	}

	c := NewMonthCache(config.LoadCacheConfig(0), nil, nil)
	c.Load(ctx, model.KindGroup, 2024, 5, false, load)
	c.Load(ctx, model.KindGroup, 2024, 5, false, load)
	if loads != 4 {
		t.Fatalf("disabled cache loads=%d", loads)
	}

	c = NewMonthCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "t"}, nil, nil)
	boom := errors.New("boom")
	if _, err := c.Load(ctx, model.KindGroup, 2024, 5, false, func(context.Context) (MonthStatus, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("load error not returned: %v", err)
	}
	c.Load(ctx, model.KindGroup, 2024, 5, false, load)
	if loads != 5 {
		t.Fatalf("failed load was cached: loads=%d", loads)
	}
}

func TestPoll(t *testing.T) {
	noSleep := func(context.Context, time.Duration) error { return nil }
	transient := errors.New("flaky")
	calls := 0
	res, err := poll(context.Background(), 4, time.Second, noSleep, func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, transient
		}
		return true, nil
	})
	if err != nil || !res.Done || res.Failures != 2 || res.Attempts != 3 {
		t.Fatalf("res=%+v err=%v", res, err)
	}

	res, err = poll(context.Background(), 4, time.Second, noSleep, func(context.Context) (bool, error) {
		return false, errorf(CodePaymentExpired, "expired")
	})
	if !HasCode(err, CodePaymentExpired) || res.Attempts != 1 {
		t.Fatalf("coded error should stop the poll: res=%+v err=%v", res, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = poll(ctx, 3, time.Hour, sleepCtx, func(context.Context) (bool, error) { return false, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled poll returned %v", err)
	}
}
