package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/sake-tasting-reservation/internal/calendar"
	"github.com/iliyamo/sake-tasting-reservation/internal/config"
	"github.com/iliyamo/sake-tasting-reservation/internal/model"
	"github.com/iliyamo/sake-tasting-reservation/internal/payment"
	"github.com/iliyamo/sake-tasting-reservation/internal/repository"
)

var jst = time.FixedZone("JST", 9*60*60)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var errProviderTimeout = errors.New("provider timeout")

type fakeGateway struct {
	mu sync.Mutex
	// state given to new sessions; complete when empty
	next     payment.SessionState
	sessions map[string]payment.Session
	// statusFailures > 0 fails that many SessionStatus calls, -1 fails all
	statusFailures int
	statusCalls    int
	authorized     int

	captureErr, cancelErr, refundErr error
	captured, released               []string
	refunds                          map[string]int64
	seq                              int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]payment.Session{}, refunds: map[string]int64{}}
}

func (g *fakeGateway) Authorize(_ context.Context, req payment.CheckoutRequest) (payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorized++
	g.seq++
	state := g.next
	if state == "" {
		state = payment.SessionComplete
	}
	s := payment.Session{
		ID:              fmt.Sprintf("cs_test_%d", g.seq),
		URL:             fmt.Sprintf("https://pay.example/cs_test_%d", g.seq),
		State:           state,
		PaymentIntentID: fmt.Sprintf("pi_test_%d", g.seq),
	}
	g.sessions[s.ID] = s
	return s, nil
}

func (g *fakeGateway) SessionStatus(_ context.Context, id string) (payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusFailures != 0 {
		if g.statusFailures > 0 {
			g.statusFailures--
		}
		return payment.Session{}, errProviderTimeout
	}
	s, ok := g.sessions[id]
	if !ok {
		return payment.Session{}, payment.ErrUnknownSession
	}
	return s, nil
}

func (g *fakeGateway) setState(id string, state payment.SessionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sessions[id]
	s.ID = id
	s.State = state
	if s.PaymentIntentID == "" {
		s.PaymentIntentID = "pi_" + id
	}
	g.sessions[id] = s
}

func (g *fakeGateway) Capture(_ context.Context, pi string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.captureErr != nil {
		return g.captureErr
	}
	g.captured = append(g.captured, pi)
	return nil
}

func (g *fakeGateway) Cancel(_ context.Context, pi string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.released = append(g.released, pi)
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, pi string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds[pi] += amount
	return "re_" + pi, nil
}

func (g *fakeGateway) authorizeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorized
}

type failingCatalog struct{}

func (failingCatalog) ListSlots(context.Context, time.Time, time.Time) ([]model.Slot, error) {
	return nil, errors.New("calendar down")
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.BookingEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev model.BookingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) count(typ model.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Type == typ {
			c++
		}
	}
	return c
}

type harness struct {
	svc   *BookingService
	store *repository.MemoryStore
	gw    *fakeGateway
	notes *recordingNotifier
	clock *clock
	cache *MonthCache

	seeded int
}

// newHarness builds a service over the memory store with three daily slots
// (11:00, 14:00, 17:00) and "now" fixed at 2024-05-01 10:00 JST.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		store: repository.NewMemoryStore(),
		gw:    newFakeGateway(),
		notes: &recordingNotifier{},
		clock: &clock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, jst)},
	}
	h.cache = NewMonthCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "test"}, nil, nil)
	h.cache.now = h.clock.Now
	weekly := config.WeeklySlots{Times: []string{"11:00", "14:00", "17:00"}}
	opts.Location = jst
	opts.Now = h.clock.Now
	h.svc = NewBookingService(Deps{
		Bookings: h.store.Bookings(),
		Pending:  h.store.Pending(),
		Catalog:  calendar.NewWeeklyCatalog(weekly, jst),
		Gateway:  h.gw,
		Notifier: h.notes,
		Cache:    h.cache,
	}, opts)
	h.svc.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func request(kind model.ReservationKind, date, slot string, adults int, price int64) model.ReservationRequest {
	return model.ReservationRequest{
		Kind:           kind,
		Date:           date,
		Time:           slot,
		GuestCounts:    model.GuestCounts{Adults: adults},
		TotalPrice:     price,
		Representative: model.Guest{FirstName: "Hanako", LastName: "Sato", Email: "hanako@example.com"},
		ReturnURL:      "https://sake.example/book",
	}
}

// seed stores a booking directly in the ledger.
func (h *harness) seed(t *testing.T, b model.Booking) *model.Booking {
	t.Helper()
	if b.ID == "" {
		h.seeded++
		b.ID = fmt.Sprintf("bk_seed_%d", h.seeded)
	}
	if b.Status == "" {
		b.Status = model.StatusRequested
	}
	if b.Representative.LastName == "" {
		b.Representative = model.Guest{LastName: "Sato", Email: "hanako@example.com"}
	}
	b.CreatedAt = h.clock.Now().UTC()
	if err := h.store.Bookings().Insert(context.Background(), &b); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return &b
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("want %s, got nil error", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("want %s, got %s (%v)", code, got, err)
	}
}
