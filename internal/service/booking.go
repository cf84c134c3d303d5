package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/calendar"
	"github.com/iliyamo/sake-tasting-reservation/internal/model"
	"github.com/iliyamo/sake-tasting-reservation/internal/payment"
	"github.com/iliyamo/sake-tasting-reservation/internal/repository"
)

// Refund policies for cancelling a confirmed booking.
const (
	RefundManual = "manual"
	RefundAuto   = "auto"
)

// Deps are the collaborators of BookingService.  Notifier and Cache are
// optional.
type Deps struct {
	Bookings BookingStore
	Pending  PendingStore
	Catalog  calendar.Catalog
	Gateway  payment.Gateway
	Notifier Notifier
	Cache    *MonthCache
	Logger   *zap.Logger
}

// Options tune the engine.  Zero values fall back to the defaults noted on
// each field.
type Options struct {
	Location         *time.Location // venue time zone, UTC when nil
	RefundPolicy     string         // RefundManual when empty
	StrictPricing    bool
	FinalizeAttempts int           // 5 when zero
	FinalizeDelay    time.Duration // no delay when zero
	Now              func() time.Time
}

// BookingService is the booking admission and payment settlement engine.
// All mutating operations take an in-process lock keyed by slot, payment
// session or booking id before re-reading the ledger, and the ledger's
// conditional writes catch anything that still slips through.
type BookingService struct {
	bookings BookingStore
	pending  PendingStore
	catalog  calendar.Catalog
	gateway  payment.Gateway
	notifier Notifier
	cache    *MonthCache
	log      *zap.Logger
	opts     Options
	sleep    func(context.Context, time.Duration) error

	slotLocks    keyedMutex
	sessionLocks keyedMutex
	bookingLocks keyedMutex
}

// NewBookingService wires the engine.
func NewBookingService(d Deps, opts Options) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RefundPolicy == "" {
		opts.RefundPolicy = RefundManual
	}
	if opts.FinalizeAttempts <= 0 {
		opts.FinalizeAttempts = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &BookingService{
		bookings: d.Bookings,
		pending:  d.Pending,
		catalog:  d.Catalog,
		gateway:  d.Gateway,
		notifier: d.Notifier,
		cache:    d.Cache,
		log:      d.Logger,
		opts:     opts,
		sleep:    sleepCtx,
	}
}

// CreateResult is returned by CreateBooking.  Exactly one of ID (zero
// price, booking stored directly) and CheckoutURL (payment required) is set.
type CreateResult struct {
	ID          string `json:"id,omitempty"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

// CreateBooking admits a reservation request.  The slot must exist in the
// catalog and have room before any payment is attempted.  Free requests are
// stored at once as REQUESTED; priced requests open a checkout session with
// a manual-capture hold and are parked as a pending authorization until
// the client finalizes them.
func (s *BookingService) CreateBooking(ctx context.Context, req model.ReservationRequest) (CreateResult, error) {
	if err := s.validateRequest(req); err != nil {
		return CreateResult{}, err
	}
	if s.opts.StrictPricing {
		if q := QuotePrice(req.Kind, req.GuestCounts); q.Total != req.TotalPrice {
			return CreateResult{}, errorf(CodePriceMismatch, "total %d does not match quote %d", req.TotalPrice, q.Total)
		}
	}

	slot := model.Slot{Date: req.Date, Time: req.Time}
	unlock := s.slotLocks.Lock(slot.Key())
	defer unlock()

	if err := s.admit(ctx, req); err != nil {
		return CreateResult{}, err
	}

	if req.TotalPrice == 0 {
		b := newBooking(req, s.opts.Now())
		if err := s.bookings.Insert(ctx, b); err != nil {
			return CreateResult{}, fmt.Errorf("insert booking: %w", err)
		}
		s.log.Info("booking created without payment", zap.String("booking_id", b.ID), zap.String("slot", slot.Key()))
		s.cache.InvalidateDate(ctx, b.Date)
		s.notify(ctx, model.EventReceived, b, nil)
		return CreateResult{ID: b.ID}, nil
	}

	sess, err := s.gateway.Authorize(ctx, payment.CheckoutRequest{
		Amount:      req.TotalPrice,
		Email:       req.Representative.Email,
		Description: fmt.Sprintf("%s %s %s (%d guests)", req.Kind, req.Date, req.Time, req.GuestCounts.Total()),
		SuccessURL:  withQuery(req.ReturnURL, "status=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:   withQuery(req.ReturnURL, "status=cancel"),
		Metadata: map[string]string{
			"type": string(req.Kind),
			"date": req.Date,
			"time": req.Time,
		},
	})
	if err != nil {
		return CreateResult{}, NewError(CodeUpstreamUnavailable, "payment provider unavailable", err)
	}
	p := &model.PendingAuthorization{SessionID: sess.ID, Request: req, CreatedAt: s.opts.Now().UTC()}
	if err := s.pending.Create(ctx, p); err != nil {
		s.log.Error("store pending authorization failed", zap.String("session_id", sess.ID), zap.Error(err))
		return CreateResult{}, fmt.Errorf("store pending authorization: %w", err)
	}
	s.log.Info("payment authorization started", zap.String("session_id", sess.ID), zap.String("slot", slot.Key()),
		zap.Int64("amount", req.TotalPrice))
	return CreateResult{CheckoutURL: sess.URL, SessionID: sess.ID}, nil
}

// admit checks that the slot exists and can take the request.  A catalog
// failure rejects the request rather than admitting blind.
func (s *BookingService) admit(ctx context.Context, req model.ReservationRequest) error {
	times, err := calendar.DaySlots(ctx, s.catalog, req.Date, s.opts.Location)
	if err != nil {
		return NewError(CodeUpstreamUnavailable, "slot catalog unavailable", err)
	}
	if !slices.Contains(times, req.Time) {
		return errorf(CodeSlotUnavailable, "no tasting at %s %s", req.Date, req.Time)
	}
	snap, err := s.Evaluate(ctx, req.Date, req.Time)
	if err != nil {
		return err
	}
	if !snap.Admits(req.Kind, req.GuestCounts.Total()) {
		return errorf(CodeSlotFull, "slot %s %s cannot take %d more guests", req.Date, req.Time, req.GuestCounts.Total())
	}
	return nil
}

func (s *BookingService) validateRequest(req model.ReservationRequest) error {
	if !req.Kind.Valid() {
		return errorf(CodeInvalidRequest, "type must be PRIVATE or GROUP")
	}
	day, err := time.ParseInLocation(model.DateLayout, req.Date, s.opts.Location)
	if err != nil {
		return errorf(CodeInvalidRequest, "date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(model.TimeLayout, req.Time); err != nil {
		return errorf(CodeInvalidRequest, "time must be HH:MM")
	}
	now := s.opts.Now().In(s.opts.Location)
	if day.Before(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.opts.Location)) {
		return errorf(CodeInvalidRequest, "date %s is in the past", req.Date)
	}
	c := req.GuestCounts
	if c.Adults < 0 || c.AdultsNonAlc < 0 || c.Children < 0 || c.Infants < 0 {
		return errorf(CodeInvalidRequest, "guest counts must not be negative")
	}
	if c.Total() == 0 {
		return errorf(CodeInvalidRequest, "at least one guest is required")
	}
	if strings.TrimSpace(req.Representative.LastName) == "" {
		return errorf(CodeInvalidRequest, "representative last name is required")
	}
	if _, err := mail.ParseAddress(req.Representative.Email); err != nil {
		return errorf(CodeInvalidRequest, "representative email is invalid")
	}
	if req.TotalPrice < 0 {
		return errorf(CodeInvalidRequest, "totalPrice must not be negative")
	}
	if req.TotalPrice > 0 {
		u, err := url.Parse(req.ReturnURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errorf(CodeInvalidRequest, "returnUrl must be an absolute http(s) URL")
		}
	}
	return nil
}

func newBooking(req model.ReservationRequest, now time.Time) *model.Booking {
	guests := req.Guests
	if guests == nil {
		guests = []model.Guest{}
	}
	return &model.Booking{
		ID:             "bk_" + uuid.NewString(),
		Kind:           req.Kind,
		Date:           req.Date,
		Time:           req.Time,
		GuestCounts:    req.GuestCounts,
		TotalPrice:     req.TotalPrice,
		Representative: req.Representative,
		Guests:         guests,
		DietaryNotes:   req.DietaryNotes,
		Status:         model.StatusRequested,
		CreatedAt:      now.UTC(),
	}
}

// withQuery appends a raw query string, leaving placeholders unescaped.
func withQuery(base, query string) string {
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}

// Availability lists every slot on date with its availability for kind.
func (s *BookingService) Availability(ctx context.Context, date string, kind model.ReservationKind) ([]model.SlotAvailability, error) {
	if !kind.Valid() {
		return nil, errorf(CodeInvalidRequest, "type must be PRIVATE or GROUP")
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, errorf(CodeInvalidRequest, "date must be YYYY-MM-DD")
	}
	times, err := calendar.DaySlots(ctx, s.catalog, date, s.opts.Location)
	if err != nil {
		return nil, NewError(CodeUpstreamUnavailable, "slot catalog unavailable", err)
	}
	bookings, err := s.bookings.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list bookings for %s: %w", date, err)
	}
	out := make([]model.SlotAvailability, 0, len(times))
	for _, t := range times {
		snap := snapshotOf(bookings, t)
		out = append(out, model.SlotAvailability{Time: t, Available: snap.Available(kind), CurrentGroupCount: snap.AdmittedSoFar})
	}
	return out, nil
}

// MonthStatus summarises every date of a month that has at least one slot.
// Results are cached unless force is set.
func (s *BookingService) MonthStatus(ctx context.Context, year, month int, kind model.ReservationKind, force bool) (MonthStatus, error) {
	if !kind.Valid() {
		return nil, errorf(CodeInvalidRequest, "type must be PRIVATE or GROUP")
	}
	if month < 1 || month > 12 || year < 2000 || year > 9999 {
		return nil, errorf(CodeInvalidRequest, "invalid year/month %d/%d", year, month)
	}
	return s.cache.Load(ctx, kind, year, month, force, func(ctx context.Context) (MonthStatus, error) {
		return s.computeMonth(ctx, year, month, kind)
	})
}

func (s *BookingService) computeMonth(ctx context.Context, year, month int, kind model.ReservationKind) (MonthStatus, error) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.opts.Location)
	slots, err := s.catalog.ListSlots(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, NewError(CodeUpstreamUnavailable, "slot catalog unavailable", err)
	}
	bookings, err := s.bookings.ListByMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list bookings for %04d-%02d: %w", year, month, err)
	}
	byDate := map[string][]model.Booking{}
	for _, b := range bookings {
		byDate[b.Date] = append(byDate[b.Date], b)
	}
	out := MonthStatus{}
	for _, slot := range slots {
		snap := snapshotOf(byDate[slot.Date], slot.Time)
		day := out[slot.Date]
		sa := model.SlotAvailability{Time: slot.Time, Available: snap.Available(kind), CurrentGroupCount: snap.AdmittedSoFar}
		day.Slots = append(day.Slots, sa)
		day.Available = day.Available || sa.Available
		out[slot.Date] = day
	}
	return out, nil
}

// ListBookings returns every booking, newest first.
func (s *BookingService) ListBookings(ctx context.Context) ([]model.Booking, error) {
	return s.bookings.List(ctx)
}

// GetBooking returns one booking.
func (s *BookingService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return nil, errorf(CodeNotFound, "booking %s not found", id)
	}
	return b, err
}

// DeleteBooking hard-removes a booking.  No payment action is taken; held
// or captured money must be handled through a status change first.
func (s *BookingService) DeleteBooking(ctx context.Context, id string) error {
	if id == "" {
		return errorf(CodeInvalidRequest, "id is required")
	}
	unlock := s.bookingLocks.Lock(id)
	defer unlock()
	b, err := s.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if err := s.bookings.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return errorf(CodeNotFound, "booking %s not found", id)
		}
		return fmt.Errorf("delete booking: %w", err)
	}
	s.log.Info("booking deleted", zap.String("booking_id", id), zap.String("status", string(b.Status)))
	s.cache.InvalidateDate(ctx, b.Date)
	return nil
}

// PurgeResult counts what PurgePending did with each stale session.
type PurgeResult struct {
	Dropped   int
	Finalized int
	Kept      int
}

// PurgePending settles pending authorizations older than age.  Each
// session is checked with the payment provider first: expired or unknown
// sessions are dropped, complete ones are finalized into a booking, and
// open ones or ones the provider cannot report on stay for the next run.
// A paid session's reservation data is never discarded.
func (s *BookingService) PurgePending(ctx context.Context, age time.Duration) (PurgeResult, error) {
	var res PurgeResult
	ids, err := s.pending.ListOlderThan(ctx, s.opts.Now().Add(-age))
	if err != nil {
		return res, fmt.Errorf("list stale pending authorizations: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sess, err := s.gateway.SessionStatus(ctx, id)
		switch {
		case errors.Is(err, payment.ErrUnknownSession):
		case err != nil:
			s.log.Warn("stale session status failed", zap.String("session_id", id), zap.Error(err))
			res.Kept++
			continue
		case sess.State == payment.SessionExpired:
		case sess.State == payment.SessionComplete:
			fr, ferr := s.Finalize(ctx, id)
			if ferr != nil {
				s.log.Error("authorized session left unfinalized", zap.String("session_id", id), zap.Error(ferr))
				res.Kept++
				continue
			}
			s.log.Warn("finalized abandoned authorized session", zap.String("session_id", id),
				zap.String("booking_id", fr.BookingID), zap.Bool("already_finalized", fr.AlreadyFinalized))
			res.Finalized++
			continue
		default:
			res.Kept++
			continue
		}

		unlock := s.sessionLocks.Lock(id)
		err = s.pending.Delete(ctx, id)
		unlock()
		if err != nil {
			s.log.Warn("drop stale pending authorization failed", zap.String("session_id", id), zap.Error(err))
			res.Kept++
			continue
		}
		res.Dropped++
	}
	return res, nil
}

// notify publishes an event.  Failures are logged and swallowed.
func (s *BookingService) notify(ctx context.Context, typ model.EventType, b *model.Booking, refund *int64) {
	ev := model.BookingEvent{
		Type:         typ,
		Booking:      *b,
		RefundAmount: refund,
		OccurredAt:   s.opts.Now().UTC().Format(time.RFC3339),
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn("booking notification failed", zap.String("booking_id", b.ID),
			zap.String("event", string(typ)), zap.Error(err))
	}
}
