package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// MemoryStore is an in-process ledger with the same method sets as
// BookingRepo, PendingRepo and SettingRepo.  It backs the service when no
// database is configured and in tests.  Values are deep-copied on the way
// in and out so callers can never mutate stored rows by accident.
type MemoryStore struct {
	mu       sync.Mutex
	bookings map[string]model.Booking
	sessions map[string]string // payment session id -> booking id
	pending  map[string]model.PendingAuthorization
	settings map[string]string
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: map[string]model.Booking{},
		sessions: map[string]string{},
		pending:  map[string]model.PendingAuthorization{},
		settings: map[string]string{},
	}
}

// Bookings is the booking view of the store.
func (m *MemoryStore) Bookings() *MemoryBookings { return &MemoryBookings{m} }

// Pending is the pending-authorization view of the store.
func (m *MemoryStore) Pending() *MemoryPending { return &MemoryPending{m} }

// Settings is the settings view of the store.
func (m *MemoryStore) Settings() *MemorySettings { return &MemorySettings{m} }

func cloneBooking(b model.Booking) model.Booking {
	raw, err := json.Marshal(b)
	if err != nil {
		panic(fmt.Sprintf("clone booking: %v", err))
	}
	var out model.Booking
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("clone booking: %v", err))
	}
	return out
}

// MemoryBookings implements the booking ledger on a MemoryStore.
type MemoryBookings struct{ m *MemoryStore }

func (r *MemoryBookings) Insert(_ context.Context, b *model.Booking) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if b.PaymentSessionID != "" {
		if _, ok := r.m.sessions[b.PaymentSessionID]; ok {
			return ErrDuplicateSession
		}
	}
	if _, ok := r.m.bookings[b.ID]; ok {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	r.m.bookings[b.ID] = cloneBooking(*b)
	if b.PaymentSessionID != "" {
		r.m.sessions[b.PaymentSessionID] = b.ID
	}
	return nil
}

func (r *MemoryBookings) GetByID(_ context.Context, id string) (*model.Booking, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	out := cloneBooking(b)
	return &out, nil
}

func (r *MemoryBookings) FindBySession(_ context.Context, sessionID string) (*model.Booking, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	id, ok := r.m.sessions[sessionID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	out := cloneBooking(r.m.bookings[id])
	return &out, nil
}

func (r *MemoryBookings) ListByDate(_ context.Context, date string) ([]model.Booking, error) {
	return r.filter(func(b model.Booking) bool { return b.Date == date }, bySlot), nil
}

func (r *MemoryBookings) ListByMonth(_ context.Context, year, month int) ([]model.Booking, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	return r.filter(func(b model.Booking) bool {
		return len(b.Date) == len(model.DateLayout) && b.Date[:8] == prefix
	}, bySlot), nil
}

func (r *MemoryBookings) List(_ context.Context) ([]model.Booking, error) {
	return r.filter(func(model.Booking) bool { return true }, func(a, b model.Booking) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}), nil
}

func (r *MemoryBookings) Update(_ context.Context, b *model.Booking, expected model.BookingStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.bookings[b.ID]
	if !ok {
		return ErrBookingNotFound
	}
	if cur.Status != expected {
		return ErrConflict
	}
	r.m.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func (r *MemoryBookings) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	delete(r.m.bookings, id)
	if b.PaymentSessionID != "" {
		delete(r.m.sessions, b.PaymentSessionID)
	}
	return nil
}

func bySlot(a, b model.Booking) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (r *MemoryBookings) filter(keep func(model.Booking) bool, less func(a, b model.Booking) bool) []model.Booking {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []model.Booking{}
	for _, b := range r.m.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// MemoryPending implements the pending-authorization store on a MemoryStore.
type MemoryPending struct{ m *MemoryStore }

func (r *MemoryPending) Create(_ context.Context, p *model.PendingAuthorization) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.pending[p.SessionID]; ok {
		return ErrDuplicateSession
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.m.pending[p.SessionID] = *p
	return nil
}

func (r *MemoryPending) Get(_ context.Context, sessionID string) (*model.PendingAuthorization, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.pending[sessionID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	return &p, nil
}

func (r *MemoryPending) Delete(_ context.Context, sessionID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.pending, sessionID)
	return nil
}

func (r *MemoryPending) ListOlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var stale []model.PendingAuthorization
	for _, p := range r.m.pending {
		if p.CreatedAt.Before(cutoff) {
			stale = append(stale, p)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].CreatedAt.Equal(stale[j].CreatedAt) {
			return stale[i].CreatedAt.Before(stale[j].CreatedAt)
		}
		return stale[i].SessionID < stale[j].SessionID
	})
	ids := make([]string, 0, len(stale))
	for _, p := range stale {
		ids = append(ids, p.SessionID)
	}
	return ids, nil
}

// MemorySettings implements the settings store on a MemoryStore.
type MemorySettings struct{ m *MemoryStore }

func (r *MemorySettings) All(_ context.Context) (map[string]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make(map[string]string, len(r.m.settings))
	for k, v := range r.m.settings {
		out[k] = v
	}
	return out, nil
}

func (r *MemorySettings) Put(_ context.Context, key, value string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.settings[key] = value
	return nil
}
