package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// BookingRepo provides access to the bookings table.  The indexed columns
// (slot, status, headcount, payment session) are kept alongside a JSON
// copy of the whole booking so that guest lists and admin notes do not
// need their own tables.  All timestamps are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle for health checks.
func (r *BookingRepo) DB() *sql.DB { return r.db }

// BookingRecord mirrors the schema of the bookings table.  It is used
// internally when constructing or scanning rows; business logic works
// with model.Booking.
type BookingRecord struct {
	ID               string
	Kind             string
	Date             string
	Time             string
	Status           string
	Adults           int
	AdultsNonAlc     int
	Children         int
	Infants          int
	TotalPrice       int64
	RepLastName      string
	RepEmail         string
	PaymentSessionID sql.NullString
	Data             []byte
	CreatedAt        time.Time
}

const bookingColumns = `id, type, date, time, status, adults, adults_non_alc, children, infants,
	total_price, rep_last_name, rep_email, payment_session_id, data, created_at`

func recordFromBooking(b *model.Booking) (*BookingRecord, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode booking: %w", err)
	}
	rec := &BookingRecord{
		ID:           b.ID,
		Kind:         string(b.Kind),
		Date:         b.Date,
		Time:         b.Time,
		Status:       string(b.Status),
		Adults:       b.Adults,
		AdultsNonAlc: b.AdultsNonAlc,
		Children:     b.Children,
		Infants:      b.Infants,
		TotalPrice:   b.TotalPrice,
		RepLastName:  b.Representative.LastName,
		RepEmail:     b.Representative.Email,
		Data:         data,
		CreatedAt:    b.CreatedAt.UTC(),
	}
	if b.PaymentSessionID != "" {
		rec.PaymentSessionID = sql.NullString{String: b.PaymentSessionID, Valid: true}
	}
	return rec, nil
}

// toBooking decodes the JSON copy and lets the indexed columns win, since
// those are what queries and conditional updates operate on.
func (rec *BookingRecord) toBooking() (*model.Booking, error) {
	var b model.Booking
	if len(rec.Data) > 0 {
		if err := json.Unmarshal(rec.Data, &b); err != nil {
			return nil, fmt.Errorf("decode booking %s: %w", rec.ID, err)
		}
	}
	b.ID = rec.ID
	b.Kind = model.ReservationKind(rec.Kind)
	b.Date = rec.Date
	b.Time = rec.Time
	b.Status = model.BookingStatus(rec.Status)
	b.Adults = rec.Adults
	b.AdultsNonAlc = rec.AdultsNonAlc
	b.Children = rec.Children
	b.Infants = rec.Infants
	b.TotalPrice = rec.TotalPrice
	b.PaymentSessionID = rec.PaymentSessionID.String
	b.CreatedAt = rec.CreatedAt.UTC()
	return &b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var rec BookingRecord
	if err := row.Scan(
		&rec.ID, &rec.Kind, &rec.Date, &rec.Time, &rec.Status,
		&rec.Adults, &rec.AdultsNonAlc, &rec.Children, &rec.Infants,
		&rec.TotalPrice, &rec.RepLastName, &rec.RepEmail,
		&rec.PaymentSessionID, &rec.Data, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	return rec.toBooking()
}

// bookingSessionKey is the unique index on bookings.payment_session_id.
const bookingSessionKey = "uq_bookings_session"

// Insert writes a new booking.  A second booking for the same payment
// session violates the unique index and is reported as
// ErrDuplicateSession so the caller can fall back to the existing row.
func (r *BookingRepo) Insert(ctx context.Context, b *model.Booking) error {
	rec, err := recordFromBooking(b)
	if err != nil {
		return err
	}
	const q = `INSERT INTO bookings (` + bookingColumns + `)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		rec.ID, rec.Kind, rec.Date, rec.Time, rec.Status,
		rec.Adults, rec.AdultsNonAlc, rec.Children, rec.Infants,
		rec.TotalPrice, rec.RepLastName, rec.RepEmail,
		rec.PaymentSessionID, rec.Data, rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateOn(err, bookingSessionKey) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("insert booking %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID loads a single booking.  ErrBookingNotFound is returned when the
// id is unknown.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// FindBySession returns the booking created from the given payment
// session, or ErrBookingNotFound.
func (r *BookingRepo) FindBySession(ctx context.Context, sessionID string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_session_id = ? LIMIT 1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// ListByDate returns every booking on a date regardless of status, ordered
// by slot time.  Capacity checks filter by status themselves.
func (r *BookingRepo) ListByDate(ctx context.Context, date string) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = ? ORDER BY time, created_at`
	return r.list(ctx, q, date)
}

// ListByMonth returns every booking whose date falls in the given month.
// Dates are stored as zero-padded strings so a lexical range works.
func (r *BookingRepo) ListByMonth(ctx context.Context, year, month int) ([]model.Booking, error) {
	from := fmt.Sprintf("%04d-%02d-01", year, month)
	next := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC).Format(model.DateLayout)
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE date >= ? AND date < ? ORDER BY date, time`
	return r.list(ctx, q, from, next)
}

// List returns all bookings, newest first, for the admin dashboard.
func (r *BookingRepo) List(ctx context.Context) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC`
	return r.list(ctx, q)
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update rewrites a booking only if its stored status still equals
// expected.  This is the re-read-before-write guard for status changes:
// when another request moved the booking first, ErrConflict is returned
// and nothing is written.  The DSN must use clientFoundRows so that an
// update that leaves every column unchanged still counts as a match.
func (r *BookingRepo) Update(ctx context.Context, b *model.Booking, expected model.BookingStatus) error {
	rec, err := recordFromBooking(b)
	if err != nil {
		return err
	}
	const q = `UPDATE bookings SET status = ?, data = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, rec.Status, rec.Data, rec.ID, string(expected))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, b.ID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// Delete hard-removes a booking.  ErrBookingNotFound is returned when
// nothing was deleted.
func (r *BookingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}
