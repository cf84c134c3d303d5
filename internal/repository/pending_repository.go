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

// PendingRepo provides data access to the pending_authorizations table.
// A row exists between "card authorized at the provider" and "booking
// persisted"; the session id is the primary key, so a session can only
// ever be pending once.
type PendingRepo struct {
	db *sql.DB
}

// NewPendingRepo returns a new PendingRepo bound to the provided database.
func NewPendingRepo(db *sql.DB) *PendingRepo { return &PendingRepo{db: db} }

// Create stores the reservation payload under its payment session id.
func (r *PendingRepo) Create(ctx context.Context, p *model.PendingAuthorization) error {
	payload, err := json.Marshal(p.Request)
	if err != nil {
		return fmt.Errorf("encode pending payload: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pending_authorizations (session_id, payload, created_at) VALUES (?, ?, ?)`,
		p.SessionID, payload, p.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateSession
		}
		return err
	}
	return nil
}

// Get returns the pending authorization for a session or
// ErrPendingNotFound.
func (r *PendingRepo) Get(ctx context.Context, sessionID string) (*model.PendingAuthorization, error) {
	var (
		payload []byte
		p       model.PendingAuthorization
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, payload, created_at FROM pending_authorizations WHERE session_id = ?`,
		sessionID,
	).Scan(&p.SessionID, &payload, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &p.Request); err != nil {
		return nil, fmt.Errorf("decode pending payload %s: %w", sessionID, err)
	}
	return &p, nil
}

// Delete removes a consumed pending authorization.  Deleting a session
// that is already gone is not an error; finalization may be re-run after
// a crash between booking insert and this delete.
func (r *PendingRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_authorizations WHERE session_id = ?`, sessionID)
	return err
}

// ListOlderThan returns the session ids of authorizations created before
// cutoff, oldest first.  Rows are not removed here; the caller decides per
// session after asking the payment provider.
func (r *PendingRepo) ListOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id FROM pending_authorizations WHERE created_at < ? ORDER BY created_at, session_id`,
		cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
