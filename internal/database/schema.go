package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables the service needs.  Statements are idempotent so
// EnsureSchema can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id                 VARCHAR(64)  NOT NULL PRIMARY KEY,
		type               VARCHAR(16)  NOT NULL,
		date               CHAR(10)     NOT NULL,
		time               CHAR(5)      NOT NULL,
		status             VARCHAR(16)  NOT NULL,
		adults             INT          NOT NULL DEFAULT 0,
		adults_non_alc     INT          NOT NULL DEFAULT 0,
		children           INT          NOT NULL DEFAULT 0,
		infants            INT          NOT NULL DEFAULT 0,
		total_price        BIGINT       NOT NULL DEFAULT 0,
		rep_last_name      VARCHAR(128) NOT NULL DEFAULT '',
		rep_email          VARCHAR(255) NOT NULL DEFAULT '',
		payment_session_id VARCHAR(255) NULL,
		data               JSON         NOT NULL,
		created_at         DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_bookings_session (payment_session_id),
		KEY idx_bookings_slot (date, time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS pending_authorizations (
		session_id VARCHAR(255) NOT NULL PRIMARY KEY,
		payload    JSON         NOT NULL,
		created_at DATETIME(6)  NOT NULL,
		KEY idx_pending_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS settings (
		k VARCHAR(128) NOT NULL PRIMARY KEY,
		v TEXT         NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
