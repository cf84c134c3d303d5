// Package repository defines the persistence layer for bookings, pending
// authorizations and settings, together with the sentinel errors that
// higher layers use to tell failure scenarios apart.  Two ledgers share
// the same method sets: a MySQL-backed one for production and an
// in-memory one for development and tests.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrBookingNotFound is returned when no booking matches the lookup key.
var ErrBookingNotFound = errors.New("booking not found")

// ErrPendingNotFound is returned when no pending authorization exists for
// a payment session.
var ErrPendingNotFound = errors.New("pending authorization not found")

// ErrDuplicateSession is returned when a booking or pending authorization
// for the same payment session already exists.  The ledger never stores
// two rows for one session.
var ErrDuplicateSession = errors.New("payment session already recorded")

// ErrConflict is returned when a conditional update loses against a
// concurrent writer, e.g. the booking status changed between read and
// write.  Callers should re-read and decide again.
var ErrConflict = errors.New("conflict")

// isDuplicateKey reports whether err is MySQL error 1062 (duplicate entry).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// isDuplicateOn reports whether err is a duplicate entry on the named
// index.  MySQL names the key in the message, qualified by table since 8.0.
func isDuplicateOn(err error, key string) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != 1062 {
		return false
	}
	return strings.HasSuffix(me.Message, "'"+key+"'") || strings.HasSuffix(me.Message, "."+key+"'")
}
