package service

import (
	"fmt"
	"time"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// feeTiers maps a minimum lead time in days to the cancellation fee
// percentage.  Ordered from the longest lead time down.
var feeTiers = []struct {
	minDays int
	percent int64
}{
	{32, 0},
	{14, 25},
	{7, 50},
	{3, 75},
	{0, 100},
}

// CancellationFeePercent returns the fee percentage for a cancellation
// made days before the reservation.  Past dates pay the full amount.
func CancellationFeePercent(days int) int64 {
	for _, t := range feeTiers {
		if days >= t.minDays {
			return t.percent
		}
	}
	return 100
}

// CancellationFee splits total into the retained fee and the refund.
func CancellationFee(total int64, days int) (fee, refund int64) {
	fee = total * CancellationFeePercent(days) / 100
	return fee, total - fee
}

// LeadDays counts calendar days from today in loc to date.  It is negative
// for dates in the past.  Both days are compared as UTC midnights so a
// daylight saving change in loc never shifts the count.
func LeadDays(now time.Time, date string, loc *time.Location) (int, error) {
	target, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(target.Sub(today).Hours() / 24), nil
}
