package service

import "github.com/iliyamo/sake-tasting-reservation/internal/model"

// Per-head prices in yen.
const (
	privateNonAlc  = 13200
	privateChild   = 5500
	privateExtra   = 19800 // each adult beyond the fourth
	groupAdult     = 11000
	groupNonAlc    = 8800
	groupChild     = 3300
	bookingFeeBase = 1000
	bookingFeeRate = 15 // per bookingFeeBase, i.e. 1.5%
)

// privateAdultTiers is the flat PRIVATE price for 1..4 adults.
var privateAdultTiers = [...]int64{0, 36300, 48400, 66000, 79200}

// Quote is a price breakdown for one request.
type Quote struct {
	Subtotal   int64 `json:"subtotal"`
	BookingFee int64 `json:"bookingFee"`
	Total      int64 `json:"total"`
}

// QuotePrice prices a request.  Infants are free.
func QuotePrice(kind model.ReservationKind, c model.GuestCounts) Quote {
	var sub int64
	switch kind {
	case model.KindPrivate:
		switch {
		case c.Adults <= 0:
		case c.Adults < len(privateAdultTiers):
			sub += privateAdultTiers[c.Adults]
		default:
			sub += privateAdultTiers[4] + int64(c.Adults-4)*privateExtra
		}
		sub += int64(c.AdultsNonAlc)*privateNonAlc + int64(c.Children)*privateChild
	case model.KindGroup:
		sub += int64(c.Adults)*groupAdult + int64(c.AdultsNonAlc)*groupNonAlc + int64(c.Children)*groupChild
	}
	fee := sub * bookingFeeRate / bookingFeeBase
	return Quote{Subtotal: sub, BookingFee: fee, Total: sub + fee}
}
