package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
	"github.com/iliyamo/sake-tasting-reservation/internal/service"
)

// flexInt decodes a JSON number or a numeric string, since payload fields
// may arrive through the query string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || fl != float64(int64(fl)) {
			return fmt.Errorf("not an integer: %s", b)
		}
		n = int64(fl)
	}
	*f = flexInt(n)
	return nil
}

// flexBool decodes true/false or their string forms ("true", "1").
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "true", "1", "yes":
		*f = true
	case "false", "0", "no", "", "null":
		*f = false
	default:
		return fmt.Errorf("not a boolean: %s", b)
	}
	return nil
}

// envelope is the body of an /exec call.
type envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
	Token   string          `json:"token"`
}

// mergePayload overlays the body payload on the query parameters and
// returns the result as one JSON object.  Body fields win.
func mergePayload(query map[string][]string, body json.RawMessage) (json.RawMessage, error) {
	merged := map[string]json.RawMessage{}
	for k, vs := range query {
		if k == "action" || k == "token" || len(vs) == 0 {
			continue
		}
		raw, _ := json.Marshal(vs[0])
		merged[k] = raw
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, fmt.Errorf("payload must be an object: %w", err)
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// decodePayload decodes a merged payload into one request variant.
func decodePayload(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return service.NewError(service.CodeInvalidRequest, "malformed payload", err)
	}
	return nil
}

type availabilityReq struct {
	Date string `json:"date"`
	Type string `json:"type"`
}

type monthStatusReq struct {
	Year  flexInt  `json:"year"`
	Month flexInt  `json:"month"`
	Type  string   `json:"type"`
	Force flexBool `json:"force"`
}

type guestCountsReq struct {
	Adults       flexInt `json:"adults"`
	AdultsNonAlc flexInt `json:"adultsNonAlc"`
	Children     flexInt `json:"children"`
	Infants      flexInt `json:"infants"`
}

func (g guestCountsReq) counts() model.GuestCounts {
	return model.GuestCounts{
		Adults:       int(g.Adults),
		AdultsNonAlc: int(g.AdultsNonAlc),
		Children:     int(g.Children),
		Infants:      int(g.Infants),
	}
}

type createBookingReq struct {
	Type string `json:"type"`
	Date string `json:"date"`
	Time string `json:"time"`
	guestCountsReq
	TotalPrice     flexInt       `json:"totalPrice"`
	Representative model.Guest   `json:"representative"`
	Guests         []model.Guest `json:"guests"`
	DietaryNotes   string        `json:"dietaryNotes"`
	ReturnURL      string        `json:"returnUrl"`
}

func (r createBookingReq) toModel() model.ReservationRequest {
	return model.ReservationRequest{
		Kind:           model.ReservationKind(strings.ToUpper(strings.TrimSpace(r.Type))),
		Date:           strings.TrimSpace(r.Date),
		Time:           strings.TrimSpace(r.Time),
		GuestCounts:    r.counts(),
		TotalPrice:     int64(r.TotalPrice),
		Representative: r.Representative,
		Guests:         r.Guests,
		DietaryNotes:   r.DietaryNotes,
		ReturnURL:      strings.TrimSpace(r.ReturnURL),
	}
}

type quoteReq struct {
	Type string `json:"type"`
	guestCountsReq
}

type finalizeReq struct {
	SessionID string `json:"sessionId"`
}

type idReq struct {
	ID string `json:"id"`
}

// updateStatusReq uses pointers so that absent fields are left untouched.
// An empty secondaryStatus clears the on-site status.
type updateStatusReq struct {
	ID              string   `json:"id"`
	Status          *string  `json:"status"`
	SecondaryStatus *string  `json:"secondaryStatus"`
	Notes           *string  `json:"notes"`
	RefundAmount    *flexInt `json:"refundAmount"`
}

func (r updateStatusReq) toUpdate() service.StatusUpdate {
	u := service.StatusUpdate{ID: strings.TrimSpace(r.ID), Notes: r.Notes}
	if r.Status != nil && *r.Status != "" {
		st := model.BookingStatus(strings.ToUpper(*r.Status))
		u.Status = &st
	}
	if r.SecondaryStatus != nil {
		onSite := model.OnSiteStatus(strings.ToUpper(*r.SecondaryStatus))
		u.OnSite = &onSite
	}
	if r.RefundAmount != nil {
		n := int64(*r.RefundAmount)
		u.RefundAmount = &n
	}
	return u
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type templateUpdateReq struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
