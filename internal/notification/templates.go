// Package notification turns booking events into e-mail messages.  Subject
// and body templates live in the settings store under <TYPE>_SUBJECT and
// <TYPE>_BODY and fall back to built-in defaults.
package notification

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// AdminNotifyKey is the setting holding the staff address that receives a
// copy of every new reservation request.
const AdminNotifyKey = "ADMIN_NOTIFY_EMAIL"

// Template is an unrendered message.
type Template struct {
	Subject string
	Body    string
}

var defaults = map[model.EventType]Template{
	model.EventReceived: {
		Subject: "Reservation Request Received",
		Body: "Dear {{name}},\n\nWe have received your reservation request.\n\n" +
			"Date: {{date}}\nTime: {{time}}\nType: {{type}}\n\n" +
			"Our staff will review it and contact you within 3 days.\nThank you.",
	},
	model.EventConfirmed: {
		Subject: "Reservation Confirmed",
		Body:    "Dear {{name}},\n\nYour reservation is now CONFIRMED.\n\nDate: {{date}}\nTime: {{time}}\n\nSee you soon!",
	},
	model.EventRejected: {
		Subject: "Reservation Request Declined",
		Body: "Dear {{name}},\n\nUnfortunately we cannot accept your reservation for {{date}} {{time}}.\n" +
			"The hold on your card has been released.",
	},
	model.EventCancelled: {
		Subject: "Reservation Cancelled",
		Body: "Dear {{name}},\n\nYour reservation for {{date}} {{time}} has been cancelled.\n" +
			"Refund amount: {{refund_amount}} JPY",
	},
}

// SettingStore is the key/value store holding templates.
type SettingStore interface {
	All(ctx context.Context) (map[string]string, error)
	Put(ctx context.Context, key, value string) error
}

// Templates reads and writes message templates.
type Templates struct {
	store       SettingStore
	adminNotify string // used when the setting is absent
}

// NewTemplates returns a Templates backed by store.  adminNotify is the
// default staff address and may be empty.
func NewTemplates(store SettingStore, adminNotify string) *Templates {
	return &Templates{store: store, adminNotify: adminNotify}
}

// All returns every template key with its effective value, defaults
// included, plus the admin notification address.
func (t *Templates) All(ctx context.Context) (map[string]string, error) {
	stored, err := t.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]string{AdminNotifyKey: t.adminNotify}
	for typ, d := range defaults {
		out[string(typ)+"_SUBJECT"] = d.Subject
		out[string(typ)+"_BODY"] = d.Body
	}
	for k, v := range stored {
		if v != "" {
			out[k] = v
		}
	}
	return out, nil
}

// ValidKey reports whether key can be written through Put.
func ValidKey(key string) bool {
	if key == AdminNotifyKey {
		return true
	}
	for typ := range defaults {
		if key == string(typ)+"_SUBJECT" || key == string(typ)+"_BODY" {
			return true
		}
	}
	return false
}

// Put stores one template or the admin address.
func (t *Templates) Put(ctx context.Context, key, value string) error {
	if !ValidKey(key) {
		return fmt.Errorf("unknown template key %q", key)
	}
	return t.store.Put(ctx, key, value)
}

// Message is one rendered e-mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Compose renders the messages for an event: one to the guest and, for a
// new request, one to staff when an address is configured.
func (t *Templates) Compose(ctx context.Context, ev model.BookingEvent) ([]Message, error) {
	all, err := t.All(ctx)
	if err != nil {
		return nil, err
	}
	tpl, ok := defaults[ev.Type]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if v := all[string(ev.Type)+"_SUBJECT"]; v != "" {
		tpl.Subject = v
	}
	if v := all[string(ev.Type)+"_BODY"]; v != "" {
		tpl.Body = v
	}

	var out []Message
	if to := ev.Booking.Representative.Email; to != "" {
		out = append(out, Render(tpl, to, ev))
	}
	if admin := all[AdminNotifyKey]; admin != "" && ev.Type == model.EventReceived {
		b := ev.Booking
		out = append(out, Message{
			To:      admin,
			Subject: "[Reservation] New request " + b.Date + " " + b.Time,
			Body: fmt.Sprintf("Name: %s\nDate: %s %s\nType: %s\nGuests: %d\nTotal: %d JPY\nPlease review in the admin panel.",
				b.Representative.FullName(), b.Date, b.Time, b.Kind, b.GuestCounts.Total(), b.TotalPrice),
		})
	}
	return out, nil
}

// Render substitutes the placeholders of tpl.
func Render(tpl Template, to string, ev model.BookingEvent) Message {
	refund := ""
	if ev.RefundAmount != nil {
		refund = strconv.FormatInt(*ev.RefundAmount, 10)
	}
	r := strings.NewReplacer(
		"{{name}}", ev.Booking.Representative.FullName(),
		"{{date}}", ev.Booking.Date,
		"{{time}}", ev.Booking.Time,
		"{{type}}", string(ev.Booking.Kind),
		"{{refund_amount}}", refund,
	)
	return Message{To: to, Subject: r.Replace(tpl.Subject), Body: r.Replace(tpl.Body)}
}
