package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// GoogleCatalog reads slots from a Google Calendar: every timed, confirmed
// event is one slot starting at the event's start time.  All-day events mark
// closures and are skipped.
type GoogleCatalog struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	timeout    time.Duration
}

// NewGoogleCatalog authenticates with a service account key file.
func NewGoogleCatalog(ctx context.Context, credentialsFile, calendarID string, loc *time.Location, timeout time.Duration) (*GoogleCatalog, error) {
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("google calendar client: %w", err)
	}
	return &GoogleCatalog{svc: svc, calendarID: calendarID, loc: loc, timeout: timeout}, nil
}

func (c *GoogleCatalog) ListSlots(ctx context.Context, from, to time.Time) ([]model.Slot, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	call := c.svc.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	var out []model.Slot
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, ev := range page.Items {
			if slot, ok := c.slotOf(ev); ok {
				out = append(out, slot)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return normalize(out), nil
}

func (c *GoogleCatalog) slotOf(ev *gcal.Event) (model.Slot, bool) {
	if ev == nil || ev.Status == "cancelled" || ev.Start == nil || ev.Start.DateTime == "" {
		return model.Slot{}, false
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return model.Slot{}, false
	}
	start = start.In(c.loc)
	return model.Slot{Date: start.Format(model.DateLayout), Time: start.Format(model.TimeLayout)}, true
}
