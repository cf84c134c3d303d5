// Package calendar lists the bookable tasting slots.  Production reads
// timed events from a Google Calendar; without credentials a fixed weekly
// table from configuration is used instead.
package calendar

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/sake-tasting-reservation/internal/config"
	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// Catalog returns the slots whose start lies in [from, to), sorted by date
// and time, with duplicates removed.
type Catalog interface {
	ListSlots(ctx context.Context, from, to time.Time) ([]model.Slot, error)
}

// WeeklyCatalog offers the same start times on every open day.
type WeeklyCatalog struct {
	weekly config.WeeklySlots
	loc    *time.Location
}

func NewWeeklyCatalog(weekly config.WeeklySlots, loc *time.Location) *WeeklyCatalog {
	return &WeeklyCatalog{weekly: weekly, loc: loc}
}

func (c *WeeklyCatalog) ListSlots(_ context.Context, from, to time.Time) ([]model.Slot, error) {
	from, to = from.In(c.loc), to.In(c.loc)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, c.loc)
	var out []model.Slot
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(model.DateLayout)
		if c.weekly.ClosedDays[day.Weekday()] || c.weekly.ClosedDates[date] {
			continue
		}
		for _, t := range c.weekly.Times {
			start, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, date+" "+t, c.loc)
			if err != nil || start.Before(from) || !start.Before(to) {
				continue
			}
			out = append(out, model.Slot{Date: date, Time: t})
		}
	}
	return normalize(out), nil
}

// normalize sorts slots and drops repeated (date, time) pairs.
func normalize(slots []model.Slot) []model.Slot {
	sort.Slice(slots, func(i, j int) bool { return slots[i].Key() < slots[j].Key() })
	out := slots[:0]
	for i, s := range slots {
		if i > 0 && s == slots[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// DaySlots returns the slot times on one date.
func DaySlots(ctx context.Context, c Catalog, date string, loc *time.Location) ([]string, error) {
	day, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return nil, err
	}
	slots, err := c.ListSlots(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	times := make([]string, 0, len(slots))
	for _, s := range slots {
		times = append(times, s.Time)
	}
	return times, nil
}
