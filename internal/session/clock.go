// Package session answers whether a market is open at a given instant.
package session

import (
	"fmt"
	"time"

	"autostock/internal/config"
	"autostock/internal/errs"
)

// Clock is an immutable trading-hours calendar for one market.
type Clock struct {
	Market   string
	loc      *time.Location
	open     time.Duration
	close    time.Duration
	weekdays map[time.Weekday]bool
}

func New(market string, cfg config.SessionConfig) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, errs.ErrConfig)
	}
	open, err := config.ParseClock(cfg.Open)
	if err != nil {
		return nil, err
	}
	closeAt, err := config.ParseClock(cfg.Close)
	if err != nil {
		return nil, err
	}
	days, err := config.ParseWeekdays(cfg.Weekdays)
	if err != nil {
		return nil, err
	}
	return &Clock{Market: market, loc: loc, open: open, close: closeAt, weekdays: days}, nil
}

func (c *Clock) Location() *time.Location { return c.loc }

// LocalNow projects t into the market timezone.
func (c *Clock) LocalNow(t time.Time) time.Time { return t.In(c.loc) }

// IsOpen reports whether t falls on a trading weekday within [open, close].
func (c *Clock) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	if !c.weekdays[local.Weekday()] {
		return false
	}
	offset := sinceMidnight(local)
	return offset >= c.open && offset <= c.close
}

// NextOpen returns the next instant at or after t when the session opens.
// An open session returns t itself.
func (c *Clock) NextOpen(t time.Time) time.Time {
	if c.IsOpen(t) {
		return t
	}
	local := t.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	for i := 0; i < 8; i++ {
		d := day.AddDate(0, 0, i)
		if !c.weekdays[d.Weekday()] {
			continue
		}
		openAt := d.Add(c.open)
		if !openAt.Before(local) {
			return openAt
		}
	}
	return time.Time{}
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
