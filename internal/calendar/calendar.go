// Package calendar holds the reference trading calendar and aligns single
// stock series onto it.
package calendar

import (
	"sort"
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// Day is one reference trading day with the index return of that day
type Day struct {
	Date   time.Time
	Return float64
}

// Calendar is an immutable, ascending set of trading days. It is safe to
// share between goroutines.
type Calendar struct {
	days  []Day
	index map[int]int
}

// New builds a calendar from days in any order. Duplicate dates keep the
// first occurrence.
func New(days []Day) (*Calendar, error) {
	sorted := make([]Day, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	c := &Calendar{
		days:  make([]Day, 0, len(sorted)),
		index: make(map[int]int, len(sorted)),
	}
	for _, d := range sorted {
		key := DayKey(d.Date)
		if _, dup := c.index[key]; dup {
			continue
		}
		d.Date = Truncate(d.Date)
		c.index[key] = len(c.days)
		c.days = append(c.days, d)
	}

	if len(c.days) == 0 {
		return nil, core.Errorf(core.ErrCalendarMismatch, "calendar has no trading days")
	}
	return c, nil
}

// Window returns the sub-calendar within [start, end]. Zero bounds are open.
func (c *Calendar) Window(start, end time.Time) (*Calendar, error) {
	days := make([]Day, 0, len(c.days))
	for _, d := range c.days {
		if !start.IsZero() && d.Date.Before(Truncate(start)) {
			continue
		}
		if !end.IsZero() && d.Date.After(Truncate(end)) {
			continue
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, core.Errorf(core.ErrCalendarMismatch, "no trading days between %s and %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return New(days)
}

// Len returns the number of trading days.
func (c *Calendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.days)
}

// Days returns a copy of the trading days.
func (c *Calendar) Days() []Day {
	out := make([]Day, len(c.days))
	copy(out, c.days)
	return out
}

// Dates returns the trading dates in ascending order.
func (c *Calendar) Dates() []time.Time {
	out := make([]time.Time, len(c.days))
	for i, d := range c.days {
		out[i] = d.Date
	}
	return out
}

// Index returns the position of date in the calendar.
func (c *Calendar) Index(date time.Time) (int, bool) {
	i, ok := c.index[DayKey(date)]
	return i, ok
}

// First returns the first trading day.
func (c *Calendar) First() time.Time { return c.days[0].Date }

// Last returns the last trading day.
func (c *Calendar) Last() time.Time { return c.days[len(c.days)-1].Date }

// DayKey identifies a calendar day independent of time of day and location.
func DayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// Truncate drops the time of day, keeping the calendar day in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
