package backtest

import (
	"fmt"
	"time"

	"github.com/newthinker/quantlab/internal/calendar"
)

// Period is the rebalance timer granularity
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q (want day, week or month)", s)
	}
}

// Schedule marks the rebalance days among ascending trading dates.
//
// The timer fires every session for day, on Fridays for week and on the 1st
// for month. When the target day is not a trading day the timer fires on the
// next trading day instead. Only every nPeriods-th firing, starting with
// the first, is a rebalance day.
func Schedule(dates []time.Time, period Period, nPeriods int) []bool {
	if nPeriods <= 0 {
		nPeriods = 1
	}
	out := make([]bool, len(dates))
	if len(dates) == 0 {
		return out
	}

	first := calendar.Truncate(dates[0])
	var lastTarget time.Time
	firings := 0

	for i, d := range dates {
		if !fires(calendar.Truncate(d), first, period, &lastTarget) {
			continue
		}
		if firings%nPeriods == 0 {
			out[i] = true
		}
		firings++
	}
	return out
}

func fires(d, first time.Time, period Period, lastTarget *time.Time) bool {
	var target time.Time
	switch period {
	case PeriodWeek:
		back := (int(d.Weekday()) - int(time.Friday) + 7) % 7
		target = d.AddDate(0, 0, -back)
	case PeriodMonth:
		target = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return true
	}

	if target.Before(first) || !target.After(*lastTarget) {
		return false
	}
	*lastTarget = target
	return true
}
