package calendar

import (
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// AlignStats describes one alignment
type AlignStats struct {
	Traded      int
	Synthesized int
	Dropped     int // stock rows on dates missing from the calendar
}

// Align right-joins a stock series onto the calendar so that every calendar
// day has exactly one row.
//
// Days without a stock row are synthesized: the close (raw and adjusted) is
// carried forward, open/high/low equal that close, prev_close is the previous
// row's close and volume/turnover are zero. All remaining fields are taken
// from the next traded row, or the previous one when none follows. Days
// before the first traded row therefore take the first traded close.
//
// The backward fill copies the next traded day's name and limit flags into
// a suspension gap; callers reading those flags on synthesized rows see
// information from the future.
//
// An empty series, or one with no day inside the calendar, aligns to an empty
// result.
func Align(bars []core.DailyBar, cal *Calendar) ([]core.AlignedBar, AlignStats, error) {
	var stats AlignStats
	if cal.Len() == 0 {
		return nil, stats, core.Errorf(core.ErrCalendarMismatch, "calendar is empty")
	}
	if len(bars) == 0 {
		return []core.AlignedBar{}, stats, nil
	}

	n := cal.Len()
	rows := make([]core.AlignedBar, n)
	for i, d := range cal.days {
		rows[i].Date = d.Date
	}

	for _, b := range bars {
		i, ok := cal.Index(b.Date)
		if !ok {
			stats.Dropped++
			continue
		}
		if rows[i].Trading {
			return nil, stats, core.Errorf(core.ErrData, "duplicate stock row on %s", b.Date.Format("2006-01-02"))
		}
		date := rows[i].Date
		rows[i].DailyBar = b
		rows[i].Date = date
		rows[i].Trading = true
		stats.Traded++
	}

	if stats.Traded == 0 {
		return []core.AlignedBar{}, stats, nil
	}
	stats.Synthesized = n - stats.Traded

	// Nearest traded row after each position, -1 when none.
	next := make([]int, n)
	following := -1
	for i := n - 1; i >= 0; i-- {
		next[i] = following
		if rows[i].Trading {
			following = i
		}
	}

	last := -1
	for i := range rows {
		if rows[i].Trading {
			last = i
			continue
		}

		src := next[i]
		if src < 0 {
			src = last
		}
		rows[i].DailyBar = synthesize(rows[i].Date, rows[src].DailyBar)
		if last >= 0 {
			// last >= 0 implies i > 0
			carryClose(&rows[i], rows[last].DailyBar)
			rows[i].PrevClose = rows[i-1].Close
		}
		fillPrices(&rows[i])
	}

	return rows, stats, nil
}

// synthesize builds a non-traded row from the fill source. Close and
// prev_close start from the source so that leading rows get the first traded
// values.
func synthesize(date time.Time, src core.DailyBar) core.DailyBar {
	out := src
	out.Date = date
	out.Volume = 0
	out.Turnover = 0
	return out
}

func carryClose(row *core.AlignedBar, prev core.DailyBar) {
	row.Close = prev.Close
	row.Adjusted.Close = prev.Adjusted.Close
	row.Adjusted.Factor = prev.Adjusted.Factor
}

func fillPrices(row *core.AlignedBar) {
	row.Open, row.High, row.Low = row.Close, row.Close, row.Close
	a := &row.Adjusted
	a.Open, a.High, a.Low = a.Close, a.Close, a.Close
}

// AnnotateNextDay sets each row's look-ahead flags from the following row.
// The last row has no following day and keeps invalid flags.
func AnnotateNextDay(rows []core.AlignedBar) {
	for i := range rows {
		if i+1 >= len(rows) {
			rows[i].Next = core.Lookahead{}
			continue
		}
		nx := rows[i+1]
		rows[i].Next = core.Lookahead{
			Tradable:    core.Some(nx.Trading),
			ST:          core.Some(nx.IsST),
			Delisting:   core.Some(nx.IsDelisting),
			OpenLimitUp: core.Some(nx.Band.OpenUp),
			OneWordUp:   core.Some(nx.Band.OneWordUp),
		}
	}
}
