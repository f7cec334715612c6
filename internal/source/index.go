package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/quantlab/internal/calendar"
	"github.com/newthinker/quantlab/internal/core"
)

const (
	colCandleEnd  = "candle_end_time"
	colIndexClose = "close"
)

type indexRow struct {
	date  time.Time
	close float64
}

// ReadIndex builds the reference calendar from an index CSV holding
// candle_end_time and close columns. The daily return is the close-to-close
// change; the first row has none and is dropped. The result is restricted
// to [start, end] (zero bounds are open).
//
// Any failure is ErrCalendarMismatch since no symbol can be aligned without
// the calendar.
func (r *Reader) ReadIndex(ctx context.Context, p string, start, end time.Time) (*calendar.Calendar, error) {
	rc, err := r.store.Open(ctx, p)
	if err != nil {
		return nil, core.Errorf(core.ErrCalendarMismatch, "index %s: %w", p, err)
	}
	defer rc.Close()

	rows, err := parseIndex(decode(rc, r.enc))
	if err != nil {
		return nil, core.Errorf(core.ErrCalendarMismatch, "index %s: %w", p, err)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	days := make([]calendar.Day, 0, len(rows))
	for i := 1; i < len(rows); i++ {
		prev := rows[i-1].close
		if prev == 0 || !usable(prev) || !usable(rows[i].close) {
			continue
		}
		days = append(days, calendar.Day{Date: rows[i].date, Return: rows[i].close/prev - 1})
	}

	cal, err := calendar.New(days)
	if err != nil {
		return nil, err
	}
	return cal.Window(start, end)
}

func parseIndex(r io.Reader) ([]indexRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := indexColumns(header)
	di, ok := cols[colCandleEnd]
	if !ok {
		return nil, fmt.Errorf("missing column %s", colCandleEnd)
	}
	ci, ok := cols[colIndexClose]
	if !ok {
		return nil, fmt.Errorf("missing column %s", colIndexClose)
	}

	var rows []indexRow
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if blank(rec) || di >= len(rec) || ci >= len(rec) {
			continue
		}
		date, err := parseDate(strings.TrimSpace(rec[di]))
		if err != nil {
			return nil, err
		}
		closePrice, err := parseNumber(strings.TrimSpace(rec[ci]))
		if err != nil {
			return nil, fmt.Errorf("close: %w", err)
		}
		rows = append(rows, indexRow{date: date, close: closePrice})
	}
	return rows, nil
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
