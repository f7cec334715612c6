// Package source reads raw daily CSV exports from storage.
package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantlab/internal/calendar"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage"
	"golang.org/x/text/encoding"
)

// Column headers of a stock CSV
const (
	colDate      = "交易日期"
	colCode      = "股票代码"
	colName      = "股票名称"
	colOpen      = "开盘价"
	colHigh      = "最高价"
	colLow       = "最低价"
	colClose     = "收盘价"
	colPrevClose = "前收盘价"
	colVolume    = "成交量"
	colTurnover  = "成交额"
	colMarketCap = "总市值"
	colIndustry  = "新版申万一级行业名称"
)

var requiredColumns = []string{
	colDate, colCode, colName, colOpen, colHigh, colLow, colClose, colPrevClose, colVolume, colTurnover, colMarketCap,
}

var dateLayouts = []string{"2006-01-02", "20060102", "2006/01/02", "2006-01-02 15:04:05"}

// Options configures a Reader
type Options struct {
	StockPrefix     string
	Encoding        string
	ExcludePrefixes []string
	Start           time.Time // zero means unbounded
	End             time.Time // zero means unbounded
}

// Reader loads stock series and the reference index from a Store
type Reader struct {
	store storage.Store
	opts  Options
	enc   encoding.Encoding
}

// NewReader creates a reader over store.
func NewReader(store storage.Store, opts Options) (*Reader, error) {
	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	return &Reader{store: store, opts: opts, enc: enc}, nil
}

// StockPath returns the storage path of a symbol's CSV.
func (r *Reader) StockPath(symbol string) string {
	return path.Join(r.opts.StockPrefix, symbol+".csv")
}

// ReadStock reads one symbol's bars, sorted by date, de-duplicated keeping
// the first row of each date and restricted to the configured window.
//
// A file without any data row yields ErrNoData. A file whose rows all fall
// outside the window yields an empty slice and no error.
func (r *Reader) ReadStock(ctx context.Context, symbol string) ([]core.RawBar, error) {
	p := r.StockPath(symbol)
	rc, err := r.store.Open(ctx, p)
	if err != nil {
		return nil, core.Errorf(core.ErrSourceRead, "%s: %w", symbol, err)
	}
	defer rc.Close()

	bars, err := parseStock(decode(rc, r.enc))
	if err != nil {
		return nil, core.Errorf(core.ErrSourceRead, "%s: %w", p, err)
	}
	if len(bars) == 0 {
		return nil, core.Errorf(core.ErrNoData, "%s has no rows", p)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	bars = dedupe(bars)
	return window(bars, r.opts.Start, r.opts.End), nil
}

// parseStock reads a stock CSV whose first line is a title banner and whose
// second line holds the column headers.
func parseStock(r io.Reader) ([]core.RawBar, error) {
	br := bufio.NewReader(r)
	if _, err := br.ReadString('\n'); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := indexColumns(header)
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
	}

	var bars []core.RawBar
	line := 2
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if blank(rec) {
			continue
		}

		bar, err := parseStockRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseStockRecord(rec []string, cols map[string]int) (core.RawBar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, err := parseDate(field(colDate))
	if err != nil {
		return core.RawBar{}, err
	}

	bar := core.RawBar{
		Date:     date,
		Code:     field(colCode),
		Name:     field(colName),
		Industry: field(colIndustry),
	}

	numbers := []struct {
		name string
		dst  *float64
	}{
		{colOpen, &bar.Open},
		{colHigh, &bar.High},
		{colLow, &bar.Low},
		{colClose, &bar.Close},
		{colPrevClose, &bar.PrevClose},
		{colVolume, &bar.Volume},
		{colTurnover, &bar.Turnover},
		{colMarketCap, &bar.MarketCap},
	}
	for _, n := range numbers {
		v, err := parseNumber(field(n.name))
		if err != nil {
			return core.RawBar{}, fmt.Errorf("%s: %w", n.name, err)
		}
		*n.dst = v
	}
	return bar, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return calendar.Truncate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseNumber returns NaN for empty cells.
func parseNumber(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func dedupe(bars []core.RawBar) []core.RawBar {
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && calendar.DayKey(b.Date) == calendar.DayKey(out[len(out)-1].Date) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func window(bars []core.RawBar, start, end time.Time) []core.RawBar {
	out := make([]core.RawBar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Date.Before(calendar.Truncate(start)) {
			continue
		}
		if !end.IsZero() && b.Date.After(calendar.Truncate(end)) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Universe lists the symbols available under the stock prefix, sorted, with
// the configured exclude prefixes removed.
func (r *Reader) Universe(ctx context.Context) ([]string, error) {
	paths, err := r.store.List(ctx, r.opts.StockPrefix)
	if err != nil {
		return nil, core.Errorf(core.ErrSourceRead, "listing %s: %w", r.opts.StockPrefix, err)
	}

	symbols := make([]string, 0, len(paths))
	for _, p := range paths {
		if !strings.EqualFold(path.Ext(p), ".csv") {
			continue
		}
		symbol := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if r.excluded(symbol) {
			continue
		}
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (r *Reader) excluded(symbol string) bool {
	for _, prefix := range r.opts.ExcludePrefixes {
		if prefix != "" && strings.HasPrefix(strings.ToLower(symbol), strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}
