package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage"
)

var strategyHeader = []string{
	"date", "open", "high", "low", "close", "volume", "openinterest",
	"limit_up", "market_cap", "is_trade", "is_st", "is_delisting",
}

var factorHeader = []string{
	"date", "stock_code", "open", "close", "high", "low", "volume", "factor", "industry",
}

// WriteStrategy writes one CSV per symbol under dir and returns the number
// of files written.
func WriteStrategy(ctx context.Context, store storage.Store, dir string, merged map[string][]core.AlignedBar) (int, error) {
	written := 0
	for _, symbol := range Symbols(merged) {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(strategyHeader); err != nil {
			return written, err
		}
		for _, r := range StrategyRows(merged[symbol]) {
			rec := []string{
				r.Date.Format("2006-01-02"),
				formatFloat(r.Open),
				formatFloat(r.High),
				formatFloat(r.Low),
				formatFloat(r.Close),
				formatFloat(r.Volume),
				formatFloat(r.OpenInterest),
				formatFloat(r.LimitUp),
				formatFloat(r.MarketCap),
				formatFloat(r.IsTrading),
				formatFloat(r.IsST),
				formatFloat(r.IsDelisting),
			}
			if err := w.Write(rec); err != nil {
				return written, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return written, err
		}

		p := path.Join(dir, symbol+".csv")
		if err := store.Write(ctx, p, buf.Bytes()); err != nil {
			return written, fmt.Errorf("writing %s: %w", p, err)
		}
		written++
	}
	return written, nil
}

// MergeFactorRows concatenates the factor projections of all symbols,
// ordered by date then stock code.
func MergeFactorRows(merged map[string][]core.AlignedBar) []FactorRow {
	var all []FactorRow
	for _, symbol := range Symbols(merged) {
		all = append(all, FactorRows(merged[symbol])...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.Before(all[j].Date)
		}
		return all[i].StockCode < all[j].StockCode
	})
	return all
}

// WriteFactor writes the merged factor table to p.
func WriteFactor(ctx context.Context, store storage.Store, p string, rows []FactorRow) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(factorHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format("2006-01-02"),
			r.StockCode,
			formatFloat(r.Open),
			formatFloat(r.Close),
			formatFloat(r.High),
			formatFloat(r.Low),
			formatFloat(r.Volume),
			formatFloat(r.Factor),
			r.Industry,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return store.Write(ctx, p, buf.Bytes())
}

// formatFloat writes NaN as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
