package factor

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"

	"github.com/newthinker/quantlab/internal/storage"
)

var header = []string{
	"date", "stock_code", "close", "industry", "factor", "factor_neutralized", "quantile",
}

// Write stores the preprocessed table as CSV at p
func Write(ctx context.Context, store storage.Store, p string, rows []Row) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format("2006-01-02"),
			r.StockCode,
			formatFloat(r.Close),
			r.Industry,
			formatFloat(r.Factor),
			formatFloat(r.Neutralized),
			strconv.Itoa(r.Quantile),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := store.Write(ctx, p, buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
