// Package adjust back-adjusts daily prices with a cumulative return factor so
// that dividend and split gaps disappear while daily returns are preserved.
package adjust

import (
	"math"

	"github.com/newthinker/quantlab/internal/core"
)

// Calculate returns the adjusted prices for an ascending, de-duplicated series.
//
// The factor is the running product of (1 + close/prev_close - 1). The adjusted
// close is anchored on the first raw close, so row 0 reproduces it exactly.
// A missing first prev_close counts as a zero return; for later rows it is a
// data error, as is a zero close.
func Calculate(bars []core.RawBar) ([]core.AdjustedPrices, error) {
	out := make([]core.AdjustedPrices, len(bars))
	if len(bars) == 0 {
		return out, nil
	}

	factor := 1.0
	for i, b := range bars {
		if i > 0 && !b.Date.After(bars[i-1].Date) {
			return nil, core.Errorf(core.ErrData, "row %d (%s): dates not strictly increasing",
				i, b.Date.Format("2006-01-02"))
		}
		if !usable(b.Close) {
			return nil, core.Errorf(core.ErrData, "row %d (%s): close is zero or missing",
				i, b.Date.Format("2006-01-02"))
		}

		ret := 0.0
		switch {
		case usable(b.PrevClose):
			ret = b.Close/b.PrevClose - 1
		case i > 0:
			return nil, core.Errorf(core.ErrData, "row %d (%s): prev_close is zero or missing",
				i, b.Date.Format("2006-01-02"))
		}

		factor *= 1 + ret
		out[i].Factor = factor
	}

	base := bars[0].Close
	first := out[0].Factor
	for i, b := range bars {
		closeAdj := base * (out[i].Factor / first)
		out[i].Close = closeAdj
		out[i].Open = b.Open / b.Close * closeAdj
		out[i].High = b.High / b.Close * closeAdj
		out[i].Low = b.Low / b.Close * closeAdj
	}

	return out, nil
}

// Apply fills the Adjusted field of every bar in place.
func Apply(bars []core.DailyBar) error {
	raw := make([]core.RawBar, len(bars))
	for i := range bars {
		raw[i] = bars[i].RawBar
	}

	adjusted, err := Calculate(raw)
	if err != nil {
		return err
	}
	for i := range bars {
		bars[i].Adjusted = adjusted[i]
	}
	return nil
}

func usable(v float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
