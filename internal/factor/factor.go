// Package factor prepares a single factor for cross-sectional IC analysis.
package factor

import (
	"math"
	"slices"
	"time"

	"github.com/newthinker/quantlab/internal/indicator"
	"github.com/newthinker/quantlab/internal/pipeline"
)

// DefaultWinsorizeN is the MAD multiple used when none is configured
const DefaultWinsorizeN = 3.0

// DefaultQuantiles matches the decile grouping of the downstream tearsheet
const DefaultQuantiles = 10

// Options tune the preprocessing steps
type Options struct {
	WinsorizeN float64
	Quantiles  int
}

// Row is one (date, stock) observation after preprocessing
type Row struct {
	Date        time.Time
	StockCode   string
	Industry    string
	Close       float64
	Raw         float64 // untransformed factor value
	Factor      float64 // log, winsorized, standardized
	Neutralized float64 // Factor minus its industry mean
	Quantile    int     // 1..Quantiles by Neutralized within the date
}

// Summary counts what Preprocess kept and dropped
type Summary struct {
	Dates   int
	Rows    int
	Dropped int
}

// Preprocess transforms the factor of each date's cross-section in turn:
// natural log, MAD winsorize, z-score, then industry neutralization.
// Rows whose factor is missing or not positive cannot be logged and are
// dropped. rows need not be sorted; the result is ordered by date then
// stock code.
func Preprocess(rows []pipeline.FactorRow, opts Options) ([]Row, Summary) {
	if opts.WinsorizeN <= 0 {
		opts.WinsorizeN = DefaultWinsorizeN
	}
	if opts.Quantiles <= 0 {
		opts.Quantiles = DefaultQuantiles
	}

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b pipeline.FactorRow) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if a.StockCode < b.StockCode {
			return -1
		}
		if a.StockCode > b.StockCode {
			return 1
		}
		return 0
	})

	var (
		out     []Row
		summary Summary
	)
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].Date.Equal(sorted[start].Date) {
			end++
		}
		section := crossSection(sorted[start:end], opts)
		summary.Dropped += (end - start) - len(section)
		if len(section) > 0 {
			summary.Dates++
			out = append(out, section...)
		}
		start = end
	}
	summary.Rows = len(out)
	return out, summary
}

func crossSection(rows []pipeline.FactorRow, opts Options) []Row {
	section := make([]Row, 0, len(rows))
	logs := make([]float64, 0, len(rows))
	for _, r := range rows {
		if math.IsNaN(r.Factor) || math.IsInf(r.Factor, 0) || r.Factor <= 0 {
			continue
		}
		section = append(section, Row{
			Date:      r.Date,
			StockCode: r.StockCode,
			Industry:  r.Industry,
			Close:     r.Close,
			Raw:       r.Factor,
		})
		logs = append(logs, math.Log(r.Factor))
	}
	if len(section) == 0 {
		return nil
	}

	z := indicator.ZScore(indicator.Winsorize(logs, opts.WinsorizeN))
	for i := range section {
		section[i].Factor = z[i]
	}
	neutralize(section)
	assignQuantiles(section, opts.Quantiles)
	return section
}

// neutralize takes the residual of a regression on industry dummies, which
// is the value minus its industry mean. Rows without an industry have no
// dummy set and keep their value.
func neutralize(section []Row) {
	groups := make(map[string][]int)
	for i, r := range section {
		if r.Industry == "" {
			section[i].Neutralized = r.Factor
			continue
		}
		groups[r.Industry] = append(groups[r.Industry], i)
	}
	for _, idx := range groups {
		values := make([]float64, len(idx))
		for k, i := range idx {
			values[k] = section[i].Factor
		}
		mean := indicator.Mean(values)
		for _, i := range idx {
			section[i].Neutralized = section[i].Factor - mean
		}
	}
}

// assignQuantiles buckets by rank of the neutralized value into equal-count
// groups; ties keep stock code order.
func assignQuantiles(section []Row, q int) {
	order := make([]int, len(section))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case section[a].Neutralized < section[b].Neutralized:
			return -1
		case section[a].Neutralized > section[b].Neutralized:
			return 1
		default:
			return 0
		}
	})
	n := len(section)
	for rank, i := range order {
		section[i].Quantile = rank*q/n + 1
	}
}
