// Package limit computes daily price-limit bands and the limit flags
// derived from them.
package limit

import (
	"math"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Classifier evaluates a Policy row by row
type Classifier struct {
	policy Policy
}

// New creates a Classifier; a nil policy means DefaultPolicy.
func New(policy Policy) *Classifier {
	if policy == nil {
		policy = DefaultPolicy
	}
	return &Classifier{policy: policy}
}

// Classify computes the band of a single bar. Limits are rounded half-up to
// the cent before any comparison. New listings without a previous close are
// not special-cased and fail as data errors.
func (c *Classifier) Classify(b core.RawBar) (core.LimitBand, error) {
	if math.IsNaN(b.PrevClose) || math.IsInf(b.PrevClose, 0) || b.PrevClose <= 0 {
		return core.LimitBand{}, core.Errorf(core.ErrData, "%s %s: prev_close is missing",
			b.Code, b.Date.Format("2006-01-02"))
	}

	rule, ok := c.policy.Rates(core.IdentityOf(b), b.Date)
	if !ok {
		return core.LimitBand{}, core.Errorf(core.ErrData, "%s: no limit rule matches", b.Code)
	}

	prev := decimal.NewFromFloat(b.PrevClose)
	up, _ := prev.Mul(one.Add(rule.Up)).Round(2).Float64()
	down, _ := prev.Mul(one.Sub(rule.Down)).Round(2).Float64()

	return core.LimitBand{
		UpLimit:     up,
		DownLimit:   down,
		OneWordUp:   b.Low >= up,
		OneWordDown: b.High <= down,
		OpenUp:      b.Open >= up,
		OpenDown:    b.Open <= down,
	}, nil
}

// Apply classifies every bar in place and sets the ST and delisting flags
// from each bar's own name.
func (c *Classifier) Apply(bars []core.DailyBar) error {
	for i := range bars {
		band, err := c.Classify(bars[i].RawBar)
		if err != nil {
			return err
		}
		bars[i].Band = band
	}
	Flag(bars)
	return nil
}

// Flag sets only the ST and delisting flags, leaving bands empty.
func Flag(bars []core.DailyBar) {
	for i := range bars {
		bars[i].IsST = core.IsSTName(bars[i].Name)
		bars[i].IsDelisting = core.IsDelistingName(bars[i].Name)
	}
}
