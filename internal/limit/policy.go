package limit

import (
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/shopspring/decimal"
)

// ReformDate is the registration-system reform. STAR and ChiNext bars dated
// strictly after it use the 20% band.
var ReformDate = time.Date(2020, 8, 3, 0, 0, 0, 0, time.UTC)

// Rule maps a predicate on identity and date to an up/down rate pair
type Rule struct {
	Name  string
	Match func(id core.Identity, date time.Time) bool
	Up    decimal.Decimal
	Down  decimal.Decimal
}

// Policy is an ordered rule table; the first matching rule wins
type Policy []Rule

// Rates returns the band rates for an identity on a date.
func (p Policy) Rates(id core.Identity, date time.Time) (Rule, bool) {
	for _, r := range p {
		if r.Match(id, date) {
			return r, true
		}
	}
	return Rule{}, false
}

// DefaultPolicy is the CN A-share board-rate table.
var DefaultPolicy = Policy{
	{
		Name:  "bj",
		Match: func(id core.Identity, _ time.Time) bool { return id.BJ },
		Up:    decimal.RequireFromString("0.30"),
		Down:  decimal.RequireFromString("0.30"),
	},
	{
		Name: "star_chinext_registration",
		Match: func(id core.Identity, date time.Time) bool {
			return (id.Board == core.BoardSTAR || id.Board == core.BoardChiNext) && afterReform(date)
		},
		Up:   decimal.RequireFromString("0.20"),
		Down: decimal.RequireFromString("0.20"),
	},
	{
		Name:  "st",
		Match: func(id core.Identity, _ time.Time) bool { return id.ST },
		Up:    decimal.RequireFromString("0.05"),
		Down:  decimal.RequireFromString("0.05"),
	},
	{
		Name:  "main",
		Match: func(core.Identity, time.Time) bool { return true },
		Up:    decimal.RequireFromString("0.10"),
		Down:  decimal.RequireFromString("0.10"),
	},
}

// afterReform compares calendar days so that any time of day on 2020-08-03
// still falls under the old rule.
func afterReform(date time.Time) bool {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).After(ReformDate)
}
