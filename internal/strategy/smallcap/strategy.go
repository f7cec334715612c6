package smallcap

import (
	"fmt"
	"math"
	"sort"

	"github.com/newthinker/quantlab/internal/strategy"
)

// Name identifies the strategy in the registry
const Name = "small_cap"

// DefaultNumStocks is the portfolio size when none is configured
const DefaultNumStocks = 5

// investedFraction of equity spread across the selected stocks
const investedFraction = 0.99

// SmallCap holds the N smallest stocks by total market cap among those that
// can be traded normally on the next day, equally weighted.
type SmallCap struct {
	numStocks int
}

// New creates a new small-cap strategy
func New(numStocks int) *SmallCap {
	if numStocks <= 0 {
		numStocks = DefaultNumStocks
	}
	return &SmallCap{numStocks: numStocks}
}

func (s *SmallCap) Name() string {
	return Name
}

func (s *SmallCap) Description() string {
	return fmt.Sprintf("Small cap (%d stocks, equal weight)", s.numStocks)
}

func (s *SmallCap) Init(cfg strategy.Config) error {
	switch n := cfg.Params["num_stocks"].(type) {
	case nil:
	case int:
		s.numStocks = n
	case float64:
		s.numStocks = int(n)
	default:
		return fmt.Errorf("num_stocks: unexpected type %T", n)
	}
	if s.numStocks <= 0 {
		return fmt.Errorf("num_stocks must be positive, got %d", s.numStocks)
	}
	return nil
}

// Weight is the target weight of each selected stock.
func (s *SmallCap) Weight() float64 {
	return investedFraction / float64(s.numStocks)
}

// Targets selects by ascending market cap. A candidate qualifies when its
// market cap is known and the next day is a normal trading day: tradable,
// not ST, not delisting and not opening at the up limit.
func (s *SmallCap) Targets(ctx strategy.RebalanceContext) (map[string]float64, error) {
	eligible := make([]strategy.Candidate, 0, len(ctx.Candidates))
	for _, c := range ctx.Candidates {
		if qualifies(c) {
			eligible = append(eligible, c)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Row.MarketCap != eligible[j].Row.MarketCap {
			return eligible[i].Row.MarketCap < eligible[j].Row.MarketCap
		}
		return eligible[i].Symbol < eligible[j].Symbol
	})
	if len(eligible) > s.numStocks {
		eligible = eligible[:s.numStocks]
	}

	targets := make(map[string]float64, len(eligible))
	for _, c := range eligible {
		targets[c.Symbol] = s.Weight()
	}
	return targets, nil
}

func qualifies(c strategy.Candidate) bool {
	r := c.Row
	return !math.IsNaN(r.MarketCap) &&
		r.IsTrading == 1 &&
		r.IsST == 0 &&
		r.IsDelisting == 0 &&
		r.LimitUp == 0
}
