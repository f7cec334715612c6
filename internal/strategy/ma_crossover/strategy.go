package ma_crossover

import (
	"fmt"
	"strings"

	"github.com/newthinker/quantlab/internal/indicator"
	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/newthinker/quantlab/internal/strategy"
)

// Name identifies the strategy in the registry
const Name = "ma_crossover"

const (
	DefaultFastPeriod = 10
	DefaultSlowPeriod = 90
	// DefaultTarget is the fraction of equity put to work when every
	// symbol is long.
	DefaultTarget = 0.95
)

// MA types
const (
	TypeSMA = "sma"
	TypeEMA = "ema"
)

// MACrossover is a per-symbol timing strategy. A flat symbol is bought
// while its fast average is above the slow one and sold once the fast
// average drops below it. Each symbol gets an equal slice of the target.
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	maType     string
	target     float64
}

// New creates a new MA crossover strategy
func New(fastPeriod, slowPeriod int) *MACrossover {
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		maType:     TypeSMA,
		target:     DefaultTarget,
	}
}

func (s *MACrossover) Name() string {
	return Name
}

func (s *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%s %d/%d)", strings.ToUpper(s.maType), s.fastPeriod, s.slowPeriod)
}

func (s *MACrossover) Init(cfg strategy.Config) error {
	var err error
	if s.fastPeriod, err = intParam(cfg.Params, "fast_period", s.fastPeriod); err != nil {
		return err
	}
	if s.slowPeriod, err = intParam(cfg.Params, "slow_period", s.slowPeriod); err != nil {
		return err
	}
	if v, ok := cfg.Params["ma_type"].(string); ok && v != "" {
		s.maType = strings.ToLower(v)
	}
	if v, ok := cfg.Params["target"].(float64); ok && v > 0 {
		s.target = v
	}

	if s.fastPeriod <= 0 || s.slowPeriod <= 0 {
		return fmt.Errorf("periods must be positive, got %d/%d", s.fastPeriod, s.slowPeriod)
	}
	if s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("fast period %d must be below slow period %d", s.fastPeriod, s.slowPeriod)
	}
	if s.maType != TypeSMA && s.maType != TypeEMA {
		return fmt.Errorf("unknown ma_type %q", s.maType)
	}
	if s.target > 1 {
		return fmt.Errorf("target must not exceed 1, got %g", s.target)
	}
	return nil
}

// Targets returns a buy weight for flat symbols in an uptrend, zero for
// held symbols in a downtrend and Keep for every other held symbol. A buy
// is skipped when the next day is not tradable or opens at the up limit.
func (s *MACrossover) Targets(ctx strategy.RebalanceContext) (map[string]float64, error) {
	targets := make(map[string]float64)
	if len(ctx.Candidates) == 0 {
		return targets, nil
	}
	weight := s.target / float64(len(ctx.Candidates))

	for _, c := range ctx.Candidates {
		held := ctx.Holdings[c.Symbol] > 0
		fast, slow, ok := s.averages(ctx.History[c.Symbol])

		switch {
		case !ok:
			if held {
				targets[c.Symbol] = strategy.Keep
			}
		case held && fast < slow:
			targets[c.Symbol] = 0
		case held:
			targets[c.Symbol] = strategy.Keep
		case fast > slow && c.Row.IsTrading == 1 && c.Row.LimitUp == 0:
			targets[c.Symbol] = weight
		}
	}
	return targets, nil
}

// averages returns the latest fast and slow averages of the closes.
func (s *MACrossover) averages(history []pipeline.StrategyRow) (float64, float64, bool) {
	if len(history) < s.slowPeriod {
		return 0, 0, false
	}
	closes := make([]float64, len(history))
	for i, r := range history {
		closes[i] = r.Close
	}

	ma := indicator.SMA
	if s.maType == TypeEMA {
		ma = indicator.EMA
	}
	fast := ma(closes, s.fastPeriod)
	slow := ma(closes, s.slowPeriod)
	if len(fast) == 0 || len(slow) == 0 {
		return 0, 0, false
	}
	return fast[len(fast)-1], slow[len(slow)-1], true
}

func intParam(params map[string]any, key string, def int) (int, error) {
	switch v := params[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}
