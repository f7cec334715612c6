package ma_crossover

import (
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/newthinker/quantlab/internal/strategy"
)

func history(prices ...float64) []pipeline.StrategyRow {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]pipeline.StrategyRow, len(prices))
	for i, p := range prices {
		rows[i] = pipeline.StrategyRow{
			Date:      start.AddDate(0, 0, i),
			Open:      p,
			Close:     p,
			IsTrading: 1,
		}
	}
	return rows
}

func contextFor(symbol string, rows []pipeline.StrategyRow, held int64) strategy.RebalanceContext {
	last := rows[len(rows)-1]
	return strategy.RebalanceContext{
		Date:       last.Date,
		Candidates: []strategy.Candidate{{Symbol: symbol, Row: last}},
		Holdings:   map[string]int64{symbol: held},
		History:    map[string][]pipeline.StrategyRow{symbol: rows},
	}
}

func TestMACrossover_ImplementsStrategy(t *testing.T) {
	var _ strategy.Rebalancer = (*MACrossover)(nil)
}

func TestMACrossover_Name(t *testing.T) {
	s := New(5, 10)
	if s.Name() != "ma_crossover" {
		t.Errorf("expected 'ma_crossover', got '%s'", s.Name())
	}
	if s.Description() != "MA Crossover (SMA 5/10)" {
		t.Errorf("unexpected description %q", s.Description())
	}
}

func TestMACrossover_Init(t *testing.T) {
	s := New(DefaultFastPeriod, DefaultSlowPeriod)
	err := s.Init(strategy.Config{Params: map[string]any{
		"fast_period": float64(12),
		"slow_period": 50,
		"ma_type":     "EMA",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.fastPeriod != 12 || s.slowPeriod != 50 || s.maType != TypeEMA {
		t.Errorf("params not applied: %d/%d %s", s.fastPeriod, s.slowPeriod, s.maType)
	}

	bad := []map[string]any{
		{"fast_period": 20, "slow_period": 10},
		{"fast_period": 0},
		{"ma_type": "wma"},
		{"slow_period": "90"},
	}
	for _, p := range bad {
		if err := New(2, 4).Init(strategy.Config{Params: p}); err == nil {
			t.Errorf("expected error for params %v", p)
		}
	}
}

func TestMACrossover_BuysWhenFastAboveSlow(t *testing.T) {
	s := New(2, 4)

	// fast = (80+120)/2 = 100, slow = (90+85+80+120)/4 = 93.75
	rows := history(100, 95, 90, 85, 80, 120)

	targets, err := s.Targets(contextFor("sh600000", rows, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := targets["sh600000"]; got != DefaultTarget {
		t.Errorf("expected buy weight %g, got %g", DefaultTarget, got)
	}
}

func TestMACrossover_SkipsBuyAtLimitUpOpen(t *testing.T) {
	s := New(2, 4)
	rows := history(100, 95, 90, 85, 80, 120)
	rows[len(rows)-1].LimitUp = 1

	targets, _ := s.Targets(contextFor("sh600000", rows, 0))
	if _, ok := targets["sh600000"]; ok {
		t.Errorf("expected no buy when the next day opens at the up limit, got %v", targets)
	}

	rows[len(rows)-1].LimitUp = 0
	rows[len(rows)-1].IsTrading = 0
	targets, _ = s.Targets(contextFor("sh600000", rows, 0))
	if _, ok := targets["sh600000"]; ok {
		t.Errorf("expected no buy when the next day is suspended, got %v", targets)
	}
}

func TestMACrossover_SellsWhenFastBelowSlow(t *testing.T) {
	s := New(2, 4)

	// fast = (100+60)/2 = 80, slow = (90+95+100+60)/4 = 86.25
	rows := history(80, 85, 90, 95, 100, 60)

	targets, err := s.Targets(contextFor("sh600000", rows, 1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, ok := targets["sh600000"]
	if !ok || w != 0 {
		t.Errorf("expected sell (weight 0), got %v", targets)
	}
}

func TestMACrossover_KeepsHeldPositionInUptrend(t *testing.T) {
	s := New(2, 4)
	rows := history(100, 95, 90, 85, 80, 120)

	targets, _ := s.Targets(contextFor("sh600000", rows, 1000))
	if targets["sh600000"] != strategy.Keep {
		t.Errorf("expected Keep for held symbol, got %v", targets)
	}
}

func TestMACrossover_NotEnoughData(t *testing.T) {
	s := New(50, 200)

	prices := make([]float64, 100)
	for i := range prices {
		prices[i] = 100
	}
	rows := history(prices...)

	targets, err := s.Targets(contextFor("sh600000", rows, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 0 {
		t.Errorf("expected no targets with insufficient data, got %v", targets)
	}

	targets, _ = s.Targets(contextFor("sh600000", rows, 500))
	if targets["sh600000"] != strategy.Keep {
		t.Errorf("expected held position kept with insufficient data, got %v", targets)
	}
}

func TestMACrossover_SplitsTargetAcrossSymbols(t *testing.T) {
	s := New(2, 4)
	up := history(100, 95, 90, 85, 80, 120)
	down := history(80, 85, 90, 95, 100, 60)

	ctx := strategy.RebalanceContext{
		Date: up[len(up)-1].Date,
		Candidates: []strategy.Candidate{
			{Symbol: "sh600000", Row: up[len(up)-1]},
			{Symbol: "sz000001", Row: down[len(down)-1]},
		},
		Holdings: map[string]int64{},
		History: map[string][]pipeline.StrategyRow{
			"sh600000": up,
			"sz000001": down,
		},
	}

	targets, _ := s.Targets(ctx)
	if got := targets["sh600000"]; got != DefaultTarget/2 {
		t.Errorf("expected weight %g, got %g", DefaultTarget/2, got)
	}
	if _, ok := targets["sz000001"]; ok {
		t.Errorf("expected no target for flat symbol in downtrend, got %v", targets)
	}
}
