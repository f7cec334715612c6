package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/strategy/ma_crossover"
)

// mockStrategy returns one target set per rebalance, repeating the last
type mockStrategy struct {
	name    string
	targets []map[string]float64
	calls   int
	err     error
	seen    []strategy.RebalanceContext
}

func (m *mockStrategy) Name() string {
	return m.name
}

func (m *mockStrategy) Description() string {
	return "Mock strategy for testing"
}

func (m *mockStrategy) Init(cfg strategy.Config) error {
	return nil
}

func (m *mockStrategy) Targets(ctx strategy.RebalanceContext) (map[string]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.seen = append(m.seen, ctx)
	idx := min(m.calls, len(m.targets)-1)
	m.calls++
	return m.targets[idx], nil
}

func d(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

// flatRows builds rows at a constant price that are tradable every next day.
func flatRows(price float64, dates ...time.Time) []pipeline.StrategyRow {
	rows := make([]pipeline.StrategyRow, len(dates))
	for i, date := range dates {
		rows[i] = pipeline.StrategyRow{
			Date:      date,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			MarketCap: 1e9,
			IsTrading: 1,
		}
	}
	rows[len(rows)-1].IsTrading = math.NaN()
	return rows
}

func testConfig() Config {
	return Config{Cash: 100000, Commission: 0.001, StampDuty: 0.001, Period: PeriodDay, NPeriods: 1}
}

func TestBacktester_BuysAtNextOpen(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05")}
	series := map[string][]pipeline.StrategyRow{"sz000001": flatRows(10, dates...)}
	strat := &mockStrategy{name: "mock", targets: []map[string]float64{{"sz000001": 0.99}}}

	result, err := New(testConfig(), nil).Run(context.Background(), strat, dates, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	tr := result.Trades[0]
	if tr.Side != SideBuy || tr.Shares != 9900 || tr.Price != 10 {
		t.Errorf("unexpected trade %+v", tr)
	}
	if !tr.Date.Equal(dates[1]) {
		t.Errorf("trade should fill on the next day, got %v", tr.Date)
	}
	if math.Abs(tr.Commission-99) > 1e-9 {
		t.Errorf("Commission = %f, want 99", tr.Commission)
	}

	if len(result.Equity) != 2 {
		t.Fatalf("expected 2 equity points, got %d", len(result.Equity))
	}
	if math.Abs(result.Equity[1].Value-99901) > 1e-6 {
		t.Errorf("Equity = %f, want 99901", result.Equity[1].Value)
	}
	if result.Stats.Rebalances != 1 {
		t.Errorf("Rebalances = %d, want 1", result.Stats.Rebalances)
	}
}

func TestBacktester_SellPaysStampDuty(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05"), d("2021-01-06")}
	series := map[string][]pipeline.StrategyRow{"sz000001": flatRows(10, dates...)}
	strat := &mockStrategy{name: "mock", targets: []map[string]float64{{"sz000001": 0.99}, {}}}

	result, err := New(testConfig(), nil).Run(context.Background(), strat, dates, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	sell := result.Trades[1]
	if sell.Side != SideSell || sell.Shares != 9900 {
		t.Errorf("unexpected sell %+v", sell)
	}
	if math.Abs(sell.Commission-198) > 1e-9 {
		t.Errorf("sell Commission = %f, want 198", sell.Commission)
	}

	final := result.Equity[2]
	if final.Positions != 0 || math.Abs(final.Value-99703) > 1e-6 {
		t.Errorf("unexpected final equity %+v", final)
	}
	if math.Abs(result.Stats.Commission-297) > 1e-9 {
		t.Errorf("Stats.Commission = %f, want 297", result.Stats.Commission)
	}
	if result.Stats.BuyTrades != 1 || result.Stats.SellTrades != 1 {
		t.Errorf("unexpected trade counts %+v", result.Stats)
	}
}

func TestBacktester_SkipsUntradableNextDay(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05")}
	rows := flatRows(10, dates...)
	rows[0].IsTrading = 0
	series := map[string][]pipeline.StrategyRow{"sz000001": rows}
	strat := &mockStrategy{name: "mock", targets: []map[string]float64{{"sz000001": 0.99}}}

	result, err := New(testConfig(), nil).Run(context.Background(), strat, dates, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(result.Trades))
	}
}

func TestBacktester_BuyClippedToCash(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05")}
	rows := flatRows(10, dates...)
	rows[1].Open = 20 // gaps up overnight
	series := map[string][]pipeline.StrategyRow{"sz000001": rows}
	strat := &mockStrategy{name: "mock", targets: []map[string]float64{{"sz000001": 0.99}}}

	result, err := New(testConfig(), nil).Run(context.Background(), strat, dates, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	// 100000 / (20 * 1.001) = 4995.004...
	if result.Trades[0].Shares != 4995 {
		t.Errorf("Shares = %d, want 4995", result.Trades[0].Shares)
	}
	if result.Equity[1].Cash < 0 {
		t.Errorf("cash went negative: %f", result.Equity[1].Cash)
	}
}

func TestBacktester_Run_NoData(t *testing.T) {
	bt := New(testConfig(), nil)
	strat := &mockStrategy{name: "mock", targets: []map[string]float64{{}}}

	if _, err := bt.Run(context.Background(), strat, nil, nil); err == nil {
		t.Error("expected error for no trading days")
	}
	if _, err := bt.Run(context.Background(), strat, []time.Time{d("2021-01-04")}, nil); err == nil {
		t.Error("expected error for no series")
	}
}

func TestBacktester_Run_StrategyError(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05")}
	series := map[string][]pipeline.StrategyRow{"sz000001": flatRows(10, dates...)}
	boom := errors.New("boom")

	_, err := New(testConfig(), nil).Run(context.Background(), &mockStrategy{name: "mock", err: boom}, dates, series)
	if !errors.Is(err, boom) {
		t.Errorf("expected strategy error, got %v", err)
	}
}

func TestBacktester_Run_ContextCancellation(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05")}
	series := map[string][]pipeline.StrategyRow{"sz000001": flatRows(10, dates...)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(), nil).Run(ctx, &mockStrategy{name: "mock", targets: []map[string]float64{{}}}, dates, series)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBacktester_HistoryEndsOnDecisionDay(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05"), d("2021-01-06")}
	series := map[string][]pipeline.StrategyRow{"sz000001": flatRows(10, dates...)}
	strat := &mockStrategy{name: "mock", targets: []map[string]float64{{}}}

	if _, err := New(testConfig(), nil).Run(context.Background(), strat, dates, series); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(strat.seen) != 2 {
		t.Fatalf("expected 2 rebalances, got %d", len(strat.seen))
	}
	for i, ctx := range strat.seen {
		h := ctx.History["sz000001"]
		if len(h) != i+1 {
			t.Fatalf("rebalance %d: history has %d rows, want %d", i, len(h), i+1)
		}
		if !h[len(h)-1].Date.Equal(ctx.Date) {
			t.Errorf("rebalance %d: history ends on %v, want %v", i, h[len(h)-1].Date, ctx.Date)
		}
	}
}

func TestBacktester_KeepHoldsPosition(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05"), d("2021-01-06")}
	series := map[string][]pipeline.StrategyRow{"sz000001": flatRows(10, dates...)}
	strat := &mockStrategy{name: "mock", targets: []map[string]float64{
		{"sz000001": 0.99},
		{"sz000001": strategy.Keep},
	}}

	result, err := New(testConfig(), nil).Run(context.Background(), strat, dates, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected only the initial buy, got %d trades", len(result.Trades))
	}
	if final := result.Equity[2]; final.Positions != 1 {
		t.Errorf("expected position kept, got %+v", final)
	}
}

func TestBacktester_SlippageMovesFillPrice(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05"), d("2021-01-06")}
	series := map[string][]pipeline.StrategyRow{"sz000001": flatRows(10, dates...)}
	strat := &mockStrategy{name: "mock", targets: []map[string]float64{{"sz000001": 0.5}, {}}}

	cfg := testConfig()
	cfg.Slippage = 0.01
	result, err := New(cfg, nil).Run(context.Background(), strat, dates, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(result.Trades))
	}
	if buy := result.Trades[0]; buy.Shares != 5000 || math.Abs(buy.Price-10.1) > 1e-9 {
		t.Errorf("unexpected buy %+v", buy)
	}
	if sell := result.Trades[1]; math.Abs(sell.Price-9.9) > 1e-9 {
		t.Errorf("unexpected sell %+v", sell)
	}
}

func TestBacktester_RunsMACrossover(t *testing.T) {
	closes := []float64{10, 9, 8, 7, 6, 12, 13, 14}
	dates := make([]time.Time, len(closes))
	start := d("2021-01-04")
	for i := range closes {
		dates[i] = start.AddDate(0, 0, i)
	}
	rows := flatRows(0, dates...)
	for i, c := range closes {
		rows[i].Open, rows[i].Close = c, c
	}
	series := map[string][]pipeline.StrategyRow{"sz000001": rows}

	strat := ma_crossover.New(2, 4)
	if err := strat.Init(strategy.Config{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := New(testConfig(), nil).Run(context.Background(), strat, dates, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Fast average first tops the slow one on the close of 12.
	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	buy := result.Trades[0]
	if buy.Side != SideBuy || !buy.Date.Equal(dates[6]) || buy.Price != 13 {
		t.Errorf("unexpected trade %+v", buy)
	}
}

func TestBacktester_SweepOrdersByReturn(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05"), d("2021-01-06")}
	rows := flatRows(10, dates...)
	rows[2].Open, rows[2].Close = 12, 12
	series := map[string][]pipeline.StrategyRow{"sz000001": rows}

	variants := []Variant{
		{Label: "cash", Strategy: &mockStrategy{name: "mock", targets: []map[string]float64{{}}}},
		{Label: "long", Strategy: &mockStrategy{name: "mock", targets: []map[string]float64{{"sz000001": 0.9}}}},
	}

	results, err := New(testConfig(), nil).Sweep(context.Background(), variants, 2, dates, series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Label != "long" || results[1].Label != "cash" {
		t.Errorf("unexpected order %+v", results)
	}
	if results[1].Stats.TotalReturn != 0 {
		t.Errorf("cash variant should be flat, got %f", results[1].Stats.TotalReturn)
	}
}

func TestBacktester_SweepStopsOnError(t *testing.T) {
	dates := []time.Time{d("2021-01-04"), d("2021-01-05")}
	series := map[string][]pipeline.StrategyRow{"sz000001": flatRows(10, dates...)}
	boom := errors.New("boom")

	variants := []Variant{
		{Label: "ok", Strategy: &mockStrategy{name: "mock", targets: []map[string]float64{{}}}},
		{Label: "bad", Strategy: &mockStrategy{name: "mock", err: boom}},
	}
	if _, err := New(testConfig(), nil).Sweep(context.Background(), variants, 1, dates, series); !errors.Is(err, boom) {
		t.Errorf("expected strategy error, got %v", err)
	}
}
