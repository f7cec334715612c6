package main

import (
	"fmt"
	"time"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/calendar"
	"github.com/newthinker/quantlab/internal/config"
	"github.com/newthinker/quantlab/internal/metrics"
	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/strategy/ma_crossover"
	"github.com/newthinker/quantlab/internal/strategy/smallcap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run a rebalancing backtest",
	Long: `Run a rebalancing strategy against the aligned series of the whole universe
and show performance statistics next to the index benchmark. The strategy
defaults to small_cap; ma_crossover times each stock on its moving averages.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBacktest,
}

func init() {
	addDataFlags(backtestCmd.Flags())

	rootCmd.AddCommand(backtestCmd)
}

func newStrategyRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	reg.Register(smallcap.New(smallcap.DefaultNumStocks))
	reg.Register(ma_crossover.New(ma_crossover.DefaultFastPeriod, ma_crossover.DefaultSlowPeriod))
	return reg
}

func runBacktest(cmd *cobra.Command, args []string) error {
	name := smallcap.Name
	if len(args) == 1 {
		name = args[0]
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	strat, err := newStrategyRegistry().Get(name)
	if err != nil {
		return err
	}
	if err := strat.Init(strategy.Config{
		Enabled: true,
		Params:  strategyParams(e.cfg.Backtest),
	}); err != nil {
		return fmt.Errorf("initializing strategy %s: %w", name, err)
	}

	period, err := backtest.ParsePeriod(e.cfg.Backtest.PeriodType)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	merged, err := e.load(ctx, "strategy", true)
	if err != nil {
		e.log.Error("loading series failed", zap.Error(err))
		return err
	}

	series := make(map[string][]pipeline.StrategyRow, len(merged))
	for symbol, rows := range merged {
		series[symbol] = pipeline.StrategyRows(rows)
	}

	bt := backtest.New(backtest.Config{
		Cash:       e.cfg.Backtest.Cash,
		Commission: e.cfg.Backtest.Commission,
		StampDuty:  e.cfg.Backtest.StampDuty,
		Slippage:   e.cfg.Backtest.Slippage,
		Period:     period,
		NPeriods:   e.cfg.Backtest.NPeriods,
	}, e.log)

	t0 := time.Now()
	result, err := bt.Run(ctx, strat, e.calendar.Dates(), series)
	if err != nil {
		e.metrics.RecordBacktest(metrics.StatusFailed, time.Since(t0).Seconds())
		return fmt.Errorf("running backtest: %w", err)
	}
	e.metrics.RecordBacktest(metrics.StatusCompleted, time.Since(t0).Seconds())

	s := result.Stats
	bench := benchmarkReturn(e.calendar)
	e.log.Info("backtest complete",
		zap.String("strategy", result.Strategy),
		zap.Int("trades", s.TotalTrades),
		zap.Int("rebalances", s.Rebalances),
		zap.Float64("final_value", s.FinalValue),
	)

	fmt.Println("=== quantlab Backtest ===")
	fmt.Printf("Strategy:      %s\n", result.Strategy)
	fmt.Printf("Period:        %s to %s\n", result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02"))
	fmt.Printf("Stocks:        %d\n", len(series))
	fmt.Printf("Rebalances:    %d\n", s.Rebalances)
	fmt.Printf("Trades:        %d (%d buys, %d sells)\n", s.TotalTrades, s.BuyTrades, s.SellTrades)
	fmt.Printf("Commission:    %.2f\n", s.Commission)
	fmt.Printf("Final value:   %.2f\n", s.FinalValue)
	fmt.Printf("Total return:  %.2f%%\n", s.TotalReturn)
	fmt.Printf("Benchmark:     %.2f%% (%s)\n", bench, e.cfg.Data.IndexPath)
	fmt.Printf("Excess return: %.2f%%\n", s.TotalReturn-bench)
	fmt.Printf("Annual return: %.2f%%\n", s.AnnualReturn)
	fmt.Printf("Max drawdown:  %.2f%%\n", s.MaxDrawdown)
	fmt.Printf("Sharpe ratio:  %.2f\n", s.SharpeRatio)
	return nil
}

// strategyParams maps the backtest config onto the params every registered
// strategy may read
func strategyParams(cfg config.BacktestConfig) map[string]any {
	return map[string]any{
		"num_stocks":  cfg.NumStocks,
		"fast_period": cfg.FastPeriod,
		"slow_period": cfg.SlowPeriod,
		"ma_type":     cfg.MAType,
	}
}

// benchmarkReturn is the index return from the first day's close to the
// last, in percent
func benchmarkReturn(cal *calendar.Calendar) float64 {
	days := cal.Days()
	if len(days) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(days)-1)
	for _, d := range days[1:] {
		returns = append(returns, d.Return)
	}
	return backtest.CompoundReturn(returns)
}
