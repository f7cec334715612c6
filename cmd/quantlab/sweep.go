package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/strategy/ma_crossover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sweepFast []int
	sweepSlow []int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Grid-search the moving average periods",
	Long: `Backtest ma_crossover for every fast/slow period pair and list the
combinations by total return. Pairs whose fast period is not below the slow
period are skipped.`,
	RunE: runSweep,
}

func init() {
	addDataFlags(sweepCmd.Flags())
	sweepCmd.Flags().IntSliceVar(&sweepFast, "fast", []int{10, 12, 14, 16, 18, 20}, "Fast periods to try")
	sweepCmd.Flags().IntSliceVar(&sweepSlow, "slow", []int{50, 70, 90}, "Slow periods to try")

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	period, err := backtest.ParsePeriod(e.cfg.Backtest.PeriodType)
	if err != nil {
		return err
	}

	var variants []backtest.Variant
	for _, fast := range sweepFast {
		for _, slow := range sweepSlow {
			if fast >= slow {
				continue
			}
			strat := ma_crossover.New(fast, slow)
			params := strategyParams(e.cfg.Backtest)
			params["fast_period"], params["slow_period"] = fast, slow
			if err := strat.Init(strategy.Config{Enabled: true, Params: params}); err != nil {
				return fmt.Errorf("initializing %d/%d: %w", fast, slow, err)
			}
			variants = append(variants, backtest.Variant{
				Label:    fmt.Sprintf("%d/%d", fast, slow),
				Strategy: strat,
			})
		}
	}
	if len(variants) == 0 {
		return fmt.Errorf("no fast/slow pair with fast below slow")
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

	workers := e.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = pipeline.DefaultWorkers()
	}
	results, err := bt.Sweep(ctx, variants, workers, e.calendar.Dates(), series)
	if err != nil {
		return fmt.Errorf("running sweep: %w", err)
	}
	e.log.Info("sweep complete", zap.Int("variants", len(results)))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "FAST/SLOW\tRETURN\tMAX DD\tSHARPE\tTRADES\n")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.2f%%\t%.2f%%\t%.2f\t%d\n",
			r.Label, r.Stats.TotalReturn, r.Stats.MaxDrawdown, r.Stats.SharpeRatio, r.Stats.TotalTrades)
	}
	return w.Flush()
}
