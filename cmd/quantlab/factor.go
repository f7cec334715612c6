package main

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/factor"
	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	factorOut string
	factorRaw string
)

var factorCmd = &cobra.Command{
	Use:   "factor",
	Short: "Preprocess the market cap factor for IC analysis",
	Long: `Read every stock on its own traded days, take total market cap as the
factor and preprocess each date's cross-section: log, MAD winsorize, z-score
and industry neutralization. The resulting table is the input of the IC and
quantile analysis.`,
	Args: cobra.NoArgs,
	RunE: runFactor,
}

func init() {
	addDataFlags(factorCmd.Flags())
	factorCmd.Flags().StringVarP(&factorOut, "out", "o", "", "Output path inside storage (default factor.output)")
	factorCmd.Flags().StringVar(&factorRaw, "raw", "", "Also write the unprocessed factor table to this path")

	rootCmd.AddCommand(factorCmd)
}

func runFactor(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := signalContext()
	defer cancel()

	merged, err := e.load(ctx, "factor", false)
	if err != nil {
		e.log.Error("loading series failed", zap.Error(err))
		return err
	}

	rows := pipeline.MergeFactorRows(merged)
	if factorRaw != "" {
		if err := pipeline.WriteFactor(ctx, e.store, factorRaw, rows); err != nil {
			return fmt.Errorf("writing raw factor table: %w", err)
		}
	}

	out, summary := factor.Preprocess(rows, factor.Options{WinsorizeN: e.cfg.Factor.WinsorizeN})
	if summary.Dropped > 0 {
		e.log.Warn("factor values dropped",
			zap.Int("dropped", summary.Dropped),
			zap.String("reason", "missing or not positive"),
		)
	}

	path := factorOut
	if path == "" {
		path = e.cfg.Factor.Output
	}
	if err := factor.Write(ctx, e.store, path, out); err != nil {
		return err
	}

	e.log.Info("factor table written",
		zap.String("path", path),
		zap.Int("dates", summary.Dates),
		zap.Int("rows", summary.Rows),
	)
	return nil
}
