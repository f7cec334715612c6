package main

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var prepareOut string

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Prepare aligned strategy series for every stock",
	Long: `Read every stock CSV, compute back-adjusted prices and limit bands, align
each series to the reference index calendar and write one strategy CSV per
stock.`,
	Args: cobra.NoArgs,
	RunE: runPrepare,
}

func init() {
	addDataFlags(prepareCmd.Flags())
	prepareCmd.Flags().StringVarP(&prepareOut, "out", "o", "strategy", "Output directory inside storage")

	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := signalContext()
	defer cancel()

	merged, err := e.load(ctx, "strategy", true)
	if err != nil {
		e.log.Error("prepare failed", zap.Error(err))
		return err
	}

	n, err := pipeline.WriteStrategy(ctx, e.store, prepareOut, merged)
	if err != nil {
		return fmt.Errorf("writing strategy series: %w", err)
	}

	e.log.Info("strategy series written",
		zap.Int("files", n),
		zap.String("dir", prepareOut),
	)
	return nil
}
