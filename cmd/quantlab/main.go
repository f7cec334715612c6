package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "quantlab",
	Short: "quantlab - CN A-share daily data preparation and research",
	Long: `quantlab turns raw per-stock daily CSVs into back-adjusted, limit-annotated
series aligned to a reference trading calendar. The prepared data feeds a
small-cap rebalancing backtest and single-factor preprocessing.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
