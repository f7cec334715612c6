package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/newthinker/quantlab/internal/strategy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Variant is one parameter combination of a strategy
type Variant struct {
	Label    string
	Strategy strategy.Rebalancer
}

// VariantResult pairs a variant with its statistics
type VariantResult struct {
	Label string
	Stats Stats
}

// Sweep runs every variant over the same data with at most workers runs in
// flight and returns the results by descending total return. Each variant
// needs its own strategy instance; series and dates are only read. The first
// failing run cancels the rest.
func (b *Backtester) Sweep(ctx context.Context, variants []Variant, workers int, dates []time.Time, series map[string][]pipeline.StrategyRow) ([]VariantResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]VariantResult, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, v := range variants {
		g.Go(func() error {
			res, err := b.Run(gctx, v.Strategy, dates, series)
			if err != nil {
				return err
			}
			results[i] = VariantResult{Label: v.Label, Stats: res.Stats}
			b.logger.Debug("variant done",
				zap.String("variant", v.Label),
				zap.Float64("total_return", res.Stats.TotalReturn),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Stats.TotalReturn > results[j].Stats.TotalReturn
	})
	return results, nil
}
