package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Summary describes the outcome of a batch
type Summary struct {
	Loaded   int
	Empty    int
	Failed   int
	Failures map[string]error
	Duration time.Duration
}

// Skipped is the number of symbols left out of the merged result.
func (s Summary) Skipped() int {
	return s.Empty + s.Failed
}

// Batch runs a Processor over many symbols with bounded parallelism
type Batch struct {
	processor Processor
	workers   int
	logger    *zap.Logger
	metrics   *metrics.Registry
}

// DefaultWorkers leaves one core for the coordinating goroutine.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// NewBatch creates a batch runner. workers <= 0 selects DefaultWorkers.
func NewBatch(p Processor, workers int, logger *zap.Logger, reg *metrics.Registry) *Batch {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{
		processor: p,
		workers:   workers,
		logger:    logger,
		metrics:   reg,
	}
}

type outcome struct {
	rows []core.AlignedBar
	err  error
}

// Run processes every symbol and merges the non-empty results once all
// workers have finished.
//
// A symbol that fails or yields no rows is logged and left out; the others
// are unaffected. ErrCalendarMismatch aborts the whole batch. Cancelling ctx
// stops new symbols from being dispatched; symbols already running finish
// and the partial result is returned with ctx.Err().
func (b *Batch) Run(ctx context.Context, symbols []string) (map[string][]core.AlignedBar, Summary, error) {
	start := time.Now()
	summary := Summary{Failures: make(map[string]error)}

	results := make([]outcome, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	b.logger.Info("batch starting",
		zap.Int("symbols", len(symbols)),
		zap.Int("workers", b.workers),
	)

	dispatched := 0
	for i, symbol := range symbols {
		if gctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() error {
			t0 := time.Now()
			rows, err := b.processor.Process(gctx, symbol)
			results[i] = outcome{rows: rows, err: err}

			status := metrics.StatusLoaded
			switch {
			case err != nil:
				status = metrics.StatusFailed
			case len(rows) == 0:
				status = metrics.StatusEmpty
			}
			b.metrics.RecordSymbol(status, time.Since(t0).Seconds())

			if errors.Is(err, core.ErrCalendarMismatch) {
				return err
			}
			return nil
		})
	}

	fatal := g.Wait()

	merged := make(map[string][]core.AlignedBar, dispatched)
	for i := 0; i < dispatched; i++ {
		symbol, res := symbols[i], results[i]
		switch {
		case res.err != nil:
			summary.Failed++
			summary.Failures[symbol] = res.err
			b.logger.Warn("symbol skipped",
				zap.String("symbol", symbol),
				zap.Error(res.err),
			)
		case len(res.rows) == 0:
			summary.Empty++
			b.logger.Warn("symbol has no rows in range", zap.String("symbol", symbol))
		default:
			summary.Loaded++
			merged[symbol] = res.rows
		}
	}

	summary.Duration = time.Since(start)
	b.metrics.RecordBatch(summary.Duration.Seconds())

	if fatal != nil {
		b.logger.Error("batch aborted", zap.Error(fatal))
		return nil, summary, fatal
	}

	b.logger.Info("batch complete",
		zap.Int("loaded", summary.Loaded),
		zap.Int("skipped", summary.Skipped()),
		zap.Duration("duration", summary.Duration),
	)

	if err := ctx.Err(); err != nil {
		return merged, summary, err
	}
	return merged, summary, nil
}

// Symbols returns the keys of a merged result in sorted order.
func Symbols(merged map[string][]core.AlignedBar) []string {
	out := make([]string, 0, len(merged))
	for s := range merged {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
