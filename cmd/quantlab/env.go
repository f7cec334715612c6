package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/quantlab/internal/calendar"
	"github.com/newthinker/quantlab/internal/config"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/logger"
	"github.com/newthinker/quantlab/internal/metrics"
	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/newthinker/quantlab/internal/source"
	"github.com/newthinker/quantlab/internal/storage"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Flags shared by the data commands
var (
	fromDate string
	toDate   string
	workers  int
	refresh  bool
)

// env is everything a command needs once configuration is loaded
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	store   storage.Store
	reader  *source.Reader
	metrics *metrics.Registry
	start   time.Time
	end     time.Time

	// calendar is set by an aligned load
	calendar *calendar.Calendar
}

func setup() (*env, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}

	// Command-line flags take precedence over the config file
	if fromDate != "" {
		cfg.Data.StartDate = fromDate
	}
	if toDate != "" {
		cfg.Data.EndDate = toDate
	}
	if workers > 0 {
		cfg.Pipeline.Workers = workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	log, err := logger.NewWithOptions(logger.Options{
		Development: debug,
		Level:       level,
		File: logger.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	start, end, _ := cfg.Data.Window()
	reader, err := source.NewReader(store, source.Options{
		StockPrefix:     cfg.Data.StockPrefix,
		Encoding:        cfg.Data.Encoding,
		ExcludePrefixes: cfg.Data.ExcludePrefixes,
		Start:           start,
		End:             end,
	})
	if err != nil {
		return nil, err
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	return &env{
		cfg:     cfg,
		log:     log,
		store:   store,
		reader:  reader,
		metrics: reg,
		start:   start,
		end:     end,
	}, nil
}

// close flushes metrics and the logger
func (e *env) close() {
	if e.metrics != nil {
		if err := e.metrics.WriteTextfile(e.cfg.Metrics.Textfile); err != nil {
			e.log.Warn("writing metrics textfile failed", zap.Error(err))
		}
	}
	_ = e.log.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// load runs the batch over the universe, through the cache when enabled.
// aligned selects calendar alignment and limit bands; the factor flow runs
// unaligned and without bands.
func (e *env) load(ctx context.Context, kind string, aligned bool) (map[string][]core.AlignedBar, error) {
	symbols, err := e.reader.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing universe: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no stock files under %q", e.cfg.Data.StockPrefix)
	}

	opts := []pipeline.Option{pipeline.WithMetrics(e.metrics)}
	index := ""
	if aligned {
		index = e.cfg.Data.IndexPath
		cal, err := e.reader.ReadIndex(ctx, e.cfg.Data.IndexPath, e.start, e.end)
		if err != nil {
			return nil, err
		}
		e.log.Info("calendar loaded",
			zap.Int("days", cal.Len()),
			zap.Time("first", cal.First()),
			zap.Time("last", cal.Last()),
		)
		e.calendar = cal
		opts = append(opts, pipeline.WithCalendar(cal))
	} else {
		opts = append(opts, pipeline.WithoutLimits())
	}

	batch := pipeline.NewBatch(pipeline.New(e.reader, opts...), e.cfg.Pipeline.Workers, e.log, e.metrics)
	build := func(ctx context.Context) (map[string][]core.AlignedBar, error) {
		merged, summary, err := batch.Run(ctx, symbols)
		if err != nil {
			return nil, err
		}
		fmt.Printf("loaded %d / skipped %d\n", summary.Loaded, summary.Skipped())
		return merged, nil
	}

	if !e.cfg.Cache.Enabled {
		return build(ctx)
	}

	cache := pipeline.NewCache(e.store, e.cfg.Cache.Prefix, e.log, e.metrics)
	key := pipeline.CacheKey(kind, symbols, e.start, e.end, index)
	merged, hit, err := cache.LoadOrBuild(ctx, key, refresh, build)
	if err != nil {
		return nil, err
	}
	if hit {
		fmt.Printf("loaded %d / skipped %d (cached)\n", len(merged), len(symbols)-len(merged))
	}
	return merged, nil
}

func addDataFlags(flags *pflag.FlagSet) {
	flags.StringVar(&fromDate, "from", "", "Start date YYYY-MM-DD (overrides data.start_date)")
	flags.StringVar(&toDate, "to", "", "End date YYYY-MM-DD (overrides data.end_date)")
	flags.IntVar(&workers, "workers", 0, "Parallel workers (default NumCPU-1)")
	flags.BoolVar(&refresh, "refresh", false, "Rebuild the cached batch result")
}
