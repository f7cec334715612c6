// Package pipeline turns one symbol's raw CSV into an aligned, annotated
// series and runs that for a whole universe in parallel.
package pipeline

import (
	"context"

	"github.com/newthinker/quantlab/internal/adjust"
	"github.com/newthinker/quantlab/internal/calendar"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/limit"
	"github.com/newthinker/quantlab/internal/metrics"
)

// Source loads a symbol's raw bars, already windowed
type Source interface {
	ReadStock(ctx context.Context, symbol string) ([]core.RawBar, error)
}

// Processor runs the per-symbol pipeline
type Processor interface {
	Process(ctx context.Context, symbol string) ([]core.AlignedBar, error)
}

// Pipeline is the per-symbol stage chain:
// read, limit bands, adjusted prices, calendar alignment, next-day look-ahead.
// A Pipeline holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	source     Source
	classifier *limit.Classifier
	calendar   *calendar.Calendar
	metrics    *metrics.Registry
	noLimits   bool
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCalendar aligns every series onto cal. Without a calendar each
// series keeps only its traded days.
func WithCalendar(cal *calendar.Calendar) Option {
	return func(p *Pipeline) { p.calendar = cal }
}

// WithPolicy replaces the default limit band policy.
func WithPolicy(policy limit.Policy) Option {
	return func(p *Pipeline) { p.classifier = limit.New(policy) }
}

// WithoutLimits skips limit band classification. Bands stay empty and a
// missing first prev_close is no longer an error; the ST and delisting
// flags are still set.
func WithoutLimits() Option {
	return func(p *Pipeline) { p.noLimits = true }
}

// WithMetrics records row counts into reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = reg }
}

// New creates a pipeline reading from src.
func New(src Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:     src,
		classifier: limit.New(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the stage chain for one symbol. A symbol without rows in the
// window yields an empty slice and no error.
func (p *Pipeline) Process(ctx context.Context, symbol string) ([]core.AlignedBar, error) {
	raw, err := p.source.ReadStock(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []core.AlignedBar{}, nil
	}

	bars := make([]core.DailyBar, len(raw))
	for i, b := range raw {
		bars[i].RawBar = b
	}

	if p.noLimits {
		limit.Flag(bars)
	} else if err := p.classifier.Apply(bars); err != nil {
		return nil, err
	}
	if err := adjust.Apply(bars); err != nil {
		return nil, err
	}

	var rows []core.AlignedBar
	if p.calendar != nil {
		var stats calendar.AlignStats
		rows, stats, err = calendar.Align(bars, p.calendar)
		if err != nil {
			return nil, err
		}
		p.metrics.RecordRows(stats.Traded, stats.Synthesized)
	} else {
		rows = traded(bars)
		p.metrics.RecordRows(len(rows), 0)
	}

	calendar.AnnotateNextDay(rows)
	return rows, nil
}

// traded wraps bars that need no alignment.
func traded(bars []core.DailyBar) []core.AlignedBar {
	rows := make([]core.AlignedBar, len(bars))
	for i, b := range bars {
		rows[i] = core.AlignedBar{DailyBar: b, Trading: true}
	}
	return rows
}
