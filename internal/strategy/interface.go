// Package strategy defines portfolio rebalancing strategies run by the
// backtester.
package strategy

import (
	"time"

	"github.com/newthinker/quantlab/internal/pipeline"
)

// Config holds strategy configuration
type Config struct {
	Enabled bool
	Params  map[string]any
}

// Candidate is one symbol's row on the decision day
type Candidate struct {
	Symbol string
	Row    pipeline.StrategyRow
}

// RebalanceContext provides the cross-section to a strategy
type RebalanceContext struct {
	Date       time.Time
	Candidates []Candidate
	Holdings   map[string]int64 // shares held per symbol
	// History holds each candidate's rows up to and including Date
	History map[string][]pipeline.StrategyRow
}

// Keep is a target weight that leaves the current position unchanged
const Keep = -1.0

// Rebalancer decides target portfolio weights on each rebalance day.
// Symbols held but missing from the returned targets are sold; a Keep
// weight holds them as they are.
type Rebalancer interface {
	Name() string
	Description() string
	Init(cfg Config) error
	Targets(ctx RebalanceContext) (map[string]float64, error)
}
