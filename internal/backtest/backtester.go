// Package backtest simulates a rebalancing strategy over aligned daily
// series.
package backtest

import (
	"context"
	"errors"
	"maps"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/newthinker/quantlab/internal/calendar"
	"github.com/newthinker/quantlab/internal/pipeline"
	"github.com/newthinker/quantlab/internal/strategy"
	"go.uber.org/zap"
)

// Config holds the broker and timer settings
type Config struct {
	Cash       float64
	Commission float64
	StampDuty  float64
	Slippage   float64 // fraction of the open price paid on each fill
	Period     Period
	NPeriods   int
}

// Backtester runs a rebalancing strategy against strategy rows
type Backtester struct {
	cfg    Config
	comm   StampDutyCommission
	logger *zap.Logger
}

// New creates a new Backtester
func New(cfg Config, logger *zap.Logger) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Period == "" {
		cfg.Period = PeriodDay
	}
	return &Backtester{
		cfg:    cfg,
		comm:   StampDutyCommission{Commission: cfg.Commission, StampDuty: cfg.StampDuty},
		logger: logger,
	}
}

// order is a share delta decided at one close and filled at the next open
type order struct {
	symbol string
	shares int64
}

type portfolio struct {
	cash      float64
	positions map[string]int64
	lastClose map[string]float64
}

func (p *portfolio) value() float64 {
	v := p.cash
	for symbol, shares := range p.positions {
		v += float64(shares) * p.lastClose[symbol]
	}
	return v
}

// Run simulates the strategy day by day over dates.
//
// On a rebalance day the strategy sees every symbol's row for that day and
// returns target weights. Target share counts are sized on that day's close
// and portfolio value; the orders fill at the next day's open. A symbol whose
// row says the next day is not tradable gets no order. Sells fill before
// buys, and buys are cut to the cash available. Fills move the open price
// against the trade by the configured slippage.
//
// Each series must be sorted by date; the strategy's history for a symbol is
// its series up to and including the decision day.
func (b *Backtester) Run(ctx context.Context, strat strategy.Rebalancer, dates []time.Time, series map[string][]pipeline.StrategyRow) (*Result, error) {
	if len(dates) == 0 {
		return nil, errors.New("no trading days")
	}
	if len(series) == 0 {
		return nil, errors.New("no historical data available")
	}

	index := indexRows(series)
	symbols := slices.Sorted(maps.Keys(series))
	schedule := Schedule(dates, b.cfg.Period, b.cfg.NPeriods)

	pf := &portfolio{
		cash:      b.cfg.Cash,
		positions: make(map[string]int64),
		lastClose: make(map[string]float64),
	}

	result := &Result{
		Strategy:  strat.Name(),
		StartDate: dates[0],
		EndDate:   dates[len(dates)-1],
	}
	rebalances := 0
	var pending []order

	for i, date := range dates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		key := calendar.DayKey(date)

		if len(pending) > 0 {
			result.Trades = append(result.Trades, b.execute(pf, pending, date, key, index, series)...)
			pending = nil
		}

		var candidates []strategy.Candidate
		history := make(map[string][]pipeline.StrategyRow, len(symbols))
		for _, symbol := range symbols {
			pos, ok := index[symbol][key]
			if !ok {
				continue
			}
			row := series[symbol][pos]
			if usable(row.Close) {
				pf.lastClose[symbol] = row.Close
			}
			candidates = append(candidates, strategy.Candidate{Symbol: symbol, Row: row})
			history[symbol] = series[symbol][:pos+1]
		}

		result.Equity = append(result.Equity, EquityPoint{
			Date:      date,
			Cash:      pf.cash,
			Value:     pf.value(),
			Positions: len(pf.positions),
		})

		if !schedule[i] || i == len(dates)-1 {
			continue
		}

		targets, err := strat.Targets(strategy.RebalanceContext{
			Date:       date,
			Candidates: candidates,
			Holdings:   maps.Clone(pf.positions),
			History:    history,
		})
		if err != nil {
			return nil, err
		}
		rebalances++
		pending = b.plan(pf, targets, key, index, series)

		b.logger.Debug("rebalance",
			zap.Time("date", date),
			zap.Int("targets", len(targets)),
			zap.Int("orders", len(pending)),
		)
	}

	result.Stats = CalculateStats(b.cfg.Cash, result.Equity, result.Trades)
	result.Stats.Rebalances = rebalances
	return result, nil
}

// plan sizes target weights into share deltas on the decision day's close.
// A negative weight leaves the position as it is.
func (b *Backtester) plan(pf *portfolio, targets map[string]float64, key int, index rowIndex, series map[string][]pipeline.StrategyRow) []order {
	value := pf.value()

	symbols := make(map[string]struct{}, len(targets)+len(pf.positions))
	for s := range targets {
		symbols[s] = struct{}{}
	}
	for s := range pf.positions {
		symbols[s] = struct{}{}
	}

	var orders []order
	for symbol := range symbols {
		if w, ok := targets[symbol]; ok && w < 0 {
			continue
		}
		pos, ok := index[symbol][key]
		if !ok {
			continue
		}
		row := series[symbol][pos]
		if row.IsTrading != 1 || !usable(row.Close) || row.Close <= 0 {
			continue
		}
		want := int64(math.Floor(targets[symbol] * value / row.Close))
		if delta := want - pf.positions[symbol]; delta != 0 {
			orders = append(orders, order{symbol: symbol, shares: delta})
		}
	}

	// Sells first so that their proceeds fund the buys.
	sort.Slice(orders, func(i, j int) bool {
		if (orders[i].shares < 0) != (orders[j].shares < 0) {
			return orders[i].shares < 0
		}
		return orders[i].symbol < orders[j].symbol
	})
	return orders
}

// execute fills orders at the day's open.
func (b *Backtester) execute(pf *portfolio, orders []order, date time.Time, key int, index rowIndex, series map[string][]pipeline.StrategyRow) []Trade {
	var trades []Trade
	for _, o := range orders {
		pos, ok := index[o.symbol][key]
		var row pipeline.StrategyRow
		if ok {
			row = series[o.symbol][pos]
		}
		if !ok || !usable(row.Open) || row.Open <= 0 {
			b.logger.Debug("order skipped, no open price",
				zap.String("symbol", o.symbol),
				zap.Time("date", date),
			)
			continue
		}
		price := row.Open * (1 + b.cfg.Slippage)
		if o.shares < 0 {
			price = row.Open * (1 - b.cfg.Slippage)
		}
		shares := o.shares

		if shares > 0 {
			if affordable := b.comm.MaxBuyable(pf.cash, price); shares > affordable {
				shares = affordable
			}
			if shares <= 0 {
				continue
			}
		}

		fee := b.comm.Fee(shares, price)
		pf.cash -= float64(shares)*price + fee
		pf.positions[o.symbol] += shares
		if pf.positions[o.symbol] == 0 {
			delete(pf.positions, o.symbol)
		}

		side := SideBuy
		if shares < 0 {
			side = SideSell
			shares = -shares
		}
		trades = append(trades, Trade{
			Date:       date,
			Symbol:     o.symbol,
			Side:       side,
			Shares:     shares,
			Price:      price,
			Commission: fee,
		})
	}
	return trades
}

// rowIndex maps symbol and day key to the row's position in its series
type rowIndex map[string]map[int]int

func indexRows(series map[string][]pipeline.StrategyRow) rowIndex {
	index := make(rowIndex, len(series))
	for symbol, rows := range series {
		m := make(map[int]int, len(rows))
		for i, r := range rows {
			m[calendar.DayKey(r.Date)] = i
		}
		index[symbol] = m
	}
	return index
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
