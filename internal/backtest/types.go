package backtest

import (
	"time"
)

// Side of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Result holds the complete backtest output
type Result struct {
	Strategy  string
	StartDate time.Time
	EndDate   time.Time
	Trades    []Trade
	Equity    []EquityPoint
	Stats     Stats
}

// Trade is one executed order
type Trade struct {
	Date       time.Time
	Symbol     string
	Side       Side
	Shares     int64
	Price      float64
	Commission float64
}

// Value returns the traded notional
func (t Trade) Value() float64 {
	return float64(t.Shares) * t.Price
}

// EquityPoint is the portfolio marked at one day's close
type EquityPoint struct {
	Date      time.Time
	Cash      float64
	Value     float64 // cash plus positions
	Positions int
}

// Stats holds performance statistics
type Stats struct {
	TotalTrades  int
	BuyTrades    int
	SellTrades   int
	Rebalances   int
	Commission   float64 // Total commission and stamp duty paid
	FinalValue   float64
	TotalReturn  float64 // Net return percentage
	AnnualReturn float64 // Compounded annual return percentage
	MaxDrawdown  float64 // Largest peak-to-trough decline percentage
	SharpeRatio  float64 // Risk-adjusted return (annualized)
}
