package pipeline

import (
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// StrategyRow is the per-day record consumed by the rebalancing backtest.
// Prices are back-adjusted. The flags describe the next trading day and are
// 1, 0 or NaN on the last row.
type StrategyRow struct {
	Date         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest float64
	LimitUp      float64 // next day opens at the up limit
	MarketCap    float64
	IsTrading    float64
	IsST         float64
	IsDelisting  float64
}

// FactorRow is the per-day record consumed by single-factor analysis.
// The factor is the total market cap.
type FactorRow struct {
	Date      time.Time
	StockCode string
	Open      float64
	Close     float64
	High      float64
	Low       float64
	Volume    float64
	Factor    float64
	Industry  string
}

// StrategyRows projects an aligned series into the strategy schema.
func StrategyRows(rows []core.AlignedBar) []StrategyRow {
	out := make([]StrategyRow, len(rows))
	for i, r := range rows {
		out[i] = StrategyRow{
			Date:        r.Date,
			Open:        r.Adjusted.Open,
			High:        r.Adjusted.High,
			Low:         r.Adjusted.Low,
			Close:       r.Adjusted.Close,
			Volume:      r.Volume,
			LimitUp:     r.Next.OpenLimitUp.Float(),
			MarketCap:   r.MarketCap,
			IsTrading:   r.Next.Tradable.Float(),
			IsST:        r.Next.ST.Float(),
			IsDelisting: r.Next.Delisting.Float(),
		}
	}
	return out
}

// FactorRows projects an aligned series into the factor schema.
func FactorRows(rows []core.AlignedBar) []FactorRow {
	out := make([]FactorRow, len(rows))
	for i, r := range rows {
		out[i] = FactorRow{
			Date:      r.Date,
			StockCode: r.Code,
			Open:      r.Adjusted.Open,
			Close:     r.Adjusted.Close,
			High:      r.Adjusted.High,
			Low:       r.Adjusted.Low,
			Volume:    r.Volume,
			Factor:    r.MarketCap,
			Industry:  r.Industry,
		}
	}
	return out
}
