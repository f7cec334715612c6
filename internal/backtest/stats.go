package backtest

import (
	"math"
)

// tradingDays per year for annualization
const tradingDays = 252

// CalculateStats computes performance statistics from the daily equity
// curve and the executed trades
func CalculateStats(initial float64, equity []EquityPoint, trades []Trade) Stats {
	stats := Stats{TotalTrades: len(trades), FinalValue: initial}
	for _, t := range trades {
		stats.Commission += t.Commission
		if t.Side == SideBuy {
			stats.BuyTrades++
		} else {
			stats.SellTrades++
		}
	}

	if len(equity) == 0 || initial <= 0 {
		return stats
	}

	returns := dailyReturns(initial, equity)
	final := equity[len(equity)-1].Value
	growth := final / initial

	stats.FinalValue = final
	stats.TotalReturn = (growth - 1) * 100 // Convert to percentage
	if growth > 0 {
		stats.AnnualReturn = (math.Pow(growth, tradingDays/float64(len(equity))) - 1) * 100
	}
	stats.MaxDrawdown = calculateMaxDrawdown(returns) * 100
	stats.SharpeRatio = calculateSharpeRatio(returns)
	return stats
}

// CompoundReturn chains daily returns into a total return in percent.
// Non-finite returns count as flat days.
func CompoundReturn(returns []float64) float64 {
	growth := 1.0
	for _, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		growth *= 1 + r
	}
	return (growth - 1) * 100
}

// dailyReturns converts the equity curve into close-to-close returns, the
// first against the initial cash
func dailyReturns(initial float64, equity []EquityPoint) []float64 {
	returns := make([]float64, len(equity))
	prev := initial
	for i, p := range equity {
		if prev != 0 {
			returns[i] = p.Value/prev - 1
		}
		prev = p.Value
	}
	return returns
}

// calculateMaxDrawdown finds the largest peak-to-trough decline
func calculateMaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	var maxDD float64
	peak := 1.0
	cumulative := 1.0

	for _, r := range returns {
		cumulative *= (1 + r)
		if cumulative > peak {
			peak = cumulative
		}
		if peak > 0 {
			dd := (peak - cumulative) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0 for simplicity
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	// Calculate mean return
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	// Calculate standard deviation
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0
	}

	annualizedReturn := mean * tradingDays
	annualizedStdDev := stdDev * math.Sqrt(tradingDays)

	return annualizedReturn / annualizedStdDev
}
