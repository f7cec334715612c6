package backtest

// StampDutyCommission charges a percentage commission on both sides and a
// stamp duty on sells only.
type StampDutyCommission struct {
	Commission float64
	StampDuty  float64
}

// Fee returns the cost of trading shares at price. Positive shares buy,
// negative shares sell.
func (c StampDutyCommission) Fee(shares int64, price float64) float64 {
	switch {
	case shares > 0:
		return float64(shares) * price * c.Commission
	case shares < 0:
		return float64(-shares) * price * (c.StampDuty + c.Commission)
	default:
		return 0
	}
}

// MaxBuyable returns the most whole shares cash can buy at price including
// commission.
func (c StampDutyCommission) MaxBuyable(cash, price float64) int64 {
	if price <= 0 || cash <= 0 {
		return 0
	}
	return int64(cash / (price * (1 + c.Commission)))
}
