package indicator

// SMA calculates the simple moving average of values.
// The result has len(values) - period + 1 entries, the last aligned with the
// last input; it is empty when there is not enough data.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return []float64{}
	}

	out := make([]float64, 0, len(values)-period+1)

	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	out = append(out, sum/float64(period))

	// Rolling window
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		out = append(out, sum/float64(period))
	}
	return out
}

// EMA calculates the exponential moving average, seeded with the SMA of the
// first period values. Same length and alignment as SMA.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return []float64{}
	}

	out := make([]float64, 0, len(values)-period+1)
	alpha := 2.0 / float64(period+1)

	ema := Mean(values[:period])
	out = append(out, ema)
	for _, v := range values[period:] {
		ema += (v - ema) * alpha
		out = append(out, ema)
	}
	return out
}
