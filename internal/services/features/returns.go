package features

import "math"

// LogReturns computes r_t = ln(p_t / p_{t-1}) over a price series.
// It returns a slice of length len(prices)-1, or nil if insufficient data.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		cur := prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the trailing
// window using the provided number of bars per year.
func RealizedVolatility(returns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(returns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(returns) - window; i < len(returns); i++ {
		r := returns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// CumulativeReturn folds a return series into its running sum, the path used
// for drawdown accounting.
func CumulativeReturn(returns []float64) []float64 {
	out := make([]float64, len(returns))
	var cum float64
	for i, r := range returns {
		cum += r
		out[i] = cum
	}
	return out
}

// BarsPerYearForTF returns the approximate number of bars per year for a
// timeframe, the annualization factor for Sharpe and volatility.
func BarsPerYearForTF(tf string) float64 {
	switch tf {
	case "1s":
		return 365 * 24 * 60 * 60
	case "1m":
		return 365 * 24 * 60
	case "5m":
		return 365 * 24 * 12
	case "1h":
		return 365 * 24
	case "1d":
		return 365
	default:
		return 365 * 24 * 60
	}
}
