package champion

import "math"

// sharpeOf is mean/stdev of the return series, zero when degenerate.
func sharpeOf(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := meanOf(returns)
	sd := stddevOf(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd
}

func winRateOf(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

// maxDrawdownOf is the largest peak-to-trough drop on the cumulative return
// path.
func maxDrawdownOf(returns []float64) float64 {
	var cum, peak, maxDD float64
	for _, r := range returns {
		cum += r
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddevOf is the sample standard deviation (n-1 denominator).
func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// normalUpperTail is P(Z > t) for a standard normal, via the error function.
func normalUpperTail(t float64) float64 {
	return 0.5 * math.Erfc(t/math.Sqrt2)
}
