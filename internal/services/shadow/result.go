package shadow

import (
	"fmt"
	"math"
	"time"

	"ModelGate/internal/domain/models"
)

// confidence weights: coverage 30% (gap 10 + level 20), risk 30%
// (drawdown 15 + Sharpe 15), precision 20% (width), consistency 20%.
const (
	weightCoverageGap   = 0.10
	weightCoverageLevel = 0.20
	weightDrawdown      = 0.15
	weightSharpe        = 0.15
	weightWidth         = 0.20
	weightConsistency   = 0.20
)

// GenerateValidationResult recomputes the promotion verdict from the settled
// trade buffer. Report-only: no validator state is mutated.
func (v *Validator) GenerateValidationResult() models.ValidationResult {
	settled := v.snapshotSettled()
	th := v.thresholds

	res := models.ValidationResult{
		StrategyID:  v.strategyID,
		GeneratedAt: time.Now(),
	}

	if len(settled) < th.RequiredSamples {
		res.Issues = append(res.Issues,
			fmt.Sprintf("Insufficient samples: have %d settled trades, need %d", len(settled), th.RequiredSamples))
		res.Suggestions = append(res.Suggestions, "Keep shadow mode running until enough trades settle")
		res.Metrics.SampleCount = len(settled)
		return res
	}

	m := computeMetrics(settled, th)
	res.Metrics = m

	pass := func(ok bool, weight float64, issue, suggestion string) {
		if ok {
			res.Confidence += weight
			return
		}
		res.Issues = append(res.Issues, issue)
		res.Suggestions = append(res.Suggestions, suggestion)
	}

	coverageOK := m.Coverage >= th.MinCoverage
	gapOK := m.CoverageGap <= th.MaxCoverageGap
	widthOK := m.AvgIntervalWidth <= th.MaxIntervalWidth
	sharpeOK := m.SharpeRatio >= th.MinSharpeRatio
	drawdownOK := m.MaxDrawdown <= th.MaxDrawdown

	pass(coverageOK, weightCoverageLevel,
		fmt.Sprintf("Coverage %.3f below minimum %.3f", m.Coverage, th.MinCoverage),
		"Collect more calibration samples or widen the target coverage")
	pass(gapOK, weightCoverageGap,
		fmt.Sprintf("Coverage gap %.3f exceeds maximum %.3f", m.CoverageGap, th.MaxCoverageGap),
		"Recalibrate: empirical coverage drifted from the nominal level")
	pass(widthOK, weightWidth,
		fmt.Sprintf("Average interval width %.4f exceeds maximum %.4f", m.AvgIntervalWidth, th.MaxIntervalWidth),
		"Intervals too wide to trade on; improve the underlying model or features")
	pass(sharpeOK, weightSharpe,
		fmt.Sprintf("Sharpe ratio %.2f below minimum %.2f", m.SharpeRatio, th.MinSharpeRatio),
		"Risk-adjusted returns insufficient; revisit entry filters")
	pass(drawdownOK, weightDrawdown,
		fmt.Sprintf("Max drawdown %.3f exceeds maximum %.3f", m.MaxDrawdown, th.MaxDrawdown),
		"Reduce position sizing or add a stop policy before promoting")
	pass(m.ConsistencyPass, weightConsistency,
		fmt.Sprintf("Consistency check failed over last %d trades (success rate %.3f, volatility %.4f)",
			th.ConsistencyWindow, m.SuccessRate, m.ReturnVolatility),
		"Recent window underperforms; wait for a stable stretch before promoting")

	res.Approved = coverageOK && gapOK && widthOK && sharpeOK && drawdownOK && m.ConsistencyPass
	return res
}

func computeMetrics(settled []models.ShadowTrade, th models.ValidationThresholds) models.ValidationMetrics {
	n := len(settled)
	m := models.ValidationMetrics{SampleCount: n}
	if n == 0 {
		return m
	}

	within := 0
	widthSum := 0.0
	wins, losses := 0, 0
	winSum, lossSum := 0.0, 0.0
	returns := make([]float64, n)
	for i := range settled {
		t := &settled[i]
		returns[i] = t.ActualReturn
		widthSum += t.Prediction.Width
		if t.WithinInterval {
			within++
		}
		if t.PnL > 0 {
			wins++
			winSum += t.PnL
		} else if t.PnL < 0 {
			losses++
			lossSum += -t.PnL
		}
	}

	nominal := settled[0].Prediction.Coverage
	m.Coverage = float64(within) / float64(n)
	m.CoverageGap = math.Abs(m.Coverage - nominal)
	m.AvgIntervalWidth = widthSum / float64(n)
	m.WinRate = float64(wins) / float64(n)

	mean := meanOf(returns)
	std := stddevOf(returns, mean)
	if std > 0 {
		m.SharpeRatio = mean / std * math.Sqrt(th.BarsPerYear)
	}

	// peak-to-trough on cumulative PnL, normalized to the reference size
	cum, peak, maxDD := 0.0, 0.0, 0.0
	for i := range settled {
		cum += settled[i].PnL
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	m.MaxDrawdown = maxDD / th.PositionSize

	avgWin, avgLoss := 0.0, 1.0 // loss defaults to 1 when there are none
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	m.ProfitFactor = avgWin / avgLoss

	// consistency over the trailing window; fails outright when the window
	// has not filled yet
	if n >= th.ConsistencyWindow {
		window := settled[n-th.ConsistencyWindow:]
		hits := 0
		wr := make([]float64, len(window))
		for i := range window {
			wr[i] = window[i].ActualReturn
			if window[i].WithinInterval {
				hits++
			}
		}
		m.SuccessRate = float64(hits) / float64(len(window))
		m.ReturnVolatility = stddevOf(wr, meanOf(wr))
		m.ConsistencyPass = m.SuccessRate >= th.MinSuccessRate && m.ReturnVolatility <= th.MaxVolatility
	}

	return m
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
