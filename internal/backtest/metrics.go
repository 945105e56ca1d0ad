package backtest

import "math"

// tradingDays annualizes the per-step Sharpe ratio; steps are assumed daily.
const tradingDays = 365

// CalculateMetrics fills r.Metrics from the trade log and value history.
func (r *Report) CalculateMetrics() {
	m := Metrics{TotalTrades: len(r.Trades)}

	if n := len(r.History); n > 0 && r.InitialCapital > 0 {
		m.TotalReturn = (r.History[n-1].Value - r.InitialCapital) / r.InitialCapital
	}

	returns := stepReturns(r.History)
	if len(returns) >= 2 {
		mean, std := meanStd(returns)
		if std > 0 {
			m.SharpeRatio = mean / std * math.Sqrt(tradingDays)
		}
	}
	m.MaxDrawdown = maxDrawdown(r.InitialCapital, r.History)

	if len(r.Trades) > 0 {
		wins := 0
		total := 0.0
		for _, t := range r.Trades {
			if t.Profit > 0 {
				wins++
			}
			total += t.Profit
		}
		m.WinRate = float64(wins) / float64(len(r.Trades))
		m.AvgProfitPerTrade = total / float64(len(r.Trades))
	}

	r.Metrics = m
}

func stepReturns(history []ValuePoint) []float64 {
	if len(history) < 2 {
		return nil
	}
	out := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Value
		if prev == 0 {
			continue
		}
		out = append(out, history[i].Value/prev-1)
	}
	return out
}

// meanStd returns the mean and the sample (n-1) standard deviation.
func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// maxDrawdown is the worst peak-to-trough fall as a negative fraction. The
// starting capital counts as the first peak.
func maxDrawdown(initial float64, history []ValuePoint) float64 {
	peak := initial
	worst := 0.0
	for _, p := range history {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := (p.Value - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
