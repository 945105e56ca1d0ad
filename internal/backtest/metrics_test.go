package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func history(values ...float64) []ValuePoint {
	out := make([]ValuePoint, len(values))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		out[i] = ValuePoint{Timestamp: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

func TestCalculateMetrics(t *testing.T) {
	r := &Report{
		InitialCapital: 100,
		History:        history(100, 110, 99, 120),
		Trades: []Trade{
			{Profit: 10},
			{Profit: -11},
			{Profit: 21},
		},
	}
	r.CalculateMetrics()

	assert.InDelta(t, 0.2, r.Metrics.TotalReturn, 1e-12)
	assert.InDelta(t, 8.54382938323176, r.Metrics.SharpeRatio, 1e-9)
	assert.InDelta(t, -0.1, r.Metrics.MaxDrawdown, 1e-12)
	assert.InDelta(t, 2.0/3.0, r.Metrics.WinRate, 1e-12)
	assert.InDelta(t, 20.0/3.0, r.Metrics.AvgProfitPerTrade, 1e-12)
	assert.Equal(t, 3, r.Metrics.TotalTrades)
}

func TestCalculateMetricsDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		report Report
	}{
		{"empty", Report{InitialCapital: 100}},
		{"single step", Report{InitialCapital: 100, History: history(100)}},
		{"flat", Report{InitialCapital: 100, History: history(100, 100, 100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.report
			r.CalculateMetrics()
			assert.Zero(t, r.Metrics.SharpeRatio)
			assert.Zero(t, r.Metrics.MaxDrawdown)
			assert.Zero(t, r.Metrics.WinRate)
			assert.Zero(t, r.Metrics.AvgProfitPerTrade)
			assert.Zero(t, r.Metrics.TotalReturn)
		})
	}
}

func TestMaxDrawdownCountsStartingCapital(t *testing.T) {
	assert.InDelta(t, -0.1, maxDrawdown(100, history(90, 95)), 1e-12)
	assert.InDelta(t, -0.5, maxDrawdown(100, history(120, 60, 200)), 1e-12)
}
