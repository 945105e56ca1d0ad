package backtest

import (
	"time"
)

// Trade is an executed arbitrage in the replay.
type Trade struct {
	Timestamp time.Time `json:"timestamp"`
	BuyPool   string    `json:"buy_pool"`
	SellPool  string    `json:"sell_pool"`
	Amount    float64   `json:"amount"`
	Profit    float64   `json:"profit"`
}

// ValuePoint is the portfolio value after a replay step.
type ValuePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type Metrics struct {
	TotalReturn       float64 `json:"total_return"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	WinRate           float64 `json:"win_rate"`
	AvgProfitPerTrade float64 `json:"avg_profit_per_trade"`
	TotalTrades       int     `json:"total_trades"`
}

// Report aggregates a full replay.
type Report struct {
	InitialCapital float64      `json:"initial_capital"`
	StepsRun       int          `json:"steps_run"`
	StepsFailed    int          `json:"steps_failed"`
	Trades         []Trade      `json:"trades"`
	History        []ValuePoint `json:"portfolio_history"`
	Metrics        Metrics      `json:"metrics"`
}
