package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulkyeet/arb-engine/internal/amm"
	"github.com/pulkyeet/arb-engine/internal/arbitrage"
)

// Store is the recorded history a replay reads from.
type Store interface {
	Timestamps(ctx context.Context) ([]time.Time, error)
	PoolsAt(ctx context.Context, ts time.Time) ([]amm.Config, error)
}

type Config struct {
	Pair           arbitrage.TokenPair
	InitialCapital float64
	// StepTimeout bounds the detection work for a single timestamp.
	StepTimeout time.Duration
	Detector    arbitrage.Config
}

// OnTrade is called after each executed trade.
type OnTrade func(Trade)

// Runner replays recorded pool states through the detector and executes the
// most profitable opportunity of every step into a cash portfolio.
type Runner struct {
	store   Store
	cfg     Config
	opts    []arbitrage.Option
	logger  *zap.Logger
	onTrade OnTrade
}

func NewRunner(store Store, cfg Config, logger *zap.Logger, opts ...arbitrage.Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 2 * time.Minute
	}
	return &Runner{
		store:  store,
		cfg:    cfg,
		opts:   append([]arbitrage.Option{arbitrage.WithLogger(logger)}, opts...),
		logger: logger,
	}
}

// SetOnTrade registers a trade callback, e.g. a trade log writer.
func (r *Runner) SetOnTrade(fn OnTrade) {
	r.onTrade = fn
}

// Run replays every recorded timestamp in order. If ctx ends early the
// report covers the steps completed so far and the context error is
// returned alongside it.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	timestamps, err := r.store.Timestamps(ctx)
	if err != nil {
		return nil, fmt.Errorf("list timestamps: %w", err)
	}

	report := &Report{
		InitialCapital: r.cfg.InitialCapital,
		Trades:         make([]Trade, 0),
		History:        make([]ValuePoint, 0, len(timestamps)),
	}
	cash := r.cfg.InitialCapital

	fmt.Printf("\nstarting backtest: %d steps, pair %s, capital %.2f\n", len(timestamps), r.cfg.Pair, cash)
	startTime := time.Now()

	for i, ts := range timestamps {
		if ctx.Err() != nil {
			report.CalculateMetrics()
			return report, ctx.Err()
		}

		stepCtx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
		trade, err := r.step(stepCtx, ts, cash)
		cancel()
		report.StepsRun++

		switch {
		case err != nil && ctx.Err() != nil:
			report.CalculateMetrics()
			return report, ctx.Err()
		case err != nil:
			report.StepsFailed++
			r.logger.Warn("backtest step failed", zap.Time("ts", ts), zap.Error(err))
		case trade != nil:
			cash += trade.Profit
			report.Trades = append(report.Trades, *trade)
			if r.onTrade != nil {
				r.onTrade(*trade)
			}
		}

		report.History = append(report.History, ValuePoint{Timestamp: ts, Value: cash})

		if (i+1)%100 == 0 {
			fmt.Printf("processed %d/%d steps (%.1f%%) - elapsed: %s\n",
				i+1, len(timestamps),
				float64(i+1)/float64(len(timestamps))*100,
				time.Since(startTime).Round(time.Second))
		}
	}

	report.CalculateMetrics()
	return report, nil
}

func (r *Runner) step(ctx context.Context, ts time.Time, cash float64) (*Trade, error) {
	configs, err := r.store.PoolsAt(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}

	pools := make([]amm.Pool, 0, len(configs))
	for _, cfg := range configs {
		p, err := amm.New(cfg)
		if err != nil {
			r.logger.Warn("dropping invalid pool", zap.Time("ts", ts), zap.String("pool", cfg.Name), zap.Error(err))
			continue
		}
		pools = append(pools, p)
	}

	detector := arbitrage.NewDetector(pools, r.cfg.Detector, r.opts...)
	result, err := detector.FindTwoPoolArbitrage(ctx, r.cfg.Pair)
	if err != nil {
		return nil, err
	}

	best, ok := bestAffordable(result.Opportunities, cash)
	if !ok {
		if len(result.Opportunities) > 0 {
			r.logger.Info("no opportunity fits capital",
				zap.Time("ts", ts),
				zap.Int("opportunities", len(result.Opportunities)),
				zap.Float64("cash", cash),
			)
		}
		return nil, nil
	}

	return &Trade{
		Timestamp: ts,
		BuyPool:   best.BuyPool,
		SellPool:  best.SellPool,
		Amount:    best.Amount,
		Profit:    best.ExpectedProfit,
	}, nil
}

// bestAffordable returns the most profitable opportunity whose input amount
// does not exceed cash.
func bestAffordable(opps []arbitrage.Opportunity, cash float64) (arbitrage.Opportunity, bool) {
	var best arbitrage.Opportunity
	found := false
	for _, o := range opps {
		if o.Amount > cash {
			continue
		}
		if !found || o.ExpectedProfit > best.ExpectedProfit {
			best, found = o, true
		}
	}
	return best, found
}
