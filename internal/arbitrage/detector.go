package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulkyeet/arb-engine/internal/amm"
)

var (
	ErrInvalidTokens = errors.New("invalid token set")
	ErrUnknownPool   = errors.New("unknown pool")
)

// Config tunes a Detector. Start from DefaultConfig; zero thresholds are
// honored as given.
type Config struct {
	// MinProfitThreshold is the absolute net profit, in the unit of the
	// token paid in, an opportunity must exceed. Both two-pool and
	// triangular scans use it.
	MinProfitThreshold float64
	// ScreenThreshold is the relative spot price divergence below which a
	// pool pair is not optimized at all.
	ScreenThreshold float64
	Bounds          Bounds
	TrialAmounts    []float64
	Workers         int
}

func DefaultConfig() Config {
	return Config{
		MinProfitThreshold: 0.01,
		ScreenThreshold:    0.001,
		Bounds:             DefaultBounds,
		TrialAmounts:       []float64{0.1, 1, 10, 100},
		Workers:            runtime.NumCPU(),
	}
}

type Option func(*Detector)

func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithCostEstimator(c CostEstimator) Option {
	return func(d *Detector) {
		if c != nil {
			d.cost = c
		}
	}
}

// WithClock sets the source of DiscoveredAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// Detector searches a pool set for two-pool and triangular arbitrage.
// It owns private copies of the pools; every scan works on a snapshot
// taken at scan start, so concurrent UpdateReserves calls never mix
// reserve states within one scan.
type Detector struct {
	mu    sync.RWMutex
	pools []amm.Pool

	cfg    Config
	cost   CostEstimator
	logger *zap.Logger
	now    func() time.Time
}

func NewDetector(pools []amm.Pool, cfg Config, opts ...Option) *Detector {
	def := DefaultConfig()
	if cfg.Bounds == (Bounds{}) {
		cfg.Bounds = def.Bounds
	}
	if len(cfg.TrialAmounts) == 0 {
		cfg.TrialAmounts = def.TrialAmounts
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}

	d := &Detector{
		pools:  clonePools(pools),
		cfg:    cfg,
		cost:   FixedCost(DefaultCost),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func clonePools(pools []amm.Pool) []amm.Pool {
	out := make([]amm.Pool, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Clone())
	}
	return out
}

// Pools returns copies of the current pool set.
func (d *Detector) Pools() []amm.Pool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return clonePools(d.pools)
}

// UpdateReserves replaces the reserves of the named pools. The update is
// applied atomically: if any entry is rejected nothing changes.
func (d *Detector) UpdateReserves(reserves map[string][]float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make([]amm.Pool, len(d.pools))
	copy(next, d.pools)
	seen := 0
	for i, p := range d.pools {
		r, ok := reserves[p.Name()]
		if !ok {
			continue
		}
		updated, err := p.WithReserves(r)
		if err != nil {
			return fmt.Errorf("update %s: %w", p.Name(), err)
		}
		next[i] = updated
		seen++
	}
	if seen != len(reserves) {
		for name := range reserves {
			if !d.hasPoolLocked(name) {
				return fmt.Errorf("%w: %s", ErrUnknownPool, name)
			}
		}
	}

	d.pools = next
	return nil
}

func (d *Detector) hasPoolLocked(name string) bool {
	for _, p := range d.pools {
		if p.Name() == name {
			return true
		}
	}
	return false
}

func (d *Detector) snapshot() []amm.Pool {
	return d.Pools()
}

type pairOutcome struct {
	opp       *Opportunity
	skipped   *SkippedCandidate
	evaluated bool
}

// FindTwoPoolArbitrage checks every pool pair quoting pair for a profitable
// buy-low/sell-high round trip. A pool that fails to price a candidate
// only drops that candidate. If ctx ends mid-scan the opportunities found
// so far are returned together with the context error.
func (d *Detector) FindTwoPoolArbitrage(ctx context.Context, pair TokenPair) (*ScanResult, error) {
	if pair.Base == "" || pair.Quote == "" || pair.Base == pair.Quote {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTokens, pair)
	}

	var pools []amm.Pool
	for _, p := range d.snapshot() {
		if p.HasPair(pair.Base, pair.Quote) {
			pools = append(pools, p)
		}
	}

	cost, err := d.cost.ArbitrageCost(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("estimate cost: %w", err)
	}

	type job struct{ a, b amm.Pool }
	jobs := make([]job, 0, len(pools)*(len(pools)-1)/2+1)
	for i := 0; i < len(pools); i++ {
		for j := i + 1; j < len(pools); j++ {
			jobs = append(jobs, job{pools[i], pools[j]})
		}
	}

	outcomes := make([]pairOutcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for idx, jb := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[idx] = d.evaluatePair(jb.a, jb.b, pair, cost)
			return nil
		})
	}
	waitErr := g.Wait()

	result := &ScanResult{}
	for _, o := range outcomes {
		if o.evaluated {
			result.Evaluated++
		}
		if o.skipped != nil {
			result.Skipped = append(result.Skipped, *o.skipped)
		}
		if o.opp != nil {
			result.Opportunities = append(result.Opportunities, *o.opp)
		}
	}

	d.logger.Info("two-pool scan done",
		zap.String("pair", pair.String()),
		zap.Int("pools", len(pools)),
		zap.Int("candidates", len(jobs)),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("opportunities", len(result.Opportunities)),
		zap.Int("skipped", len(result.Skipped)),
	)

	if waitErr != nil {
		return result, fmt.Errorf("two-pool scan %s: %w", pair, waitErr)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("two-pool scan %s: %w", pair, err)
	}
	return result, nil
}

func (d *Detector) skip(pools []string, amount float64, err error) *SkippedCandidate {
	d.logger.Warn("skipping candidate",
		zap.Strings("pools", pools),
		zap.Float64("amount", amount),
		zap.Error(err),
	)
	return &SkippedCandidate{Pools: pools, Amount: amount, Reason: err.Error()}
}

func (d *Detector) evaluatePair(a, b amm.Pool, pair TokenPair, cost float64) pairOutcome {
	names := []string{a.Name(), b.Name()}
	out := pairOutcome{evaluated: true}

	priceA, err := a.SpotPrice(pair.Base, pair.Quote)
	if err != nil {
		out.skipped = d.skip(names, 0, err)
		return out
	}
	priceB, err := b.SpotPrice(pair.Base, pair.Quote)
	if err != nil {
		out.skipped = d.skip(names, 0, err)
		return out
	}

	divergence, err := amm.PriceDivergence(priceA, priceB)
	if err != nil {
		out.skipped = d.skip(names, 0, err)
		return out
	}
	if divergence < d.cfg.ScreenThreshold {
		d.logger.Debug("price divergence below screen",
			zap.Strings("pools", names),
			zap.Float64("divergence", divergence),
		)
		return out
	}

	// Base is cheaper where fewer Quote buy one unit of it.
	buy, sell := a, b
	if priceB < priceA {
		buy, sell = b, a
	}

	opt, ok, err := Maximize(TwoPoolProfit(buy, sell, pair), d.cfg.Bounds)
	if err != nil {
		out.skipped = d.skip(names, opt.Amount, err)
		return out
	}
	if !ok {
		d.logger.Debug("no profitable trade size",
			zap.String("buy", buy.Name()),
			zap.String("sell", sell.Name()),
			zap.Float64("best_profit", opt.Profit),
		)
		return out
	}

	net := opt.Profit - cost
	if net <= d.cfg.MinProfitThreshold {
		d.logger.Debug("below profit threshold",
			zap.String("buy", buy.Name()),
			zap.String("sell", sell.Name()),
			zap.Float64("net_profit", net),
		)
		return out
	}

	out.opp = &Opportunity{
		ID:              uuid.NewString(),
		Pair:            pair.String(),
		BuyPool:         buy.Name(),
		SellPool:        sell.Name(),
		TokenIn:         pair.Quote,
		TokenOut:        pair.Base,
		Amount:          opt.Amount,
		GrossProfit:     opt.Profit,
		Cost:            cost,
		ExpectedProfit:  net,
		PriceDivergence: divergence,
		DiscoveredAt:    d.now(),
	}
	return out
}
