package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pulkyeet/arb-engine/internal/amm"
)

var ethUSDC = TokenPair{Base: "ETH", Quote: "USDC"}

func cpPool(t *testing.T, name string, r0, r1 float64) amm.Pool {
	t.Helper()
	p, err := amm.NewConstantProduct(name, [2]string{"ETH", "USDC"}, r0, r1, 0.003)
	require.NoError(t, err)
	return p
}

// brokenPool prices normally but fails every trade simulation.
type brokenPool struct{ amm.Pool }

func (b brokenPool) Clone() amm.Pool { return brokenPool{b.Pool.Clone()} }

func (b brokenPool) ApplyTrade(float64, string, string) (float64, error) {
	return 0, fmt.Errorf("%w: stub solver", amm.ErrNumericalConvergence)
}

type failingCost struct{ err error }

func (f failingCost) ArbitrageCost(context.Context, int) (float64, error) { return 0, f.err }

func zeroThreshold() Config {
	cfg := DefaultConfig()
	cfg.MinProfitThreshold = 0
	return cfg
}

func TestTwoPoolIdenticalPricesYieldNothing(t *testing.T) {
	d := NewDetector([]amm.Pool{
		cpPool(t, "a", 100000, 200000),
		cpPool(t, "b", 100000, 200000),
	}, DefaultConfig())

	res, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 1, res.Evaluated)
}

func TestTwoPoolFindsOpportunity(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := NewDetector([]amm.Pool{
		cpPool(t, "pool-a", 100000, 200000),
		cpPool(t, "pool-b", 100000, 210000),
	}, zeroThreshold(), WithClock(func() time.Time { return fixed }), WithLogger(zaptest.NewLogger(t)))

	res, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)
	require.Len(t, res.Opportunities, 1)

	opp := res.Opportunities[0]
	assert.Greater(t, opp.ExpectedProfit, 0.0)
	assert.Equal(t, "pool-a", opp.BuyPool)
	assert.Equal(t, "pool-b", opp.SellPool)
	assert.Equal(t, "USDC", opp.TokenIn)
	assert.Equal(t, "ETH", opp.TokenOut)
	assert.GreaterOrEqual(t, opp.Amount, DefaultBounds.Lower)
	assert.LessOrEqual(t, opp.Amount, DefaultBounds.Upper)
	assert.InDelta(t, opp.GrossProfit-DefaultCost, opp.ExpectedProfit, 1e-12)
	assert.InDelta(t, 0.05, opp.PriceDivergence, 1e-12)
	assert.Equal(t, fixed, opp.DiscoveredAt)
	assert.NotEmpty(t, opp.ID)

	// profit is still rising at the top of the domain
	assert.InDelta(t, 1000, opp.Amount, 1e-6)
	assert.InDelta(t, 33.42, opp.GrossProfit, 0.05)
}

func TestTwoPoolOrderOfPoolsDoesNotMatter(t *testing.T) {
	d := NewDetector([]amm.Pool{
		cpPool(t, "pool-b", 100000, 210000),
		cpPool(t, "pool-a", 100000, 200000),
	}, zeroThreshold())

	res, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)
	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, "pool-a", res.Opportunities[0].BuyPool)
}

func TestTwoPoolThresholdFilters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinProfitThreshold = 1000
	d := NewDetector([]amm.Pool{
		cpPool(t, "a", 100000, 200000),
		cpPool(t, "b", 100000, 210000),
	}, cfg)

	res, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities)
}

func TestTwoPoolDoesNotMutateCallerPools(t *testing.T) {
	a := cpPool(t, "a", 100000, 200000)
	b := cpPool(t, "b", 100000, 210000)
	d := NewDetector([]amm.Pool{a, b}, zeroThreshold())

	_, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)

	assert.Equal(t, []float64{100000, 200000}, a.Reserves())
	assert.Equal(t, []float64{100000, 210000}, b.Reserves())
	for _, p := range d.Pools() {
		assert.Contains(t, [][]float64{{100000, 200000}, {100000, 210000}}, p.Reserves())
	}
}

func TestTwoPoolSkipsFailingCandidates(t *testing.T) {
	d := NewDetector([]amm.Pool{
		cpPool(t, "a", 100000, 200000),
		cpPool(t, "b", 100000, 210000),
		brokenPool{cpPool(t, "broken", 100000, 220000)},
	}, zeroThreshold(), WithLogger(zaptest.NewLogger(t)))

	res, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)

	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, "a", res.Opportunities[0].BuyPool)
	assert.Equal(t, "b", res.Opportunities[0].SellPool)

	require.Len(t, res.Skipped, 2)
	for _, s := range res.Skipped {
		assert.Contains(t, s.Pools, "broken")
		assert.Contains(t, s.Reason, amm.ErrNumericalConvergence.Error())
	}
	assert.Equal(t, 3, res.Evaluated)
}

func TestTwoPoolIgnoresPoolsWithoutPair(t *testing.T) {
	other, err := amm.NewConstantProduct("dai", [2]string{"ETH", "DAI"}, 100000, 250000, 0.003)
	require.NoError(t, err)

	d := NewDetector([]amm.Pool{
		cpPool(t, "a", 100000, 200000),
		other,
	}, zeroThreshold())

	res, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
}

func TestTwoPoolCostErrorPropagates(t *testing.T) {
	boom := errors.New("gas oracle down")
	d := NewDetector([]amm.Pool{
		cpPool(t, "a", 100000, 200000),
		cpPool(t, "b", 100000, 210000),
	}, zeroThreshold(), WithCostEstimator(failingCost{boom}))

	_, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	assert.ErrorIs(t, err, boom)
}

func TestTwoPoolCostIsSubtracted(t *testing.T) {
	d := NewDetector([]amm.Pool{
		cpPool(t, "a", 100000, 200000),
		cpPool(t, "b", 100000, 210000),
	}, zeroThreshold(), WithCostEstimator(FixedCost(40)))

	res, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities, "33 gross does not cover 40 cost")
}

func TestTwoPoolCancelled(t *testing.T) {
	d := NewDetector([]amm.Pool{
		cpPool(t, "a", 100000, 200000),
		cpPool(t, "b", 100000, 210000),
	}, zeroThreshold())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.FindTwoPoolArbitrage(ctx, ethUSDC)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Opportunities)
}

func TestTwoPoolRejectsBadPair(t *testing.T) {
	d := NewDetector(nil, DefaultConfig())

	_, err := d.FindTwoPoolArbitrage(context.Background(), TokenPair{Base: "ETH", Quote: "ETH"})
	assert.ErrorIs(t, err, ErrInvalidTokens)
}

func TestTwoPoolManyPoolsConcurrently(t *testing.T) {
	pools := make([]amm.Pool, 0, 12)
	for i := 0; i < 12; i++ {
		pools = append(pools, cpPool(t, fmt.Sprintf("p%02d", i), 100000, 200000+float64(i)*1500))
	}
	cfg := zeroThreshold()
	cfg.Workers = 4

	serial := zeroThreshold()
	serial.Workers = 1

	clock := WithClock(func() time.Time { return time.Unix(0, 0) })
	par, err := NewDetector(pools, cfg, clock).FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)
	seq, err := NewDetector(pools, serial, clock).FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)

	assert.Equal(t, 66, par.Evaluated)
	require.Equal(t, len(seq.Opportunities), len(par.Opportunities))
	for i := range seq.Opportunities {
		assert.Equal(t, seq.Opportunities[i].BuyPool, par.Opportunities[i].BuyPool)
		assert.Equal(t, seq.Opportunities[i].SellPool, par.Opportunities[i].SellPool)
		assert.InDelta(t, seq.Opportunities[i].ExpectedProfit, par.Opportunities[i].ExpectedProfit, 1e-9)
	}

	best, ok := par.Best()
	require.True(t, ok)
	assert.Equal(t, "p00", best.BuyPool)
	assert.Equal(t, "p11", best.SellPool)
}

func TestUpdateReserves(t *testing.T) {
	d := NewDetector([]amm.Pool{
		cpPool(t, "a", 100000, 200000),
		cpPool(t, "b", 100000, 210000),
	}, zeroThreshold())

	require.NoError(t, d.UpdateReserves(map[string][]float64{"b": {100000, 200000}}))
	res, err := d.FindTwoPoolArbitrage(context.Background(), ethUSDC)
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities)

	err = d.UpdateReserves(map[string][]float64{"a": {1, 1}, "missing": {1, 1}})
	assert.ErrorIs(t, err, ErrUnknownPool)
	err = d.UpdateReserves(map[string][]float64{"a": {0, 1}})
	assert.ErrorIs(t, err, amm.ErrInvalidPoolState)

	for _, p := range d.Pools() {
		assert.Equal(t, []float64{100000, 200000}, p.Reserves(), "rejected updates leave state alone")
	}
}

func stablePool(t *testing.T, fee float64) amm.Pool {
	t.Helper()
	p, err := amm.NewStableSwap("3pool", []string{"USDC", "USDT", "DAI"}, []float64{1e6, 1e6, 1e6}, 100, fee)
	require.NoError(t, err)
	return p
}

func TestTriangularNoProfitAtDefaults(t *testing.T) {
	d := NewDetector([]amm.Pool{stablePool(t, 0.0004)}, DefaultConfig())

	res, err := d.FindTriangularArbitrage(context.Background(), [3]string{"USDC", "USDT", "DAI"})
	require.NoError(t, err)
	assert.Empty(t, res.Paths)
	assert.Equal(t, 4, res.Evaluated)
}

func TestTriangularEmitsAboveThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinProfitThreshold = -1
	d := NewDetector([]amm.Pool{stablePool(t, 0)}, cfg, WithCostEstimator(FixedCost(0)))

	res, err := d.FindTriangularArbitrage(context.Background(), [3]string{"USDC", "USDT", "DAI"})
	require.NoError(t, err)
	require.Len(t, res.Paths, 4)

	for i, p := range res.Paths {
		assert.Equal(t, cfg.TrialAmounts[i], p.StartAmount)
		assert.Equal(t, []string{"USDC", "USDT", "DAI", "USDC"}, p.Path)
		assert.Equal(t, "3pool", p.Pool)
		// a fee-free cycle through one invariant returns what it started with
		assert.InDelta(t, p.StartAmount, p.EndAmount, 1e-6)
		assert.InDelta(t, p.Profit/p.StartAmount*100, p.ProfitPercentage, 1e-9)
	}
}

func TestTriangularNeedsSinglePoolWithAllLegs(t *testing.T) {
	ab, err := amm.NewConstantProduct("ab", [2]string{"USDC", "USDT"}, 1e6, 1e6, 0)
	require.NoError(t, err)
	bc, err := amm.NewConstantProduct("bc", [2]string{"USDT", "DAI"}, 1e6, 1e6, 0)
	require.NoError(t, err)
	ca, err := amm.NewConstantProduct("ca", [2]string{"DAI", "USDC"}, 1e6, 1e6, 0)
	require.NoError(t, err)

	d := NewDetector([]amm.Pool{ab, bc, ca}, DefaultConfig())
	res, err := d.FindTriangularArbitrage(context.Background(), [3]string{"USDC", "USDT", "DAI"})
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
}

func TestTriangularSkipsBrokenPool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinProfitThreshold = -1
	d := NewDetector([]amm.Pool{brokenPool{stablePool(t, 0)}, stablePoolNamed(t, "healthy")}, cfg, WithCostEstimator(FixedCost(0)))

	res, err := d.FindTriangularArbitrage(context.Background(), [3]string{"USDC", "USDT", "DAI"})
	require.NoError(t, err)
	assert.Len(t, res.Skipped, 4)
	assert.Len(t, res.Paths, 4)
	for _, p := range res.Paths {
		assert.Equal(t, "healthy", p.Pool)
	}
}

func stablePoolNamed(t *testing.T, name string) amm.Pool {
	t.Helper()
	p, err := amm.NewStableSwap(name, []string{"USDC", "USDT", "DAI"}, []float64{1e6, 1e6, 1e6}, 100, 0)
	require.NoError(t, err)
	return p
}

func TestTriangularRejectsDuplicateTokens(t *testing.T) {
	d := NewDetector(nil, DefaultConfig())
	_, err := d.FindTriangularArbitrage(context.Background(), [3]string{"A", "B", "A"})
	assert.ErrorIs(t, err, ErrInvalidTokens)
}
