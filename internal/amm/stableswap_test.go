package amm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStable(t *testing.T, reserves []float64, amp float64) *StableSwap {
	t.Helper()
	tokens := []string{"USDC", "USDT", "DAI", "FRAX"}[:len(reserves)]
	p, err := NewStableSwap("curve", tokens, reserves, amp, 0.0004)
	require.NoError(t, err)
	return p
}

func TestSolveDConverges(t *testing.T) {
	reserveSets := [][]float64{
		{100000, 100000},
		{100000, 200000},
		{1e6, 1e3},
		{5e7, 3e7, 1e7},
		{1234.5, 98765.4, 555555, 42000},
		{10, 20},
	}
	for _, reserves := range reserveSets {
		for _, amp := range []float64{1, 10, 100, 500, 1000} {
			t.Run(fmt.Sprintf("%v/A=%v", reserves, amp), func(t *testing.T) {
				d, iters, err := solveD(reserves, amp, maxIterations)
				require.NoError(t, err)
				assert.Less(t, iters, maxIterations)
				assert.Greater(t, d, 0.0)
			})
		}
	}
}

func TestSolveDBalancedEqualsSum(t *testing.T) {
	d, iters, err := solveD([]float64{100000, 100000, 100000}, 100, maxIterations)
	require.NoError(t, err)
	assert.InDelta(t, 300000, d, 1e-6)
	assert.Equal(t, 1, iters)
}

func TestSolveDPermutationInvariant(t *testing.T) {
	base := []float64{1e6, 3e5, 7.5e5}
	perms := [][]float64{
		{1e6, 3e5, 7.5e5},
		{3e5, 1e6, 7.5e5},
		{7.5e5, 3e5, 1e6},
		{3e5, 7.5e5, 1e6},
	}
	want, _, err := solveD(base, 200, maxIterations)
	require.NoError(t, err)

	for _, p := range perms {
		got, _, err := solveD(p, 200, maxIterations)
		require.NoError(t, err)
		assert.InEpsilon(t, want, got, 1e-9)
	}
}

func TestSolveDReportsNonConvergence(t *testing.T) {
	_, _, err := solveD([]float64{1e6, 1e3}, 100, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNumericalConvergence))
}

func TestSolveYReportsNonConvergence(t *testing.T) {
	reserves := []float64{1e6, 1e6}
	d, _, err := solveD(reserves, 100, maxIterations)
	require.NoError(t, err)

	_, _, err = solveY(reserves, 100, d, 0, 1, 1.5e6, 1)
	assert.ErrorIs(t, err, ErrNumericalConvergence)
}

func TestSolveYRecoversReserve(t *testing.T) {
	reserves := []float64{4e5, 6e5, 5e5}
	d, _, err := solveD(reserves, 50, maxIterations)
	require.NoError(t, err)

	// Unchanged x must solve back to the current reserve.
	y, iters, err := solveY(reserves, 50, d, 0, 2, reserves[0], maxIterations)
	require.NoError(t, err)
	assert.Less(t, iters, maxIterations)
	assert.InDelta(t, reserves[2], y, 1.0)
}

func TestStableSwapQuoteBalanced(t *testing.T) {
	p := newStable(t, []float64{1e6, 1e6}, 100)

	out, err := p.Quote(1000, "USDC", "USDT")
	require.NoError(t, err)

	// near 1:1 minus the fee and a little curvature
	assert.Less(t, out, 1000*(1-0.0004))
	assert.InDelta(t, 1000*(1-0.0004), out, 1.0)
}

func TestStableSwapBeatsConstantProductSlippage(t *testing.T) {
	stable := newStable(t, []float64{1e6, 1e6}, 100)
	cp, err := NewConstantProduct("cp", [2]string{"USDC", "USDT"}, 1e6, 1e6, 0.0004)
	require.NoError(t, err)

	s, err := stable.Quote(1e5, "USDC", "USDT")
	require.NoError(t, err)
	c, err := cp.Quote(1e5, "USDC", "USDT")
	require.NoError(t, err)

	assert.Greater(t, s, c)
}

func TestStableSwapQuoteErrors(t *testing.T) {
	p := newStable(t, []float64{1e6, 1e6}, 100)

	_, err := p.Quote(0, "USDC", "USDT")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = p.Quote(10, "USDC", "WETH")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestStableSwapApplyTrade(t *testing.T) {
	p := newStable(t, []float64{1e6, 1e6, 1e6}, 100)
	dBefore := p.D()

	out, err := p.ApplyTrade(5000, "USDC", "DAI")
	require.NoError(t, err)

	r := p.Reserves()
	assert.Equal(t, 1e6+5000, r[0])
	assert.Equal(t, 1e6, r[1])
	assert.InDelta(t, 1e6-out, r[2], 1e-9)
	assert.GreaterOrEqual(t, p.D(), dBefore-convergenceTolerance, "fee keeps D from shrinking")
}

func TestStableSwapCloneIsIndependent(t *testing.T) {
	p := newStable(t, []float64{1e6, 2e6}, 100)
	c := p.Clone()

	_, err := c.ApplyTrade(1000, "USDT", "USDC")
	require.NoError(t, err)

	assert.Equal(t, []float64{1e6, 2e6}, p.Reserves())
	assert.NotEqual(t, p.Reserves(), c.Reserves())
}

func TestStableSwapPrices(t *testing.T) {
	p := newStable(t, []float64{1e6, 1e6}, 100)

	spot, err := p.SpotPrice("USDC", "USDT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, spot)

	marginal, err := p.MarginalPrice("USDC", "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, marginal, 1e-12)

	skewed := newStable(t, []float64{1e6, 2e6}, 100)
	ratio, err := skewed.SpotPrice("USDC", "USDT")
	require.NoError(t, err)
	assert.Equal(t, 2.0, ratio)

	// the invariant is much flatter than the reserve ratio
	m, err := skewed.MarginalPrice("USDC", "USDT")
	require.NoError(t, err)
	assert.Greater(t, m, 1.0)
	assert.Less(t, m, ratio)
}

func TestStableSwapConstructorValidation(t *testing.T) {
	_, err := NewStableSwap("x", []string{"A"}, []float64{1}, 100, 0)
	assert.ErrorIs(t, err, ErrInvalidPoolState)

	_, err = NewStableSwap("x", []string{"A", "B"}, []float64{1, 0}, 100, 0)
	assert.ErrorIs(t, err, ErrInvalidPoolState)

	_, err = NewStableSwap("x", []string{"A", "B"}, []float64{1, 1}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidPoolState)

	_, err = NewStableSwap("x", []string{"A", "A"}, []float64{1, 1}, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidPoolState)
}

func TestStableSwapConfigRoundTrip(t *testing.T) {
	p := newStable(t, []float64{1e6, 2e6, 3e6}, 250)

	q, err := New(p.Config())
	require.NoError(t, err)
	assert.Equal(t, p.Config(), q.Config())
	assert.True(t, q.HasPair("USDC", "DAI"))
	assert.False(t, q.HasPair("USDC", "WETH"))
}
