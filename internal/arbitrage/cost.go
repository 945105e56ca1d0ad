package arbitrage

import "context"

// CostEstimator prices the execution of an arbitrage with the given number
// of swaps. The result is subtracted from gross profit as is, so it must be
// in the same unit the profit is measured in.
type CostEstimator interface {
	ArbitrageCost(ctx context.Context, swaps int) (float64, error)
}

// DefaultCost is the flat per-arbitrage cost used when no estimator is set.
const DefaultCost = 0.001

// FixedCost charges the same amount regardless of swap count.
type FixedCost float64

func (c FixedCost) ArbitrageCost(context.Context, int) (float64, error) {
	return float64(c), nil
}
