package amm

import (
	"fmt"
	"math"
)

// GetAmountOut is the constant product output for a swap, fee taken on input.
// Non-positive input or reserves yield 0.
func GetAmountOut(amountIn, reserveIn, reserveOut, fee float64) float64 {
	if amountIn <= 0 {
		return 0
	}
	if reserveIn <= 0 || reserveOut <= 0 {
		return 0
	}

	amountInWithFee := amountIn * (1 - fee)
	numerator := amountInWithFee * reserveOut
	denominator := reserveIn + amountInWithFee

	return numerator / denominator
}

// PriceDivergence returns |a-b| relative to the lower price, as a fraction.
func PriceDivergence(a, b float64) (float64, error) {
	lower := math.Min(a, b)
	if lower <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %v", ErrInvalidPoolState, lower)
	}
	return math.Abs(a-b) / lower, nil
}

// Slippage is (effective_price - spot_price) / spot_price for a hypothetical
// trade. It is negative for any trade that moves the price.
func Slippage(p Pool, amountIn float64, tokenIn, tokenOut string) (float64, error) {
	spot, err := p.SpotPrice(tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	if spot <= 0 {
		return 0, fmt.Errorf("%w: spot price %v", ErrInvalidPoolState, spot)
	}

	out, err := p.Quote(amountIn, tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}

	effective := out / amountIn
	return (effective - spot) / spot, nil
}
