package arbitrage

import (
	"fmt"
	"math"

	"github.com/pulkyeet/arb-engine/internal/amm"
)

// DefaultBounds is the trade size domain searched for two-pool arbitrage.
var DefaultBounds = Bounds{Lower: 0.01, Upper: 1000}

const (
	maxSearchIterations = 500
	searchTolerance     = 1e-5
)

var invPhi = (math.Sqrt(5) - 1) / 2

// Bounds is a closed trade size interval.
type Bounds struct {
	Lower float64
	Upper float64
}

func (b Bounds) validate() error {
	if !(b.Lower > 0) || !(b.Upper > b.Lower) || math.IsInf(b.Upper, 0) {
		return fmt.Errorf("%w: bounds [%v, %v]", amm.ErrInvalidAmount, b.Lower, b.Upper)
	}
	return nil
}

// ProfitFunc maps a trade size to profit.
type ProfitFunc func(amount float64) (float64, error)

// Optimum is the best point a search visited.
type Optimum struct {
	Amount      float64
	Profit      float64
	Evaluations int
}

// Maximize runs a golden-section search for the profit-maximizing amount in
// b. fn must be unimodal on b; with several local maxima the search settles
// on one of them. Both endpoints are probed as well, so monotone profit
// curves resolve to the right edge.
//
// ok is false when no visited amount has positive profit. Errors from fn
// abort the search.
func Maximize(fn ProfitFunc, b Bounds) (Optimum, bool, error) {
	if err := b.validate(); err != nil {
		return Optimum{}, false, err
	}

	best := Optimum{Amount: b.Lower, Profit: math.Inf(-1)}
	eval := func(x float64) (float64, error) {
		p, err := fn(x)
		if err != nil {
			return 0, fmt.Errorf("profit at %v: %w", x, err)
		}
		best.Evaluations++
		if p > best.Profit {
			best.Amount, best.Profit = x, p
		}
		return p, nil
	}

	for _, x := range []float64{b.Lower, b.Upper} {
		if _, err := eval(x); err != nil {
			return Optimum{}, false, err
		}
	}

	lo, hi := b.Lower, b.Upper
	c := hi - invPhi*(hi-lo)
	d := lo + invPhi*(hi-lo)
	fc, err := eval(c)
	if err != nil {
		return Optimum{}, false, err
	}
	fd, err := eval(d)
	if err != nil {
		return Optimum{}, false, err
	}

	for i := 0; i < maxSearchIterations && hi-lo > searchTolerance; i++ {
		if fc > fd {
			hi, d, fd = d, c, fc
			c = hi - invPhi*(hi-lo)
			if fc, err = eval(c); err != nil {
				return Optimum{}, false, err
			}
		} else {
			lo, c, fc = c, d, fd
			d = lo + invPhi*(hi-lo)
			if fd, err = eval(d); err != nil {
				return Optimum{}, false, err
			}
		}
	}

	if mid := (lo + hi) / 2; mid >= b.Lower && mid <= b.Upper {
		if _, err := eval(mid); err != nil {
			return Optimum{}, false, err
		}
	}

	if !(best.Profit > 0) {
		return best, false, nil
	}
	return best, true, nil
}

// TwoPoolProfit builds the round-trip profit for spending amount of
// pair.Quote on buy and selling the proceeds on sell. Every call works on
// fresh clones, so neither pool is touched.
func TwoPoolProfit(buy, sell amm.Pool, pair TokenPair) ProfitFunc {
	return func(amount float64) (float64, error) {
		buyClone := buy.Clone()
		bought, err := buyClone.ApplyTrade(amount, pair.Quote, pair.Base)
		if err != nil {
			return 0, fmt.Errorf("buy on %s: %w", buy.Name(), err)
		}
		if !(bought > 0) {
			return -amount, nil
		}

		sellClone := sell.Clone()
		proceeds, err := sellClone.ApplyTrade(bought, pair.Base, pair.Quote)
		if err != nil {
			return 0, fmt.Errorf("sell on %s: %w", sell.Name(), err)
		}
		return proceeds - amount, nil
	}
}
