package amm

import (
	"fmt"
	"math"
)

const (
	maxIterations        = 255
	convergenceTolerance = 1.0
)

// StableSwap is a Curve-style n-token pool:
//
//	A*n^n*S + D = A*D*n^n + D^(n+1) / (n^n * prod(x_i))
//
// D is solved whenever reserves change and kept alongside them, so reads
// never write to the pool.
type StableSwap struct {
	name     string
	tokens   []string
	reserves []float64
	amp      float64
	fee      float64
	d        float64
}

func NewStableSwap(name string, tokens []string, reserves []float64, amp, fee float64) (*StableSwap, error) {
	if len(tokens) < 2 || len(tokens) != len(reserves) {
		return nil, fmt.Errorf("pool %s: %w: %d tokens, %d reserves", name, ErrInvalidPoolState, len(tokens), len(reserves))
	}
	if err := validateReserves(reserves); err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	if err := validateFee(fee); err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	if !(amp > 0) || math.IsInf(amp, 0) {
		return nil, fmt.Errorf("pool %s: %w: amplification %v", name, ErrInvalidPoolState, amp)
	}
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			return nil, fmt.Errorf("pool %s: %w: duplicate token %s", name, ErrInvalidPoolState, t)
		}
		seen[t] = true
	}

	p := &StableSwap{
		name:     name,
		tokens:   append([]string(nil), tokens...),
		reserves: append([]float64(nil), reserves...),
		amp:      amp,
		fee:      fee,
	}
	d, _, err := solveD(p.reserves, amp, maxIterations)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	p.d = d
	return p, nil
}

func (p *StableSwap) Name() string           { return p.name }
func (p *StableSwap) Kind() Kind             { return KindStableSwap }
func (p *StableSwap) Tokens() []string       { return append([]string(nil), p.tokens...) }
func (p *StableSwap) Fee() float64           { return p.fee }
func (p *StableSwap) Reserves() []float64    { return append([]float64(nil), p.reserves...) }
func (p *StableSwap) Amplification() float64 { return p.amp }

// D returns the invariant for the current reserves.
func (p *StableSwap) D() float64 { return p.d }

func (p *StableSwap) HasPair(tokenA, tokenB string) bool {
	return hasPair(p.tokens, tokenA, tokenB)
}

// solveD runs Newton's method for the invariant, seeded at the reserve sum.
func solveD(reserves []float64, amp float64, maxIter int) (float64, int, error) {
	n := float64(len(reserves))
	ann := amp * math.Pow(n, n)

	var s float64
	for _, x := range reserves {
		if !(x > 0) {
			return 0, 0, fmt.Errorf("%w: reserve %v", ErrInvalidPoolState, x)
		}
		s += x
	}

	d := s
	for i := 1; i <= maxIter; i++ {
		dP := d
		for _, x := range reserves {
			dP = dP * d / (n * x)
		}
		prev := d
		d = (ann*s + dP*n) * d / ((ann-1)*d + (n+1)*dP)

		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return 0, i, fmt.Errorf("%w: invariant diverged to %v after %d iterations", ErrNumericalConvergence, d, i)
		}
		if math.Abs(d-prev) < convergenceTolerance {
			return d, i, nil
		}
	}
	return 0, maxIter, fmt.Errorf("%w: invariant did not converge in %d iterations", ErrNumericalConvergence, maxIter)
}

// solveY finds reserve j such that the invariant d holds when reserve i is x.
func solveY(reserves []float64, amp, d float64, i, j int, x float64, maxIter int) (float64, int, error) {
	n := float64(len(reserves))
	ann := amp * math.Pow(n, n)

	c := d
	var s float64
	for k, r := range reserves {
		switch k {
		case i:
			r = x
		case j:
			continue
		}
		s += r
		c = c * d / (n * r)
	}
	c = c * d / (n * ann)
	b := s + d/ann

	y := d
	for it := 1; it <= maxIter; it++ {
		prev := y
		denom := 2*y + b - d
		if !(denom > 0) {
			return 0, it, fmt.Errorf("%w: degenerate denominator %v in y solve", ErrNumericalConvergence, denom)
		}
		y = (y*y + c) / denom

		if math.IsNaN(y) || math.IsInf(y, 0) {
			return 0, it, fmt.Errorf("%w: y diverged after %d iterations", ErrNumericalConvergence, it)
		}
		if math.Abs(y-prev) < convergenceTolerance {
			return y, it, nil
		}
	}
	return 0, maxIter, fmt.Errorf("%w: y did not converge in %d iterations", ErrNumericalConvergence, maxIter)
}

func (p *StableSwap) getAmountOut(amountIn float64, i, j int) (float64, error) {
	x := p.reserves[i] + amountIn
	y, _, err := solveY(p.reserves, p.amp, p.d, i, j, x, maxIterations)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", p.name, err)
	}
	if !(y > 0) {
		return 0, fmt.Errorf("pool %s: %w: output reserve solved to %v", p.name, ErrInvalidPoolState, y)
	}

	dy := p.reserves[j] - y
	if dy < 0 {
		// solver noise on dust amounts
		dy = 0
	}
	return dy * (1 - p.fee), nil
}

func (p *StableSwap) Quote(amountIn float64, tokenIn, tokenOut string) (float64, error) {
	if !(amountIn > 0) {
		return 0, fmt.Errorf("pool %s: %w: %v", p.name, ErrInvalidAmount, amountIn)
	}
	i, j, err := indexOf(p.tokens, tokenIn, tokenOut)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", p.name, err)
	}
	if err := validateReserves(p.reserves); err != nil {
		return 0, fmt.Errorf("pool %s: %w", p.name, err)
	}
	return p.getAmountOut(amountIn, i, j)
}

// SpotPrice uses the plain reserve ratio. It is a screening price, not the
// derivative of the invariant; see MarginalPrice for that.
func (p *StableSwap) SpotPrice(tokenIn, tokenOut string) (float64, error) {
	i, j, err := indexOf(p.tokens, tokenIn, tokenOut)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", p.name, err)
	}
	if !(p.reserves[i] > 0) || !(p.reserves[j] > 0) {
		return 0, fmt.Errorf("pool %s: %w: reserves %v", p.name, ErrInvalidPoolState, p.reserves)
	}
	return p.reserves[j] / p.reserves[i], nil
}

// MarginalPrice is the fee-free dy/dx implied by the invariant at current
// reserves, from implicit differentiation of the StableSwap equation.
func (p *StableSwap) MarginalPrice(tokenIn, tokenOut string) (float64, error) {
	i, j, err := indexOf(p.tokens, tokenIn, tokenOut)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", p.name, err)
	}
	n := float64(len(p.reserves))
	ann := p.amp * math.Pow(n, n)

	// D^(n+1) / (n^n * prod(x))
	dP := p.d
	for _, x := range p.reserves {
		dP = dP * p.d / (n * x)
	}
	gradI := ann + dP/p.reserves[i]
	gradJ := ann + dP/p.reserves[j]
	return gradI / gradJ, nil
}

func (p *StableSwap) ApplyTrade(amountIn float64, tokenIn, tokenOut string) (float64, error) {
	amountOut, err := p.Quote(amountIn, tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	i, j, _ := indexOf(p.tokens, tokenIn, tokenOut)

	next := append([]float64(nil), p.reserves...)
	next[i] += amountIn
	next[j] -= amountOut
	if next[i] <= 0 || next[j] <= 0 {
		return 0, fmt.Errorf("pool %s: %w: trade of %v would drain reserves", p.name, ErrInvalidPoolState, amountIn)
	}

	d, _, err := solveD(next, p.amp, maxIterations)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", p.name, err)
	}

	p.reserves = next
	p.d = d
	return amountOut, nil
}

func (p *StableSwap) Clone() Pool {
	cp := *p
	cp.tokens = append([]string(nil), p.tokens...)
	cp.reserves = append([]float64(nil), p.reserves...)
	return &cp
}

func (p *StableSwap) WithReserves(reserves []float64) (Pool, error) {
	if len(reserves) != len(p.tokens) {
		return nil, fmt.Errorf("pool %s: %w: got %d reserves for %d tokens", p.name, ErrInvalidPoolState, len(reserves), len(p.tokens))
	}
	return NewStableSwap(p.name, p.tokens, reserves, p.amp, p.fee)
}

func (p *StableSwap) Config() Config {
	return Config{
		Name:          p.name,
		Kind:          KindStableSwap,
		Tokens:        p.Tokens(),
		Reserves:      p.Reserves(),
		Fee:           p.fee,
		Amplification: p.amp,
	}
}
