package amm

import "fmt"

// ConstantProduct is a two-token x*y=k pool, Uniswap V2 style.
type ConstantProduct struct {
	name     string
	tokens   [2]string
	reserve0 float64
	reserve1 float64
	fee      float64
}

func NewConstantProduct(name string, tokens [2]string, reserve0, reserve1, fee float64) (*ConstantProduct, error) {
	if err := validateReserves([]float64{reserve0, reserve1}); err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	if err := validateFee(fee); err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	if tokens[0] == tokens[1] {
		return nil, fmt.Errorf("pool %s: %w: duplicate token %s", name, ErrInvalidPoolState, tokens[0])
	}
	return &ConstantProduct{
		name:     name,
		tokens:   tokens,
		reserve0: reserve0,
		reserve1: reserve1,
		fee:      fee,
	}, nil
}

func (p *ConstantProduct) Name() string        { return p.name }
func (p *ConstantProduct) Kind() Kind          { return KindConstantProduct }
func (p *ConstantProduct) Tokens() []string    { return []string{p.tokens[0], p.tokens[1]} }
func (p *ConstantProduct) Fee() float64        { return p.fee }
func (p *ConstantProduct) Reserves() []float64 { return []float64{p.reserve0, p.reserve1} }

// K is the current reserve product.
func (p *ConstantProduct) K() float64 { return p.reserve0 * p.reserve1 }

func (p *ConstantProduct) HasPair(tokenA, tokenB string) bool {
	return hasPair(p.tokens[:], tokenA, tokenB)
}

// orient returns (reserveIn, reserveOut, inIsToken0).
func (p *ConstantProduct) orient(tokenIn, tokenOut string) (float64, float64, bool, error) {
	i, _, err := indexOf(p.tokens[:], tokenIn, tokenOut)
	if err != nil {
		return 0, 0, false, fmt.Errorf("pool %s: %w", p.name, err)
	}
	if p.reserve0 <= 0 || p.reserve1 <= 0 {
		return 0, 0, false, fmt.Errorf("pool %s: %w: reserves %v/%v", p.name, ErrInvalidPoolState, p.reserve0, p.reserve1)
	}
	if i == 0 {
		return p.reserve0, p.reserve1, true, nil
	}
	return p.reserve1, p.reserve0, false, nil
}

func (p *ConstantProduct) Quote(amountIn float64, tokenIn, tokenOut string) (float64, error) {
	if !(amountIn > 0) {
		return 0, fmt.Errorf("pool %s: %w: %v", p.name, ErrInvalidAmount, amountIn)
	}
	reserveIn, reserveOut, _, err := p.orient(tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	return GetAmountOut(amountIn, reserveIn, reserveOut, p.fee), nil
}

func (p *ConstantProduct) SpotPrice(tokenIn, tokenOut string) (float64, error) {
	reserveIn, reserveOut, _, err := p.orient(tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	return reserveOut / reserveIn, nil
}

// MarginalPrice is the fee-free dy/dx of x*y=k at current reserves, which
// for this invariant is the reserve ratio.
func (p *ConstantProduct) MarginalPrice(tokenIn, tokenOut string) (float64, error) {
	return p.SpotPrice(tokenIn, tokenOut)
}

func (p *ConstantProduct) ApplyTrade(amountIn float64, tokenIn, tokenOut string) (float64, error) {
	amountOut, err := p.Quote(amountIn, tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	_, _, inIsToken0, _ := p.orient(tokenIn, tokenOut)

	r0, r1 := p.reserve0, p.reserve1
	if inIsToken0 {
		r0 += amountIn
		r1 -= amountOut
	} else {
		r1 += amountIn
		r0 -= amountOut
	}
	if r0 <= 0 || r1 <= 0 {
		return 0, fmt.Errorf("pool %s: %w: trade of %v would drain reserves", p.name, ErrInvalidPoolState, amountIn)
	}

	p.reserve0, p.reserve1 = r0, r1
	return amountOut, nil
}

func (p *ConstantProduct) Clone() Pool {
	cp := *p
	return &cp
}

func (p *ConstantProduct) WithReserves(reserves []float64) (Pool, error) {
	if len(reserves) != 2 {
		return nil, fmt.Errorf("pool %s: %w: got %d reserves", p.name, ErrInvalidPoolState, len(reserves))
	}
	return NewConstantProduct(p.name, p.tokens, reserves[0], reserves[1], p.fee)
}

func (p *ConstantProduct) Config() Config {
	return Config{
		Name:     p.name,
		Kind:     KindConstantProduct,
		Tokens:   p.Tokens(),
		Reserves: p.Reserves(),
		Fee:      p.fee,
	}
}
