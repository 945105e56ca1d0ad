package amm

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidPoolState     = errors.New("invalid pool state")
	ErrNumericalConvergence = errors.New("numerical convergence failure")
	ErrUnknownToken         = errors.New("unknown token")
)

// Kind names a pricing invariant.
type Kind string

const (
	KindConstantProduct Kind = "constant_product"
	KindStableSwap      Kind = "stableswap"
)

// Config describes a pool independent of its variant.
type Config struct {
	Name          string    `json:"name"`
	Kind          Kind      `json:"kind"`
	Tokens        []string  `json:"tokens"`
	Reserves      []float64 `json:"reserves"`
	Fee           float64   `json:"fee"`
	Amplification float64   `json:"amplification,omitempty"`
}

// Pool is a single liquidity venue. Implementations are not safe for
// concurrent mutation; callers that speculate must work on Clone().
type Pool interface {
	Name() string
	Kind() Kind
	Tokens() []string
	Fee() float64
	Reserves() []float64
	HasPair(tokenA, tokenB string) bool

	// Quote returns the output for amountIn without touching reserves.
	Quote(amountIn float64, tokenIn, tokenOut string) (float64, error)
	// SpotPrice is the reserve ratio of tokenOut to tokenIn.
	SpotPrice(tokenIn, tokenOut string) (float64, error)
	// MarginalPrice is the fee-free derivative of the invariant at the
	// current reserves.
	MarginalPrice(tokenIn, tokenOut string) (float64, error)
	// ApplyTrade executes the swap against the pool's own reserves.
	ApplyTrade(amountIn float64, tokenIn, tokenOut string) (float64, error)

	Clone() Pool
	WithReserves(reserves []float64) (Pool, error)
	Config() Config
}

// New builds the variant named by cfg.Kind.
func New(cfg Config) (Pool, error) {
	switch cfg.Kind {
	case KindConstantProduct, "":
		if len(cfg.Tokens) != 2 || len(cfg.Reserves) != 2 {
			return nil, fmt.Errorf("%w: constant product pool %q needs exactly 2 tokens", ErrInvalidPoolState, cfg.Name)
		}
		return NewConstantProduct(cfg.Name, [2]string{cfg.Tokens[0], cfg.Tokens[1]}, cfg.Reserves[0], cfg.Reserves[1], cfg.Fee)
	case KindStableSwap:
		return NewStableSwap(cfg.Name, cfg.Tokens, cfg.Reserves, cfg.Amplification, cfg.Fee)
	default:
		return nil, fmt.Errorf("%w: unknown pool kind %q", ErrInvalidPoolState, cfg.Kind)
	}
}

func validateFee(fee float64) error {
	if fee < 0 || fee >= 1 {
		return fmt.Errorf("%w: fee %v outside [0,1)", ErrInvalidPoolState, fee)
	}
	return nil
}

func validateReserves(reserves []float64) error {
	if len(reserves) == 0 {
		return fmt.Errorf("%w: no reserves", ErrInvalidPoolState)
	}
	for i, r := range reserves {
		if !(r > 0) {
			return fmt.Errorf("%w: reserve %d is %v", ErrInvalidPoolState, i, r)
		}
	}
	return nil
}

// indexOf resolves a token pair to reserve indices.
func indexOf(tokens []string, tokenIn, tokenOut string) (int, int, error) {
	i, j := -1, -1
	for k, t := range tokens {
		if t == tokenIn {
			i = k
		}
		if t == tokenOut {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, 0, fmt.Errorf("%w: %s/%s", ErrUnknownToken, tokenIn, tokenOut)
	}
	if i == j {
		return 0, 0, fmt.Errorf("%w: %s traded against itself", ErrInvalidAmount, tokenIn)
	}
	return i, j, nil
}

func hasPair(tokens []string, a, b string) bool {
	_, _, err := indexOf(tokens, a, b)
	return err == nil
}
