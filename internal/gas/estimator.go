package gas

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	ErrUnknownSpeed = errors.New("unknown gas speed")
	ErrUnknownUnit  = errors.New("unknown cost unit")
)

type Speed string

const (
	Slow     Speed = "slow"
	Standard Speed = "standard"
	Fast     Speed = "fast"
)

type SwapType string

const (
	UniswapV2 SwapType = "uniswap_v2"
	UniswapV3 SwapType = "uniswap_v3"
	Curve     SwapType = "curve"
	MultiHop  SwapType = "multi_hop"
)

// swapGasUnits are typical gas usages per swap venue.
var swapGasUnits = map[SwapType]uint64{
	UniswapV2: 120_000,
	UniswapV3: 150_000,
	Curve:     200_000,
	MultiHop:  200_000,
}

const defaultSwapGas = 150_000

// Unit is what ArbitrageCost reports in.
type Unit string

const (
	UnitETH Unit = "eth"
	UnitUSD Unit = "usd"
)

// PriceSource reports the node's suggested gas price in wei.
type PriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

type Config struct {
	Speed       Speed
	Unit        Unit
	ApprovalGas uint64
	SwapGas     uint64
	// SafetyMargin is added on top of the raw arbitrage cost, as a fraction.
	SafetyMargin float64
	ETHUSD       float64
	// FallbackGwei prices each speed when no live source is configured.
	FallbackGwei map[Speed]uint64
	// MaxAge is how long a live price is reused before ArbitrageCost refreshes it.
	MaxAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		Speed:        Fast,
		Unit:         UnitUSD,
		ApprovalGas:  50_000,
		SwapGas:      150_000,
		SafetyMargin: 0.1,
		ETHUSD:       2000,
		FallbackGwei: map[Speed]uint64{Slow: 20, Standard: 30, Fast: 50},
		MaxAge:       12 * time.Second,
	}
}

// Estimate is a cost breakdown for one transaction or bundle.
type Estimate struct {
	GasUnits     uint64
	GasPriceGwei float64
	CostWei      *uint256.Int
	CostETH      float64
	CostUSD      float64
}

type Option func(*Estimator)

func WithLogger(l *zap.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		if now != nil {
			e.now = now
		}
	}
}

// Estimator prices swaps and arbitrage bundles from the current gas price.
// It is safe for concurrent use.
type Estimator struct {
	src    PriceSource
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	prices  map[Speed]*uint256.Int
	updated time.Time
}

// NewEstimator starts from the fallback prices. src may be nil, in which
// case the fallback prices are used for good.
func NewEstimator(src PriceSource, cfg Config, opts ...Option) (*Estimator, error) {
	def := DefaultConfig()
	if cfg.Speed == "" {
		cfg.Speed = def.Speed
	}
	if cfg.Unit == "" {
		cfg.Unit = def.Unit
	}
	if cfg.FallbackGwei == nil {
		cfg.FallbackGwei = def.FallbackGwei
	}
	if cfg.Unit != UnitETH && cfg.Unit != UnitUSD {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, cfg.Unit)
	}
	if cfg.SafetyMargin < 0 {
		return nil, fmt.Errorf("negative safety margin %v", cfg.SafetyMargin)
	}

	e := &Estimator{
		src:    src,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.prices = fallbackPrices(cfg.FallbackGwei)
	if _, ok := e.prices[cfg.Speed]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpeed, cfg.Speed)
	}
	return e, nil
}

func fallbackPrices(gwei map[Speed]uint64) map[Speed]*uint256.Int {
	prices := make(map[Speed]*uint256.Int, len(gwei))
	for speed, g := range gwei {
		prices[speed] = new(uint256.Int).Mul(uint256.NewInt(g), uint256.NewInt(params.GWei))
	}
	return prices
}

// Refresh pulls the current gas price and derives slow/standard/fast as
// 0.8x/1x/1.2x of it. Without a source it is a no-op.
func (e *Estimator) Refresh(ctx context.Context) error {
	if e.src == nil {
		return nil
	}

	price, err := e.src.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}
	standard, overflow := uint256.FromBig(price)
	if overflow || price.Sign() < 0 {
		return fmt.Errorf("gas price %s out of range", price)
	}

	prices := map[Speed]*uint256.Int{
		Slow:     scale(standard, 8, 10),
		Standard: standard,
		Fast:     scale(standard, 12, 10),
	}

	e.mu.Lock()
	e.prices = prices
	e.updated = e.now()
	e.mu.Unlock()

	e.logger.Debug("gas prices refreshed", zap.String("standard_wei", standard.Dec()))
	return nil
}

func scale(v *uint256.Int, num, den uint64) *uint256.Int {
	out := new(uint256.Int).Mul(v, uint256.NewInt(num))
	return out.Div(out, uint256.NewInt(den))
}

// GasPrice returns the current wei price for speed.
func (e *Estimator) GasPrice(speed Speed) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.prices[speed]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpeed, speed)
	}
	return new(uint256.Int).Set(p), nil
}

// EstimateSwapCost prices a single swap on the given venue type. Unknown
// types are charged a generic 150k gas.
func (e *Estimator) EstimateSwapCost(swapType SwapType, speed Speed) (Estimate, error) {
	units, ok := swapGasUnits[swapType]
	if !ok {
		units = defaultSwapGas
	}
	return e.estimate(units, speed, 0)
}

// EstimateArbitrageCost prices an approval plus swaps swaps, padded by the
// safety margin.
func (e *Estimator) EstimateArbitrageCost(swaps int, speed Speed) (Estimate, error) {
	if swaps <= 0 {
		return Estimate{}, fmt.Errorf("swap count must be positive, got %d", swaps)
	}
	units := e.cfg.ApprovalGas + e.cfg.SwapGas*uint64(swaps)
	return e.estimate(units, speed, e.cfg.SafetyMargin)
}

func (e *Estimator) estimate(units uint64, speed Speed, margin float64) (Estimate, error) {
	price, err := e.GasPrice(speed)
	if err != nil {
		return Estimate{}, err
	}

	wei := new(uint256.Int).Mul(price, uint256.NewInt(units))
	if margin > 0 {
		bps := uint64(math.Round((1 + margin) * 10_000))
		wei = scale(wei, bps, 10_000)
	}

	costETH := weiToFloat(wei, params.Ether)
	return Estimate{
		GasUnits:     units,
		GasPriceGwei: weiToFloat(price, params.GWei),
		CostWei:      wei,
		CostETH:      costETH,
		CostUSD:      costETH * e.cfg.ETHUSD,
	}, nil
}

func weiToFloat(v *uint256.Int, unit float64) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v.ToBig()), big.NewFloat(unit)).Float64()
	return f
}

// ArbitrageCost prices an arbitrage at the configured speed and unit. A
// stale live price is refreshed first; if that fails the last known prices
// are used.
func (e *Estimator) ArbitrageCost(ctx context.Context, swaps int) (float64, error) {
	if e.src != nil && e.stale() {
		if err := e.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			e.logger.Warn("gas price refresh failed, using last known prices", zap.Error(err))
		}
	}

	est, err := e.EstimateArbitrageCost(swaps, e.cfg.Speed)
	if err != nil {
		return 0, err
	}
	if e.cfg.Unit == UnitETH {
		return est.CostETH, nil
	}
	return est.CostUSD, nil
}

func (e *Estimator) stale() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.updated.IsZero() || e.now().Sub(e.updated) >= e.cfg.MaxAge
}
