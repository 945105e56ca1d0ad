package feed

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/pulkyeet/arb-engine/internal/eth"
)

// Caller is the chain access the RPC source needs. *eth.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Binding ties a named constant product pool to its on-chain pair.
// Decimals follow the pool's token order; Flipped is set when that order is
// the reverse of the pair's token0/token1.
type Binding struct {
	Pool     string
	Address  common.Address
	Decimals [2]uint8
	Flipped  bool
}

type cacheKey struct {
	pair  common.Address
	block uint64
}

// RPC reads Uniswap V2 style reserves with getReserves at the latest block.
type RPC struct {
	caller   Caller
	abi      abi.ABI
	bindings []Binding
	cache    *lru.Cache[cacheKey, [2]*big.Int]
	logger   *zap.Logger
	now      func() time.Time
}

func NewRPC(caller Caller, bindings []Binding, cacheSize int, logger *zap.Logger) (*RPC, error) {
	contractABI, err := abi.JSON(strings.NewReader(eth.UniswapV2PairABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[cacheKey, [2]*big.Int](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create reserve cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RPC{
		caller:   caller,
		abi:      contractABI,
		bindings: bindings,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (r *RPC) Snapshot(ctx context.Context) (Snapshot, error) {
	block, err := r.caller.BlockNumber(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("block number: %w", err)
	}
	return r.SnapshotAt(ctx, block)
}

// SnapshotAt reads every bound pool at block.
func (r *RPC) SnapshotAt(ctx context.Context, block uint64) (Snapshot, error) {
	snap := Snapshot{
		Timestamp: r.now(),
		Block:     block,
		Reserves:  make(map[string][]float64, len(r.bindings)),
	}
	for _, b := range r.bindings {
		reserves, err := r.ReservesAt(ctx, b, block)
		if err != nil {
			return Snapshot{}, fmt.Errorf("pool %s: %w", b.Pool, err)
		}
		snap.Reserves[b.Pool] = reserves
	}
	return snap, nil
}

// ReservesAt returns the pool's reserves at block in whole token units.
func (r *RPC) ReservesAt(ctx context.Context, b Binding, block uint64) ([]float64, error) {
	raw, err := r.fetchReserves(ctx, b.Address, block)
	if err != nil {
		return nil, err
	}
	if b.Flipped {
		raw[0], raw[1] = raw[1], raw[0]
	}

	out := make([]float64, 2)
	for i := range raw {
		v, err := ToUnits(raw[i], b.Decimals[i])
		if err != nil {
			return nil, fmt.Errorf("reserve%d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (r *RPC) fetchReserves(ctx context.Context, pair common.Address, block uint64) ([2]*big.Int, error) {
	key := cacheKey{pair: pair, block: block}
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	data, err := r.abi.Pack("getReserves")
	if err != nil {
		return [2]*big.Int{}, fmt.Errorf("pack getReserves: %w", err)
	}

	msg := ethereum.CallMsg{To: &pair, Data: data}
	result, err := r.caller.CallContract(ctx, msg, new(big.Int).SetUint64(block))
	if err != nil {
		return [2]*big.Int{}, fmt.Errorf("call contract: %w", err)
	}

	unpacked, err := r.abi.Unpack("getReserves", result)
	if err != nil {
		return [2]*big.Int{}, fmt.Errorf("unpack reserves: %w", err)
	}
	if len(unpacked) < 2 {
		return [2]*big.Int{}, fmt.Errorf("unexpected unpack result length: %d", len(unpacked))
	}

	reserve0, ok := unpacked[0].(*big.Int)
	if !ok {
		return [2]*big.Int{}, fmt.Errorf("reserve0 type assertion failed")
	}
	reserve1, ok := unpacked[1].(*big.Int)
	if !ok {
		return [2]*big.Int{}, fmt.Errorf("reserve1 type assertion failed")
	}

	reserves := [2]*big.Int{reserve0, reserve1}
	r.cache.Add(key, reserves)
	r.logger.Debug("reserves fetched",
		zap.String("pair", pair.Hex()),
		zap.Uint64("block", block),
		zap.String("reserve0", reserve0.String()),
		zap.String("reserve1", reserve1.String()),
	)
	return reserves, nil
}

// ToUnits scales a raw token amount down by decimals.
func ToUnits(raw *big.Int, decimals uint8) (float64, error) {
	if raw.Sign() < 0 {
		return 0, fmt.Errorf("negative amount %s", raw)
	}
	v, overflow := uint256.FromBig(raw)
	if overflow {
		return 0, fmt.Errorf("amount %s overflows 256 bits", raw)
	}

	whole := new(uint256.Int)
	frac := new(uint256.Int)
	unit := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	whole.DivMod(v, unit, frac)

	return float64FromU256(whole) + float64FromU256(frac)/math.Pow10(int(decimals)), nil
}

func float64FromU256(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
