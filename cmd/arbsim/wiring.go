package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulkyeet/arb-engine/internal/arbitrage"
	"github.com/pulkyeet/arb-engine/internal/config"
	"github.com/pulkyeet/arb-engine/internal/eth"
	"github.com/pulkyeet/arb-engine/internal/feed"
	"github.com/pulkyeet/arb-engine/internal/gas"
)

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// costEstimator returns the gas model when enabled, else the flat cost.
// client may be nil, in which case the gas model uses fallback prices.
func costEstimator(cfg config.Config, client *eth.Client, logger *zap.Logger) (arbitrage.CostEstimator, error) {
	if !cfg.UseGasEstimator {
		return arbitrage.FixedCost(cfg.FixedCost), nil
	}

	var src gas.PriceSource
	if client != nil {
		src = client
	}
	est, err := gas.NewEstimator(src, cfg.Gas(), gas.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("gas estimator: %w", err)
	}
	return est, nil
}

// bindings resolves the live entries of a pools file to on-chain pairs.
func bindings(entries []config.PoolEntry) ([]feed.Binding, error) {
	var out []feed.Binding
	for _, e := range entries {
		if !e.Live() {
			continue
		}
		if len(e.Tokens) != 2 {
			return nil, fmt.Errorf("pool %s: only two-token pools can be bound to a pair", e.Name)
		}

		var infos [2]eth.TokenInfo
		for i, sym := range e.Tokens {
			info, ok := eth.KnownTokens[sym]
			if !ok {
				return nil, fmt.Errorf("pool %s: unknown token %s", e.Name, sym)
			}
			infos[i] = info
		}

		var addr common.Address
		switch {
		case e.Address != "":
			if !common.IsHexAddress(e.Address) {
				return nil, fmt.Errorf("pool %s: invalid address %q", e.Name, e.Address)
			}
			addr = common.HexToAddress(e.Address)
		default:
			dex, ok := eth.KnownDEXes[e.DEX]
			if !ok {
				return nil, fmt.Errorf("pool %s: unknown dex %s", e.Name, e.DEX)
			}
			var err error
			addr, err = eth.PairAddress(dex, infos[0].Address, infos[1].Address)
			if err != nil {
				return nil, fmt.Errorf("pool %s: %w", e.Name, err)
			}
		}

		token0, _ := eth.SortTokens(infos[0].Address, infos[1].Address)
		out = append(out, feed.Binding{
			Pool:     e.Name,
			Address:  addr,
			Decimals: [2]uint8{infos[0].Decimals, infos[1].Decimals},
			Flipped:  token0 != infos[0].Address,
		})
	}
	return out, nil
}
