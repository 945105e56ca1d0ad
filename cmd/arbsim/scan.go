package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulkyeet/arb-engine/internal/amm"
	"github.com/pulkyeet/arb-engine/internal/arbitrage"
	"github.com/pulkyeet/arb-engine/internal/config"
	"github.com/pulkyeet/arb-engine/internal/eth"
	"github.com/pulkyeet/arb-engine/internal/feed"
	"github.com/pulkyeet/arb-engine/internal/report"
)

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	entries, err := config.LoadPools(cfg.PoolsFile)
	if err != nil {
		return err
	}
	pools, err := config.BuildPools(entries)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	live, _ := cmd.Flags().GetBool("live")
	var client *eth.Client
	if live {
		client, err = eth.NewClient(cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()
	}

	cost, err := costEstimator(cfg, client, logger)
	if err != nil {
		return err
	}
	detector := arbitrage.NewDetector(pools, cfg.Detector(),
		arbitrage.WithLogger(logger),
		arbitrage.WithCostEstimator(cost),
	)

	if live {
		binds, err := bindings(entries)
		if err != nil {
			return err
		}
		src, err := feed.NewRPC(client, binds, cfg.CacheSize, logger)
		if err != nil {
			return err
		}
		snap, err := src.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("read reserves: %w", err)
		}
		if err := detector.UpdateReserves(snap.Reserves); err != nil {
			return err
		}
		fmt.Printf("refreshed %d pools at block %d\n", len(snap.Reserves), snap.Block)
	}

	printPools(detector.Pools(), cfg.Pair())
	return scanOnce(ctx, cfg, detector, logger)
}

// scanOnce runs both searches, prints the results and appends them to the
// configured output file.
func scanOnce(ctx context.Context, cfg config.Config, detector *arbitrage.Detector, logger *zap.Logger) error {
	scanCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	pair := cfg.Pair()
	fmt.Printf("\nscanning %s across pools...\n", pair)
	result, err := detector.FindTwoPoolArbitrage(scanCtx, pair)
	if err != nil && result == nil {
		return err
	}
	if err != nil {
		logger.Warn("two-pool scan incomplete", zap.Error(err))
	}
	printOpportunities(result)

	var tri *arbitrage.TriangularResult
	if len(cfg.Triangle) == 3 {
		tokens := [3]string{cfg.Triangle[0], cfg.Triangle[1], cfg.Triangle[2]}
		fmt.Printf("\nscanning cycle %s -> %s -> %s -> %s...\n", tokens[0], tokens[1], tokens[2], tokens[0])
		tri, err = detector.FindTriangularArbitrage(scanCtx, tokens)
		if err != nil && tri == nil {
			return err
		}
		if err != nil {
			logger.Warn("triangular scan incomplete", zap.Error(err))
		}
		printPaths(tri)
	}

	if cfg.Out == "" {
		return nil
	}
	out := report.NewJSONL(cfg.Out)
	if err := report.Append(out, result.Opportunities); err != nil {
		return err
	}
	if tri != nil {
		if err := report.Append(out, tri.Paths); err != nil {
			return err
		}
	}
	return nil
}

func printPools(pools []amm.Pool, pair arbitrage.TokenPair) {
	fmt.Println("Pools:")
	fmt.Println("======")
	for _, p := range pools {
		fmt.Printf("  %-24s %-16s tokens=%v reserves=%v fee=%.4f", p.Name(), p.Kind(), p.Tokens(), p.Reserves(), p.Fee())
		if p.HasPair(pair.Base, pair.Quote) {
			if m, err := p.MarginalPrice(pair.Base, pair.Quote); err == nil {
				fmt.Printf(" marginal %s=%.6f", pair, m)
			}
		}
		fmt.Println()
	}
}

func printOpportunities(result *arbitrage.ScanResult) {
	fmt.Printf("evaluated %d pairs, %d skipped\n", result.Evaluated, len(result.Skipped))
	if len(result.Opportunities) == 0 {
		fmt.Println("no profitable opportunity")
		return
	}
	for _, o := range result.Opportunities {
		fmt.Printf("  buy on %s, sell on %s: in %.4f %s, gross %.6f, cost %.6f, net %.6f (divergence %.4f%%)\n",
			o.BuyPool, o.SellPool, o.Amount, o.TokenIn, o.GrossProfit, o.Cost, o.ExpectedProfit, o.PriceDivergence*100)
	}
	if best, ok := result.Best(); ok {
		fmt.Printf("best: %s -> %s, net %.6f %s\n", best.BuyPool, best.SellPool, best.ExpectedProfit, best.TokenIn)
	}
}

func printPaths(result *arbitrage.TriangularResult) {
	fmt.Printf("evaluated %d cycles, %d skipped\n", result.Evaluated, len(result.Skipped))
	if len(result.Paths) == 0 {
		fmt.Println("no profitable cycle")
		return
	}
	for _, p := range result.Paths {
		fmt.Printf("  %s: %.4f -> %.6f (%.4f%%), net %.6f\n", p.Pool, p.StartAmount, p.EndAmount, p.ProfitPercentage, p.NetProfit)
	}
}
