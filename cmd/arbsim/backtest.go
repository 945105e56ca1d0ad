package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulkyeet/arb-engine/internal/arbitrage"
	"github.com/pulkyeet/arb-engine/internal/backtest"
	"github.com/pulkyeet/arb-engine/internal/report"
	"github.com/pulkyeet/arb-engine/internal/storage"
)

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := storage.NewSnapshotDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetStats()
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	if stats["snapshots"] == 0 {
		return fmt.Errorf("%s holds no snapshots, run ingest first", cfg.DBPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := backtest.NewRunner(db, backtest.Config{
		Pair:           cfg.Pair(),
		InitialCapital: cfg.InitialCapital,
		StepTimeout:    cfg.ScanTimeout,
		Detector:       cfg.Detector(),
	}, logger, arbitrage.WithCostEstimator(arbitrage.FixedCost(cfg.FixedCost)))

	var tradeErr error
	if cfg.Out != "" {
		out := report.NewJSONL(cfg.Out)
		runner.SetOnTrade(func(t backtest.Trade) {
			if err := report.Append(out, []backtest.Trade{t}); err != nil && tradeErr == nil {
				tradeErr = err
			}
		})
	}

	rep, err := runner.Run(ctx)
	if rep == nil {
		return err
	}
	if err != nil {
		logger.Warn("backtest interrupted", zap.Error(err))
	}
	if tradeErr != nil {
		logger.Warn("trade log incomplete", zap.Error(tradeErr))
	}

	m := rep.Metrics
	fmt.Println("\nBacktest Results:")
	fmt.Println("=================")
	fmt.Printf("  steps:          %d (%d failed)\n", rep.StepsRun, rep.StepsFailed)
	fmt.Printf("  trades:         %d\n", m.TotalTrades)
	fmt.Printf("  total return:   %.4f%%\n", m.TotalReturn*100)
	fmt.Printf("  sharpe ratio:   %.4f\n", m.SharpeRatio)
	fmt.Printf("  max drawdown:   %.4f%%\n", m.MaxDrawdown*100)
	fmt.Printf("  win rate:       %.2f%%\n", m.WinRate*100)
	fmt.Printf("  avg profit:     %.6f\n", m.AvgProfitPerTrade)
	if n := len(rep.History); n > 0 {
		fmt.Printf("  final value:    %.4f\n", rep.History[n-1].Value)
	}
	return nil
}
