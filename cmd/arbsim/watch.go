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
	"github.com/pulkyeet/arb-engine/internal/config"
	"github.com/pulkyeet/arb-engine/internal/eth"
	"github.com/pulkyeet/arb-engine/internal/feed"
	"github.com/pulkyeet/arb-engine/internal/storage"
)

func runWatch(cmd *cobra.Command, _ []string) error {
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
	binds, err := bindings(entries)
	if err != nil {
		return err
	}
	if len(binds) == 0 {
		return fmt.Errorf("no pool in %s is bound to a dex or address", cfg.PoolsFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := eth.NewClient(cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	cost, err := costEstimator(cfg, client, logger)
	if err != nil {
		return err
	}
	detector := arbitrage.NewDetector(pools, cfg.Detector(),
		arbitrage.WithLogger(logger),
		arbitrage.WithCostEstimator(cost),
	)

	src, err := feed.NewRPC(client, binds, cfg.CacheSize, logger)
	if err != nil {
		return err
	}

	db, err := openRecorder(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	logger.Info("watch start",
		zap.Int("pools", len(pools)),
		zap.Int("bound", len(binds)),
		zap.Duration("interval", cfg.Interval),
		zap.String("pair", cfg.Pair().String()),
	)

	snaps, errs, err := feed.Poll(ctx, src, cfg.Interval, logger)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Printf("snapshot error: %v\n", err)
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := detector.UpdateReserves(snap.Reserves); err != nil {
				logger.Warn("rejected snapshot", zap.Uint64("block", snap.Block), zap.Error(err))
				continue
			}
			if db != nil {
				if err := record(ctx, db, snap, detector); err != nil {
					logger.Warn("record snapshot failed", zap.Error(err))
				}
			}
			fmt.Printf("\n=== block %d ===\n", snap.Block)
			if err := scanOnce(ctx, cfg, detector, logger); err != nil && ctx.Err() == nil {
				logger.Warn("scan failed", zap.Uint64("block", snap.Block), zap.Error(err))
			}
		}
	}
}

// openRecorder opens the snapshot store when recording is enabled and
// returns nil otherwise.
func openRecorder(cfg config.Config) (*storage.SnapshotDB, error) {
	if !cfg.Record {
		return nil, nil
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("record needs a db path")
	}
	return storage.NewSnapshotDB(cfg.DBPath)
}

func record(ctx context.Context, db *storage.SnapshotDB, snap feed.Snapshot, detector *arbitrage.Detector) error {
	var rows []storage.PoolSnapshot
	for _, p := range detector.Pools() {
		rows = append(rows, storage.PoolSnapshot{Timestamp: snap.Timestamp, Pool: p.Config()})
	}
	return db.BatchInsert(ctx, rows)
}
