package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulkyeet/arb-engine/internal/backtest"
	"github.com/pulkyeet/arb-engine/internal/storage"
)

func runIngest(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive")
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("ingesting pool snapshots from %s...\n", file)
	startTime := time.Now()

	rows, skipped, err := backtest.ReadParquetSnapshots(file)
	if err != nil {
		return err
	}
	fmt.Printf("read %d rows (%d invalid skipped)\n", len(rows), skipped)

	db, err := storage.NewSnapshotDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		if err := db.BatchInsert(ctx, rows[i:end]); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", i, end, err)
		}
		fmt.Printf("ingested %d/%d rows\n", end, len(rows))
	}

	stats, err := db.GetStats()
	if err != nil {
		return err
	}
	fmt.Printf("\ndone in %s: %d snapshots, %d timestamps, %d pools in %s\n",
		time.Since(startTime).Round(time.Millisecond),
		stats["snapshots"], stats["timestamps"], stats["pools"], cfg.DBPath)
	return nil
}
