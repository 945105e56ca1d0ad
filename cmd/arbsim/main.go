package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	root := &cobra.Command{
		Use:          "arbsim",
		Short:        "AMM arbitrage detection and replay",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a pool set once for two-pool and triangular arbitrage",
		RunE:  runScan,
	}
	addDetectorFlags(scanCmd.Flags())
	addCostFlags(scanCmd.Flags())
	scanCmd.Flags().String("pools", "./pools.yaml", "pools file (yaml, json or toml)")
	scanCmd.Flags().Bool("live", false, "refresh bound pools from chain before scanning")
	scanCmd.Flags().String("rpc", "", "Ethereum RPC URL (defaults to ALCHEMY_URL)")
	scanCmd.Flags().String("out", "", "append opportunities to this JSONL file")
	root.AddCommand(scanCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll on-chain reserves and scan on every update",
		RunE:  runWatch,
	}
	addDetectorFlags(watchCmd.Flags())
	addCostFlags(watchCmd.Flags())
	watchCmd.Flags().String("pools", "./pools.yaml", "pools file (yaml, json or toml)")
	watchCmd.Flags().String("rpc", "", "Ethereum RPC URL (defaults to ALCHEMY_URL)")
	watchCmd.Flags().Duration("interval", 12*time.Second, "polling interval")
	watchCmd.Flags().Int("cache-size", 4096, "reserve cache entries")
	watchCmd.Flags().String("out", "", "append opportunities to this JSONL file")
	watchCmd.Flags().Bool("record", false, "record every snapshot into the sqlite store")
	watchCmd.Flags().String("db", "./data/snapshots.db", "snapshot sqlite file used with --record")
	root.AddCommand(watchCmd)

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay recorded pool snapshots and report strategy performance",
		RunE:  runBacktest,
	}
	addDetectorFlags(backtestCmd.Flags())
	backtestCmd.Flags().String("db", "./data/snapshots.db", "snapshot sqlite file")
	backtestCmd.Flags().Float64("initial-capital", 10000, "starting cash in quote token units")
	backtestCmd.Flags().Float64("fixed-cost", 0.001, "flat cost charged per arbitrage")
	backtestCmd.Flags().String("out", "", "append executed trades to this JSONL file")
	root.AddCommand(backtestCmd)

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load historical pool snapshots from parquet into sqlite",
		RunE:  runIngest,
	}
	ingestCmd.Flags().String("file", "", "parquet file with pool snapshots")
	ingestCmd.Flags().String("db", "./data/snapshots.db", "snapshot sqlite file")
	ingestCmd.Flags().Int("batch-size", 1000, "rows per insert transaction")
	ingestCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	ingestCmd.MarkFlagRequired("file")
	root.AddCommand(ingestCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addDetectorFlags(fs *pflag.FlagSet) {
	fs.String("base", "ETH", "base token of the two-pool pair")
	fs.String("quote", "USDC", "quote token of the two-pool pair")
	fs.StringSlice("triangle", []string{"USDC", "USDT", "DAI"}, "three tokens for the triangular cycle")
	fs.Float64("min-profit", 0.01, "minimum net profit to report")
	fs.Float64("screen-threshold", 0.001, "minimum relative price divergence to optimize a pair")
	fs.Float64("bounds-lower", 0.01, "smallest trade size searched")
	fs.Float64("bounds-upper", 1000, "largest trade size searched")
	fs.Float64Slice("trial-amounts", []float64{0.1, 1, 10, 100}, "start amounts for triangular cycles")
	fs.Int("workers", 0, "concurrent candidate evaluations (0 = NumCPU)")
	fs.Duration("scan-timeout", 30*time.Second, "deadline for one scan")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addCostFlags(fs *pflag.FlagSet) {
	fs.Bool("gas-estimator", false, "price arbitrage with the gas model instead of a flat cost")
	fs.Float64("fixed-cost", 0.001, "flat cost charged per arbitrage")
	fs.String("gas-speed", "fast", "gas speed (slow, standard, fast)")
	fs.String("cost-unit", "usd", "unit of the gas cost (eth, usd)")
	fs.Float64("eth-usd", 2000, "ETH/USD rate for usd costs")
	fs.Duration("gas-max-age", 12*time.Second, "reuse a live gas price this long")
}
