package backtest

import (
	"fmt"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/pulkyeet/arb-engine/internal/amm"
	"github.com/pulkyeet/arb-engine/internal/storage"
)

// ParquetRow is one pool state in a historical parquet export.
type ParquetRow struct {
	Timestamp     int64     `parquet:"name=timestamp, type=INT64"`
	Pool          string    `parquet:"name=pool, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind          string    `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Tokens        []string  `parquet:"name=tokens, type=LIST, valuetype=BYTE_ARRAY, valueconvertedtype=UTF8"`
	Reserves      []float64 `parquet:"name=reserves, type=LIST, valuetype=DOUBLE"`
	Fee           float64   `parquet:"name=fee, type=DOUBLE"`
	Amplification float64   `parquet:"name=amplification, type=DOUBLE"`
}

// ParseParquetRow converts a row to a storage snapshot. Timestamps are unix
// milliseconds.
func ParseParquetRow(row ParquetRow) (storage.PoolSnapshot, error) {
	if row.Pool == "" {
		return storage.PoolSnapshot{}, fmt.Errorf("missing pool name")
	}
	if row.Timestamp <= 0 {
		return storage.PoolSnapshot{}, fmt.Errorf("pool %s: invalid timestamp %d", row.Pool, row.Timestamp)
	}

	cfg := amm.Config{
		Name:          row.Pool,
		Kind:          amm.Kind(row.Kind),
		Tokens:        row.Tokens,
		Reserves:      row.Reserves,
		Fee:           row.Fee,
		Amplification: row.Amplification,
	}
	if _, err := amm.New(cfg); err != nil {
		return storage.PoolSnapshot{}, fmt.Errorf("pool %s at %d: %w", row.Pool, row.Timestamp, err)
	}

	return storage.PoolSnapshot{
		Timestamp: time.UnixMilli(row.Timestamp).UTC(),
		Pool:      cfg,
	}, nil
}

// ReadParquetSnapshots reads every row of a parquet export. Rows that do not
// describe a valid pool are counted in skipped and left out.
func ReadParquetSnapshots(path string) (rows []storage.PoolSnapshot, skipped int, err error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ParquetRow), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	raw := make([]ParquetRow, numRows)
	if err := pr.Read(&raw); err != nil {
		return nil, 0, fmt.Errorf("read parquet rows: %w", err)
	}

	rows = make([]storage.PoolSnapshot, 0, numRows)
	for _, r := range raw {
		snap, err := ParseParquetRow(r)
		if err != nil {
			skipped++
			continue
		}
		rows = append(rows, snap)
	}
	return rows, skipped, nil
}
