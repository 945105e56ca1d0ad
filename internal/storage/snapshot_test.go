package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulkyeet/arb-engine/internal/amm"
)

func openTestDB(t *testing.T) *SnapshotDB {
	t.Helper()
	db, err := NewSnapshotDB(filepath.Join(t.TempDir(), "nested", "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	stable := amm.Config{
		Name:          "3pool",
		Kind:          amm.KindStableSwap,
		Tokens:        []string{"USDC", "USDT", "DAI"},
		Reserves:      []float64{1e6, 1.01e6, 0.99e6},
		Fee:           0.0004,
		Amplification: 100,
	}
	cp := amm.Config{
		Name:     "uniswap",
		Tokens:   []string{"ETH", "USDC"},
		Reserves: []float64{1000, 2_000_000},
		Fee:      0.003,
	}

	require.NoError(t, db.BatchInsert(ctx, []PoolSnapshot{
		{Timestamp: t1, Pool: cp},
		{Timestamp: t0, Pool: stable},
		{Timestamp: t0, Pool: cp},
	}))

	ts, err := db.Timestamps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{t0, t1}, ts)

	pools, err := db.PoolsAt(ctx, t0)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, stable, pools[0])

	cp.Kind = amm.KindConstantProduct
	assert.Equal(t, cp, pools[1])

	for _, cfg := range pools {
		_, err := amm.New(cfg)
		assert.NoError(t, err)
	}
}

func TestSnapshotReplaceAndStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ts := time.UnixMilli(1_700_000_000_000).UTC()

	row := PoolSnapshot{Timestamp: ts, Pool: amm.Config{
		Name: "a", Kind: amm.KindConstantProduct, Tokens: []string{"ETH", "USDC"}, Reserves: []float64{1, 2}, Fee: 0.003,
	}}
	require.NoError(t, db.BatchInsert(ctx, []PoolSnapshot{row}))

	row.Pool.Reserves = []float64{3, 4}
	require.NoError(t, db.BatchInsert(ctx, []PoolSnapshot{row}))

	pools, err := db.PoolsAt(ctx, ts)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, []float64{3, 4}, pools[0].Reserves)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"snapshots": 1, "timestamps": 1, "pools": 1}, stats)
}

func TestSnapshotEmpty(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.BatchInsert(context.Background(), nil))
	ts, err := db.Timestamps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ts)

	pools, err := db.PoolsAt(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, pools)
}
