package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"

	"github.com/pulkyeet/arb-engine/internal/amm"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_snapshots (
	ts            INTEGER NOT NULL,
	pool          TEXT    NOT NULL,
	kind          TEXT    NOT NULL,
	tokens        TEXT    NOT NULL,
	reserves      TEXT    NOT NULL,
	fee           REAL    NOT NULL,
	amplification REAL    NOT NULL DEFAULT 0,
	PRIMARY KEY (ts, pool)
);
CREATE INDEX IF NOT EXISTS idx_pool_snapshots_pool ON pool_snapshots (pool);
`

// PoolSnapshot is one pool's full state at one instant.
type PoolSnapshot struct {
	Timestamp time.Time
	Pool      amm.Config
}

// SnapshotDB stores historical pool states for replay.
type SnapshotDB struct {
	db *sql.DB
}

func NewSnapshotDB(dbPath string) (*SnapshotDB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &SnapshotDB{db: db}, nil
}

func (s *SnapshotDB) Close() error {
	return s.db.Close()
}

// BatchInsert writes rows in one transaction. A row for an existing
// (timestamp, pool) replaces it.
func (s *SnapshotDB) BatchInsert(ctx context.Context, rows []PoolSnapshot) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO pool_snapshots
		(ts, pool, kind, tokens, reserves, fee, amplification)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		tokens, err := sonnet.Marshal(row.Pool.Tokens)
		if err != nil {
			return fmt.Errorf("encode tokens of %s: %w", row.Pool.Name, err)
		}
		reserves, err := sonnet.Marshal(row.Pool.Reserves)
		if err != nil {
			return fmt.Errorf("encode reserves of %s: %w", row.Pool.Name, err)
		}
		kind := row.Pool.Kind
		if kind == "" {
			kind = amm.KindConstantProduct
		}

		if _, err := stmt.ExecContext(ctx,
			row.Timestamp.UnixMilli(),
			row.Pool.Name,
			string(kind),
			string(tokens),
			string(reserves),
			row.Pool.Fee,
			row.Pool.Amplification,
		); err != nil {
			return fmt.Errorf("insert %s at %d: %w", row.Pool.Name, row.Timestamp.UnixMilli(), err)
		}
	}

	return tx.Commit()
}

// Timestamps lists every recorded instant in ascending order.
func (s *SnapshotDB) Timestamps(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT ts FROM pool_snapshots ORDER BY ts ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		out = append(out, time.UnixMilli(ms).UTC())
	}
	return out, rows.Err()
}

// PoolsAt returns the pool states recorded at ts, ordered by pool name.
func (s *SnapshotDB) PoolsAt(ctx context.Context, ts time.Time) ([]amm.Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool, kind, tokens, reserves, fee, amplification
		FROM pool_snapshots
		WHERE ts = ?
		ORDER BY pool ASC
	`, ts.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []amm.Config
	for rows.Next() {
		var (
			cfg              amm.Config
			kind             string
			tokens, reserves string
		)
		if err := rows.Scan(&cfg.Name, &kind, &tokens, &reserves, &cfg.Fee, &cfg.Amplification); err != nil {
			return nil, err
		}
		cfg.Kind = amm.Kind(kind)
		if err := sonnet.Unmarshal([]byte(tokens), &cfg.Tokens); err != nil {
			return nil, fmt.Errorf("decode tokens of %s: %w", cfg.Name, err)
		}
		if err := sonnet.Unmarshal([]byte(reserves), &cfg.Reserves); err != nil {
			return nil, fmt.Errorf("decode reserves of %s: %w", cfg.Name, err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// GetStats reports table counts for monitoring.
func (s *SnapshotDB) GetStats() (map[string]int64, error) {
	stats := make(map[string]int64)

	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM pool_snapshots").Scan(&count); err != nil {
		return nil, err
	}
	stats["snapshots"] = count

	if err := s.db.QueryRow("SELECT COUNT(DISTINCT ts) FROM pool_snapshots").Scan(&count); err != nil {
		return nil, err
	}
	stats["timestamps"] = count

	if err := s.db.QueryRow("SELECT COUNT(DISTINCT pool) FROM pool_snapshots").Scan(&count); err != nil {
		return nil, err
	}
	stats["pools"] = count

	return stats, nil
}
