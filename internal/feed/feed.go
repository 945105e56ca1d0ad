// Package feed supplies pool reserve snapshots to the detector.
package feed

import (
	"context"
	"time"
)

// Snapshot is the reserve state of a set of pools, keyed by pool name.
type Snapshot struct {
	Timestamp time.Time
	Block     uint64
	Reserves  map[string][]float64
}

type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Static serves the same reserves on every call, stamped with the current time.
type Static struct {
	reserves map[string][]float64
	now      func() time.Time
}

func NewStatic(reserves map[string][]float64) *Static {
	return &Static{reserves: copyReserves(reserves), now: time.Now}
}

func (s *Static) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Timestamp: s.now(), Reserves: copyReserves(s.reserves)}, nil
}

func copyReserves(in map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(in))
	for k, v := range in {
		out[k] = append([]float64(nil), v...)
	}
	return out
}
