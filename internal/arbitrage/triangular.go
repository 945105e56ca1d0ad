package arbitrage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulkyeet/arb-engine/internal/amm"
)

type triangularOutcome struct {
	paths     []TriangularPath
	skipped   []SkippedCandidate
	evaluated int
}

// FindTriangularArbitrage runs the cycle tokens[0]->tokens[1]->tokens[2]->tokens[0]
// through every pool that quotes all three legs, once per configured trial
// amount. Paths crossing several pools are not searched.
func (d *Detector) FindTriangularArbitrage(ctx context.Context, tokens [3]string) (*TriangularResult, error) {
	a, b, c := tokens[0], tokens[1], tokens[2]
	if a == "" || b == "" || c == "" || a == b || b == c || a == c {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokens, tokens)
	}

	var pools []amm.Pool
	for _, p := range d.snapshot() {
		if p.HasPair(a, b) && p.HasPair(b, c) && p.HasPair(c, a) {
			pools = append(pools, p)
		}
	}

	cost, err := d.cost.ArbitrageCost(ctx, 3)
	if err != nil {
		return nil, fmt.Errorf("estimate cost: %w", err)
	}

	outcomes := make([]triangularOutcome, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for idx, p := range pools {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[idx] = d.evaluateCycle(gctx, p, tokens, cost)
			return nil
		})
	}
	waitErr := g.Wait()

	result := &TriangularResult{}
	for _, o := range outcomes {
		result.Evaluated += o.evaluated
		result.Paths = append(result.Paths, o.paths...)
		result.Skipped = append(result.Skipped, o.skipped...)
	}

	d.logger.Info("triangular scan done",
		zap.Strings("tokens", tokens[:]),
		zap.Int("pools", len(pools)),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("paths", len(result.Paths)),
		zap.Int("skipped", len(result.Skipped)),
	)

	if waitErr != nil {
		return result, fmt.Errorf("triangular scan: %w", waitErr)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("triangular scan: %w", err)
	}
	return result, nil
}

func (d *Detector) evaluateCycle(ctx context.Context, pool amm.Pool, tokens [3]string, cost float64) triangularOutcome {
	var out triangularOutcome
	legs := [3][2]string{
		{tokens[0], tokens[1]},
		{tokens[1], tokens[2]},
		{tokens[2], tokens[0]},
	}

	for _, start := range d.cfg.TrialAmounts {
		if ctx.Err() != nil {
			return out
		}
		out.evaluated++

		clone := pool.Clone()
		amount := start
		var err error
		for _, leg := range legs {
			amount, err = clone.ApplyTrade(amount, leg[0], leg[1])
			if err != nil {
				err = fmt.Errorf("%s->%s: %w", leg[0], leg[1], err)
				break
			}
		}
		if err != nil {
			out.skipped = append(out.skipped, *d.skip([]string{pool.Name()}, start, err))
			continue
		}

		profit := amount - start
		pct := profit / start * 100
		net := profit - cost
		if net <= d.cfg.MinProfitThreshold {
			continue
		}

		out.paths = append(out.paths, TriangularPath{
			ID:               uuid.NewString(),
			Pool:             pool.Name(),
			Path:             []string{tokens[0], tokens[1], tokens[2], tokens[0]},
			StartAmount:      start,
			EndAmount:        amount,
			Profit:           profit,
			ProfitPercentage: pct,
			Cost:             cost,
			NetProfit:        net,
			DiscoveredAt:     d.now(),
		})
	}
	return out
}
