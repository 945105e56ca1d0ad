package feed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Poll reads src immediately and then every interval until ctx is done.
// Both channels are closed when polling stops. Failed reads are reported on
// the error channel and polling carries on; an error is dropped if nobody
// is receiving it. A non-positive interval is rejected before polling starts.
func Poll(ctx context.Context, src Source, interval time.Duration, logger *zap.Logger) (<-chan Snapshot, <-chan error, error) {
	if interval <= 0 {
		return nil, nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	snaps := make(chan Snapshot)
	errs := make(chan error, 1)

	go func() {
		defer close(snaps)
		defer close(errs)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			snap, err := src.Snapshot(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				logger.Warn("snapshot failed", zap.Error(err))
				select {
				case errs <- err:
				default:
				}
			default:
				select {
				case snaps <- snap:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return snaps, errs, nil
}
