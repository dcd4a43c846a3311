package host

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WatchMutations polls page.MutationCount and emits on the returned channel
// whenever the count moved since the last poll. Sends never block: a pending
// signal already covers any later change. The channel closes with ctx.
func WatchMutations(ctx context.Context, page Page, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := int64(-1)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			count, err := page.MutationCount(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Debug("mutation poll failed", zap.Error(err))
				}
				continue
			}
			if last >= 0 && count != last {
				select {
				case out <- struct{}{}:
				default:
				}
			}
			last = count
		}
	}()
	return out
}
