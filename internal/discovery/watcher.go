package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDebounce = time.Second
	DefaultInterval = 30 * time.Second
)

// Watcher re-runs refresh after a burst of host mutations settles and on a
// fixed interval.
type Watcher struct {
	refresh  func(context.Context)
	debounce time.Duration
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// Watch starts the loop. mutations may be nil, in which case only the
// periodic refresh runs.
func Watch(ctx context.Context, mutations <-chan struct{}, debounce, interval time.Duration, refresh func(context.Context), logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		refresh:  refresh,
		debounce: debounce,
		interval: interval,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.loop(ctx, mutations)
	return w
}

// Close stops the loop and waits for an in-progress refresh to return.
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context, mutations <-chan struct{}) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	var settled <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-mutations:
			if !ok {
				mutations = nil
				continue
			}
			timer.Reset(w.debounce)
			settled = timer.C
		case <-settled:
			settled = nil
			w.logger.Debug("host mutations settled, rediscovering labels")
			w.refresh(ctx)
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}
