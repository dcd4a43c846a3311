package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"crmoverlay/api/internal/color"
	"crmoverlay/api/internal/metrics"
	"crmoverlay/api/internal/store"
)

// Orchestrator runs strategies in priority order and returns the first
// non-empty normalized result. Concurrent callers share one pass.
type Orchestrator struct {
	strategies []Strategy
	resolver   color.Resolver
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	group      singleflight.Group
}

// Result is one discovery pass.
type Result struct {
	Labels   []store.Label
	Source   store.Source
	Duration time.Duration
}

func NewOrchestrator(strategies []Strategy, resolver color.Resolver, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	ordered := append([]Strategy(nil), strategies...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priority(ordered[i].Source()) < priority(ordered[j].Source())
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		strategies: ordered,
		resolver:   resolver,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Discover never fails: an unreachable host or a strategy that panics simply
// falls through to the next strategy, and exhausting all of them yields an
// empty slice.
func (o *Orchestrator) Discover(ctx context.Context) []store.Label {
	return o.Pass(ctx).Labels
}

// Pass is Discover with the winning source and timing attached.
func (o *Orchestrator) Pass(ctx context.Context) Result {
	detached := context.WithoutCancel(ctx)
	v, _, _ := o.group.Do("discover", func() (any, error) {
		return o.run(detached), nil
	})
	result := v.(Result)
	labels := make([]store.Label, len(result.Labels))
	copy(labels, result.Labels)
	result.Labels = labels
	return result
}

func (o *Orchestrator) run(ctx context.Context) Result {
	start := o.now()
	for _, strategy := range o.strategies {
		candidates, err := o.try(ctx, strategy)
		if err != nil {
			o.metrics.StrategyFailure(string(strategy.Source()))
			o.logger.Debug("discovery strategy failed", zap.String("strategy", string(strategy.Source())), zap.Error(err))
			continue
		}
		labels := o.normalize(ctx, candidates, strategy.Source())
		if len(labels) == 0 {
			continue
		}
		elapsed := o.now().Sub(start)
		o.metrics.DiscoveryPass(string(strategy.Source()), elapsed.Seconds())
		o.logger.Debug("labels discovered",
			zap.String("strategy", string(strategy.Source())),
			zap.Int("count", len(labels)),
			zap.Duration("elapsed", elapsed))
		return Result{Labels: labels, Source: strategy.Source(), Duration: elapsed}
	}
	elapsed := o.now().Sub(start)
	o.metrics.DiscoveryPass("", elapsed.Seconds())
	return Result{Labels: []store.Label{}, Duration: elapsed}
}

func (o *Orchestrator) try(ctx context.Context, strategy Strategy) (candidates []RawCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", strategy.Source(), r)
		}
	}()
	return strategy.Discover(ctx)
}

// normalize cleans candidates and drops implausible ones and duplicates by
// case-insensitive name, keeping the first occurrence.
func (o *Orchestrator) normalize(ctx context.Context, candidates []RawCandidate, source store.Source) []store.Label {
	now := o.now()
	seen := make(map[string]struct{}, len(candidates))
	labels := make([]store.Label, 0, len(candidates))
	for _, candidate := range candidates {
		label, ok := normalizeCandidate(ctx, candidate, source, o.resolver, now)
		if !ok {
			continue
		}
		if _, dup := seen[label.NameKey()]; dup {
			continue
		}
		seen[label.NameKey()] = struct{}{}
		labels = append(labels, label)
	}
	return labels
}
