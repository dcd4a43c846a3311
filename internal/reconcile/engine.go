package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"crmoverlay/api/internal/metrics"
	"crmoverlay/api/internal/store"
	"crmoverlay/api/internal/util"
)

// ErrCycleInFlight is returned when a cycle is requested while one runs.
// The request is dropped, not queued.
var ErrCycleInFlight = errors.New("reconciliation cycle already in flight")

// DefaultInterval is the periodic cycle interval.
const DefaultInterval = time.Minute

// Local is the contact set the merge is written into.
type Local interface {
	Apply(ctx context.Context, fn func(local []store.Contact) []store.Contact) ([]store.Contact, error)
}

// Remote is the authoritative relational store.
type Remote interface {
	ListContacts(ctx context.Context, operator string, filter store.ContactFilter) ([]store.Contact, error)
	InsertContact(ctx context.Context, operator string, contact store.Contact) (string, error)
	UpdateContact(ctx context.Context, operator string, contact store.Contact) error
}

// Invalidator drops cached labels when the remote label table changes.
type Invalidator interface {
	Invalidate()
}

// Result summarizes one cycle.
type Result struct {
	Merged       int
	Pushed       int
	PushFailures int
	RemoteOK     bool
	Decisions    []Decision
}

// Engine runs read-merge-write cycles one at a time.
type Engine struct {
	local    Local
	remote   Remote
	operator string
	logger   *zap.Logger
	metrics  *metrics.Metrics

	inFlight atomic.Bool
	trigger  chan struct{}

	mu      sync.Mutex
	onCycle []func(context.Context, Result)
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
}

// NewEngine builds an engine. remote may be nil, in which case cycles only
// normalize and rewrite the local copy.
func NewEngine(local Local, remote Remote, operator string, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		local:    local,
		remote:   remote,
		operator: operator,
		logger:   logger,
		metrics:  m,
		trigger:  make(chan struct{}, 1),
	}
}

// OnCycle registers fn to run after every completed cycle.
func (e *Engine) OnCycle(fn func(context.Context, Result)) {
	e.mu.Lock()
	e.onCycle = append(e.onCycle, fn)
	e.mu.Unlock()
}

// LastRun reports when the last cycle completed.
func (e *Engine) LastRun() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun
}

// Run executes one cycle. Storage failures degrade the cycle rather than
// failing it; the only error is ErrCycleInFlight.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.metrics.ReconcileCycle("dropped", 0)
		e.logger.Debug("reconciliation already running, trigger dropped")
		return Result{}, ErrCycleInFlight
	}
	defer e.inFlight.Store(false)

	var result Result
	var remote []store.Contact
	if e.remote != nil {
		fetched, err := e.remote.ListContacts(ctx, e.operator, store.ContactFilter{})
		if err != nil {
			e.logger.Warn("fetch remote contacts failed, keeping local copy", zap.Error(err))
		} else {
			remote = fetched
			result.RemoteOK = true
		}
	}

	push := make(map[string]struct{})
	merged, err := e.local.Apply(ctx, func(local []store.Contact) []store.Contact {
		out, decisions := Merge(local, remote)
		for i := range out {
			if out[i].ID == "" {
				out[i].ID = util.NewID("ct")
				push[out[i].ID] = struct{}{}
			}
		}
		for _, d := range decisions {
			if d.LocalWon() && d.ID != "" {
				push[d.ID] = struct{}{}
			}
		}
		result.Decisions = decisions
		return out
	})
	if err != nil {
		e.logger.Warn("write merged contacts locally failed", zap.Error(err))
	}
	result.Merged = len(merged)

	if result.RemoteOK {
		e.push(ctx, merged, push, &result)
	}

	outcome := "ok"
	if (e.remote != nil && !result.RemoteOK) || result.PushFailures > 0 {
		outcome = "degraded"
	}
	e.metrics.ReconcileCycle(outcome, result.Merged)
	e.logger.Info("reconciliation cycle finished",
		zap.String("outcome", outcome),
		zap.Int("merged", result.Merged),
		zap.Int("pushed", result.Pushed),
		zap.Int("push_failures", result.PushFailures))

	e.mu.Lock()
	e.lastRun = time.Now()
	hooks := append([]func(context.Context, Result){}, e.onCycle...)
	e.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx, result)
	}
	return result, nil
}

// push writes locally-won records back to remote and records any remote ids
// the remote side assigned.
func (e *Engine) push(ctx context.Context, merged []store.Contact, ids map[string]struct{}, result *Result) {
	assigned := make(map[string]string)
	for _, c := range merged {
		if _, ok := ids[c.ID]; !ok {
			continue
		}
		remoteID, err := e.pushOne(ctx, c)
		if err != nil {
			result.PushFailures++
			e.metrics.RemotePushError()
			e.logger.Warn("push contact failed", zap.String("contact_id", c.ID), zap.Error(err))
			continue
		}
		result.Pushed++
		if remoteID != c.RemoteID {
			assigned[c.ID] = remoteID
		}
	}
	if len(assigned) == 0 {
		return
	}
	if _, err := e.local.Apply(ctx, func(local []store.Contact) []store.Contact {
		for i := range local {
			if remoteID, ok := assigned[local[i].ID]; ok {
				local[i].RemoteID = remoteID
			}
		}
		return local
	}); err != nil {
		e.logger.Warn("record remote ids locally failed", zap.Error(err))
	}
}

func (e *Engine) pushOne(ctx context.Context, c store.Contact) (string, error) {
	if c.RemoteID != "" {
		err := e.remote.UpdateContact(ctx, e.operator, c)
		if err == nil {
			return c.RemoteID, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}
	return e.remote.InsertContact(ctx, e.operator, c)
}

// Trigger requests a cycle from the running loop, for example after login.
// Requests made while one is pending coalesce.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Start runs a cycle immediately, then on every interval tick, Trigger call
// and remote change notification for this operator. A change to the labels
// table also invalidates labels.
func (e *Engine) Start(ctx context.Context, interval time.Duration, changes <-chan store.Notification, labels Invalidator) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		e.runLogged(ctx, "startup")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.runLogged(ctx, "interval")
			case <-e.trigger:
				e.runLogged(ctx, "trigger")
			case n, ok := <-changes:
				if !ok {
					changes = nil
					continue
				}
				if n.Operator != "" && n.Operator != e.operator {
					continue
				}
				if n.Table == "labels" && labels != nil {
					labels.Invalidate()
				}
				e.runLogged(ctx, "notification")
			}
		}
	}()
}

// Stop ends the loop started by Start and waits for it.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) runLogged(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := e.Run(ctx); err != nil {
		e.logger.Debug("reconciliation skipped", zap.String("reason", reason), zap.Error(err))
	}
}
