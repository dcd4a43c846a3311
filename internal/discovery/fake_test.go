package discovery

import (
	"context"
	"sync/atomic"

	"crmoverlay/api/internal/host"
	"crmoverlay/api/internal/store"
)

type fakePage struct {
	structured    []host.Label
	structuredErr error
	objectGraph   []host.Label
	sample        []any
	markup        string
	computed      map[string]string
}

func (f *fakePage) StructuredLabels(context.Context) ([]host.Label, error) {
	return f.structured, f.structuredErr
}
func (f *fakePage) ObjectGraphLabels(context.Context) ([]host.Label, error) {
	return f.objectGraph, nil
}
func (f *fakePage) ModuleSample(_ context.Context, perSide int) ([]any, error) {
	return f.sample, nil
}
func (f *fakePage) Markup(context.Context) (string, error) { return f.markup, nil }
func (f *fakePage) ComputedColor(_ context.Context, token string) (string, error) {
	if c, ok := f.computed[token]; ok {
		return c, nil
	}
	return "", host.ErrUnavailable
}
func (f *fakePage) ClickLabel(context.Context, string) error      { return nil }
func (f *fakePage) MutationCount(context.Context) (int64, error) { return 0, nil }

type fakeStrategy struct {
	source     store.Source
	calls      atomic.Int32
	discoverFn func(ctx context.Context) ([]RawCandidate, error)
}

func (f *fakeStrategy) Source() store.Source { return f.source }

func (f *fakeStrategy) Discover(ctx context.Context) ([]RawCandidate, error) {
	f.calls.Add(1)
	if f.discoverFn == nil {
		return nil, nil
	}
	return f.discoverFn(ctx)
}

func returning(candidates ...RawCandidate) func(context.Context) ([]RawCandidate, error) {
	return func(context.Context) ([]RawCandidate, error) { return candidates, nil }
}
