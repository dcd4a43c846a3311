package host

import (
	"context"
	"sync/atomic"
)

type fakePage struct {
	mutations atomic.Int64
	failing   atomic.Bool
}

func (f *fakePage) StructuredLabels(context.Context) ([]Label, error)  { return nil, nil }
func (f *fakePage) ObjectGraphLabels(context.Context) ([]Label, error) { return nil, nil }
func (f *fakePage) ModuleSample(context.Context, int) ([]any, error)   { return nil, nil }
func (f *fakePage) Markup(context.Context) (string, error)             { return "", nil }
func (f *fakePage) ComputedColor(context.Context, string) (string, error) {
	return "", nil
}
func (f *fakePage) ClickLabel(context.Context, string) error { return ErrLabelNotFound }
func (f *fakePage) MutationCount(context.Context) (int64, error) {
	if f.failing.Load() {
		return 0, ErrUnavailable
	}
	return f.mutations.Load(), nil
}
