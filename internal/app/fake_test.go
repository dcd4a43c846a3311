package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"crmoverlay/api/internal/contacts"
	"crmoverlay/api/internal/host"
	"crmoverlay/api/internal/labelcache"
	"crmoverlay/api/internal/store"
)

type fakeLocal struct {
	mu       sync.Mutex
	contacts map[string][]store.Contact
	labels   map[string][]store.Label
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{contacts: map[string][]store.Contact{}, labels: map[string][]store.Label{}}
}

func (f *fakeLocal) LoadContacts(_ context.Context, operator string) ([]store.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Contact(nil), f.contacts[operator]...), nil
}

func (f *fakeLocal) SaveContacts(_ context.Context, operator string, items []store.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts[operator] = append([]store.Contact(nil), items...)
	return nil
}

func (f *fakeLocal) LoadLabels(_ context.Context, operator string) ([]store.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Label(nil), f.labels[operator]...), nil
}

func (f *fakeLocal) SaveLabels(_ context.Context, operator string, labels []store.Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[operator] = append([]store.Label(nil), labels...)
	return nil
}

func (f *fakeLocal) Close() error { return nil }

type fakeRemote struct {
	pingFn   func(context.Context) error
	listFn   func(context.Context, string) ([]store.Label, error)
	upserted []store.Label
	deleted  []string
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeRemote) ListLabels(ctx context.Context, operator string) ([]store.Label, error) {
	if f.listFn != nil {
		return f.listFn(ctx, operator)
	}
	return nil, nil
}

func (f *fakeRemote) UpsertLabel(_ context.Context, _ string, label store.Label) error {
	f.upserted = append(f.upserted, label)
	return nil
}

func (f *fakeRemote) DeleteLabel(_ context.Context, _ string, labelID string) error {
	f.deleted = append(f.deleted, labelID)
	return nil
}

type fakePage struct {
	clickFn    func(context.Context, string) error
	mutationFn func(context.Context) (int64, error)
	clicked    []string
}

func (f *fakePage) StructuredLabels(context.Context) ([]host.Label, error) { return nil, nil }

func (f *fakePage) ObjectGraphLabels(context.Context) ([]host.Label, error) { return nil, nil }

func (f *fakePage) ModuleSample(context.Context, int) ([]any, error) { return nil, nil }

func (f *fakePage) Markup(context.Context) (string, error) { return "", nil }

func (f *fakePage) ComputedColor(context.Context, string) (string, error) {
	return "", errors.New("not rendered")
}

func (f *fakePage) ClickLabel(ctx context.Context, name string) error {
	f.clicked = append(f.clicked, name)
	if f.clickFn != nil {
		return f.clickFn(ctx, name)
	}
	return nil
}

func (f *fakePage) MutationCount(ctx context.Context) (int64, error) {
	if f.mutationFn != nil {
		return f.mutationFn(ctx)
	}
	return 0, nil
}

type staticDiscoverer struct {
	labels []store.Label
}

func (d staticDiscoverer) Discover(context.Context) []store.Label {
	return append([]store.Label(nil), d.labels...)
}

type testEnv struct {
	service  *Service
	local    *fakeLocal
	contacts *contacts.Store
}

func newTestEnv(t *testing.T, discovered []store.Label, deps Deps) testEnv {
	t.Helper()
	ctx := context.Background()
	local := newFakeLocal()
	deps.Operator = "op1"
	deps.Local = local
	deps.Labels = labelcache.New(staticDiscoverer{labels: discovered}, 0, nil, nil)
	deps.Contacts = contacts.Open(ctx, local, "op1", nil)
	return testEnv{service: NewService(ctx, deps), local: local, contacts: deps.Contacts}
}

func discoveredLabels() []store.Label {
	return []store.Label{
		{ID: "lbl_vip", Name: "VIP", Color: "#ff0000", Source: store.SourceModuleRuntime},
		{ID: "lbl_new-lead", Name: "New lead", Color: "#00a884", Source: store.SourceModuleRuntime},
	}
}
