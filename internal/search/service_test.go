package search

import (
	"context"
	"errors"
	"testing"

	"crmoverlay/api/internal/store"
)

type fakeSearcher struct {
	name     string
	healthy  bool
	calls    int
	searchFn func(ctx context.Context, q Query) ([]Result, int, error)
}

func (f *fakeSearcher) Name() string  { return f.name }
func (f *fakeSearcher) Healthy() bool { return f.healthy }
func (f *fakeSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	f.calls++
	return f.searchFn(ctx, q)
}

type fakeLookup struct {
	searchFn func(ctx context.Context, operator, text string, limit int) ([]store.Contact, error)
}

func (f *fakeLookup) SearchContacts(ctx context.Context, operator, text string, limit int) ([]store.Contact, error) {
	return f.searchFn(ctx, operator, text, limit)
}

func phone(s string) *string { return &s }

func TestServiceFallsBackInOrder(t *testing.T) {
	broken := &fakeSearcher{name: "broken", healthy: true, searchFn: func(context.Context, Query) ([]Result, int, error) {
		return nil, 0, errors.New("connection reset")
	}}
	down := &fakeSearcher{name: "down", healthy: false}
	good := &fakeSearcher{name: "good", healthy: true, searchFn: func(context.Context, Query) ([]Result, int, error) {
		return []Result{{ID: "ct_1", Name: "Ana"}}, 1, nil
	}}

	resp := NewService(nil, nil, broken, down, good).Search(context.Background(), Query{Text: "ana"})
	if resp.Backend != "good" || resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected response %#v", resp)
	}
	if broken.calls != 1 || down.calls != 0 {
		t.Fatalf("unexpected calls broken=%d down=%d", broken.calls, down.calls)
	}
}

func TestServiceAllFailedReturnsEmpty(t *testing.T) {
	broken := &fakeSearcher{name: "broken", healthy: true, searchFn: func(context.Context, Query) ([]Result, int, error) {
		return nil, 0, errors.New("boom")
	}}
	resp := NewService(nil, nil, broken).Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty response, got %#v", resp)
	}
}

func TestMemorySearch(t *testing.T) {
	contacts := []store.Contact{
		{ID: "1", Name: "Ana Souza", Tags: []string{"vip"}},
		{ID: "2", Name: "Bruno", Phone: phone("+5511988887777"), Notes: "asked about ana's order"},
		{ID: "3", Name: "Carla"},
	}
	m := NewMemory(func() []store.Contact { return contacts })

	results, total, err := m.Search(context.Background(), Query{Text: "ANA"})
	if err != nil || total != 2 || len(results) != 2 {
		t.Fatalf("expected two matches, got %#v total=%d err=%v", results, total, err)
	}

	results, _, _ = m.Search(context.Background(), Query{Text: "ana", LabelID: "vip"})
	if len(results) != 1 || results[0].ID != "1" {
		t.Fatalf("label filter not applied: %#v", results)
	}

	results, _, _ = m.Search(context.Background(), Query{Text: "98888"})
	if len(results) != 1 || results[0].Phone != "+5511988887777" {
		t.Fatalf("phone match failed: %#v", results)
	}

	results, total, _ = m.Search(context.Background(), Query{Text: "a", Limit: 1, Offset: 1})
	if len(results) != 1 || total != 3 || results[0].ID != "2" {
		t.Fatalf("paging failed: %#v total=%d", results, total)
	}
}

func TestPostgresSearchPassesOperator(t *testing.T) {
	var gotOperator, gotText string
	p := NewPostgres(&fakeLookup{searchFn: func(_ context.Context, operator, text string, limit int) ([]store.Contact, error) {
		gotOperator, gotText = operator, text
		return []store.Contact{{ID: "ct_1", Name: "Ana"}}, nil
	}})

	results, total, err := p.Search(context.Background(), Query{Text: "an", Operator: "op-1"})
	if err != nil || total != 1 || results[0].Tags == nil {
		t.Fatalf("unexpected results %#v err=%v", results, err)
	}
	if gotOperator != "op-1" || gotText != "an" {
		t.Fatalf("lookup got operator=%q text=%q", gotOperator, gotText)
	}

	results, _, _ = p.Search(context.Background(), Query{Text: "  "})
	if results != nil {
		t.Fatal("blank query should not hit the store")
	}
}

func TestRecordForNamespacesDocumentID(t *testing.T) {
	r := RecordFor("ops@example.com", store.Contact{ID: "ct_1", Name: "Ana"})
	if r.ID != "ops-example-com__ct_1" || r.Operator != "ops@example.com" || r.Tags == nil {
		t.Fatalf("unexpected record %#v", r)
	}
}
