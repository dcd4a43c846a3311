package contacts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crmoverlay/api/internal/store"
)

type fakeLocal struct {
	mu       sync.Mutex
	contacts map[string][]store.Contact
	loadErr  error
	saveErr  error
	saves    int
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{contacts: map[string][]store.Contact{}}
}

func (f *fakeLocal) LoadContacts(_ context.Context, operator string) ([]store.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return []store.Contact{}, f.loadErr
	}
	return append([]store.Contact(nil), f.contacts[operator]...), nil
}

func (f *fakeLocal) SaveContacts(_ context.Context, operator string, contacts []store.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.contacts[operator] = append([]store.Contact(nil), contacts...)
	return nil
}

func (f *fakeLocal) LoadLabels(context.Context, string) ([]store.Label, error) { return nil, nil }
func (f *fakeLocal) SaveLabels(context.Context, string, []store.Label) error   { return nil }
func (f *fakeLocal) Close() error                                              { return nil }

func TestOpenStartsEmptyWhenLoadFails(t *testing.T) {
	local := newFakeLocal()
	local.loadErr = errors.New("quota exceeded")

	s := Open(context.Background(), local, "op", nil)
	if got := s.List(); len(got) != 0 {
		t.Fatalf("expected empty store, got %#v", got)
	}
}

func TestPutAssignsIDAndPersists(t *testing.T) {
	local := newFakeLocal()
	s := Open(context.Background(), local, "op", nil)

	c, err := s.Put(context.Background(), store.Contact{Name: "Ana", Tags: []string{"a", "a", "b"}})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Fatalf("expected id and timestamps, got %#v", c)
	}
	if len(c.Tags) != 2 {
		t.Fatalf("expected deduped tags, got %v", c.Tags)
	}
	if len(local.contacts["op"]) != 1 {
		t.Fatal("expected contact to be persisted")
	}
}

func TestPutKeepsCreatedAtAndRemoteIDOnReplace(t *testing.T) {
	s := Open(context.Background(), newFakeLocal(), "op", nil)
	first, _ := s.Put(context.Background(), store.Contact{ID: "ct_1", Name: "Ana", RemoteID: "r-1"})

	second, err := s.Put(context.Background(), store.Contact{ID: "ct_1", Name: "Ana Maria", CreatedAt: time.Unix(0, 0)})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) || second.RemoteID != "r-1" || second.Name != "Ana Maria" {
		t.Fatalf("unexpected replace result %#v", second)
	}
	if len(s.List()) != 1 {
		t.Fatal("replace should not append")
	}
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	local := newFakeLocal()
	local.saveErr = errors.New("disk full")
	s := Open(context.Background(), local, "op", nil)

	_, err := s.Put(context.Background(), store.Contact{Name: "Ana"})
	if err == nil {
		t.Fatal("expected persist error")
	}
	if len(s.List()) != 1 {
		t.Fatal("in-memory state should keep the write")
	}
}

func TestUpdateUnchangedDoesNotPersist(t *testing.T) {
	local := newFakeLocal()
	s := Open(context.Background(), local, "op", nil)
	c, _ := s.Put(context.Background(), store.Contact{Name: "Ana"})
	saves := local.saves

	got, err := s.Update(context.Background(), c.ID, func(*store.Contact) bool { return false })
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if local.saves != saves || !got.UpdatedAt.Equal(c.UpdatedAt) {
		t.Fatal("no-op update should not persist or bump updatedAt")
	}

	if _, err := s.Update(context.Background(), "missing", func(*store.Contact) bool { return true }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyReadsMemoryNotBackend(t *testing.T) {
	local := newFakeLocal()
	s := Open(context.Background(), local, "op", nil)
	_, _ = s.Put(context.Background(), store.Contact{ID: "ct_1", Name: "Ana"})
	local.loadErr = errors.New("permission denied")

	var seen []store.Contact
	merged, err := s.Apply(context.Background(), func(current []store.Contact) []store.Contact {
		seen = current
		return append(current, store.Contact{ID: "ct_2", Name: "Bea"})
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(seen) != 1 || seen[0].ID != "ct_1" {
		t.Fatalf("expected the in-memory set, saw %#v", seen)
	}
	if len(merged) != 2 || len(s.List()) != 2 {
		t.Fatalf("expected merged set in memory, got %#v", merged)
	}
}

func TestApplyKeepsEditsWhoseSaveFailed(t *testing.T) {
	local := newFakeLocal()
	s := Open(context.Background(), local, "op", nil)
	_, _ = s.Put(context.Background(), store.Contact{ID: "ct_1", Name: "Ana"})

	local.saveErr = errors.New("disk full")
	if _, err := s.Update(context.Background(), "ct_1", func(c *store.Contact) bool {
		c.Tags = append(c.Tags, "lbl_vip")
		return true
	}); err == nil {
		t.Fatal("expected persist error")
	}

	local.saveErr = nil
	merged, err := s.Apply(context.Background(), func(current []store.Contact) []store.Contact { return current })
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(merged) != 1 || !merged[0].HasTag("lbl_vip") {
		t.Fatalf("tag assignment lost by Apply: %#v", merged)
	}
	if saved := local.contacts["op"]; len(saved) != 1 || !saved[0].HasTag("lbl_vip") {
		t.Fatalf("expected Apply to persist the in-memory edit, got %#v", saved)
	}
}

func TestPruneTag(t *testing.T) {
	s := Open(context.Background(), newFakeLocal(), "op", nil)
	_, _ = s.Put(context.Background(), store.Contact{ID: "a", Name: "A", Tags: []string{"l1", "l2"}})
	_, _ = s.Put(context.Background(), store.Contact{ID: "b", Name: "B", Tags: []string{"l2"}})
	_, _ = s.Put(context.Background(), store.Contact{ID: "c", Name: "C"})

	n, err := s.PruneTag(context.Background(), "l2")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 pruned, got %d err=%v", n, err)
	}
	if got := s.ListTagged("l2"); len(got) != 0 {
		t.Fatalf("l2 still present on %#v", got)
	}
	if got := s.ListTagged("l1"); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("l1 should be untouched, got %#v", got)
	}
}

func TestSortByRecency(t *testing.T) {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	contacts := []store.Contact{
		{ID: "old", LastInteractionAt: base},
		{ID: "b", LastInteractionAt: base.Add(time.Hour), UpdatedAt: base},
		{ID: "a", LastInteractionAt: base.Add(time.Hour), UpdatedAt: base},
		{ID: "new", LastInteractionAt: base.Add(2 * time.Hour)},
		{ID: "newer-update", LastInteractionAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Minute)},
	}
	SortByRecency(contacts)

	want := []string{"new", "newer-update", "a", "b", "old"}
	for i, id := range want {
		if contacts[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, contacts[i].ID)
		}
	}
}
