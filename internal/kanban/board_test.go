package kanban

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"crmoverlay/api/internal/store"
)

type memContacts struct {
	mu       sync.Mutex
	byID     map[string]store.Contact
	updates  int
	updateFn func(c store.Contact) error
}

func newMemContacts(contacts ...store.Contact) *memContacts {
	m := &memContacts{byID: map[string]store.Contact{}}
	for _, c := range contacts {
		m.byID[c.ID] = c.Clone()
	}
	return m
}

var errMissing = errors.New("contact not found")

func (m *memContacts) Update(_ context.Context, id string, fn func(*store.Contact) bool) (store.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return store.Contact{}, errMissing
	}
	c = c.Clone()
	if !fn(&c) {
		return c, nil
	}
	m.updates++
	m.byID[id] = c
	if m.updateFn != nil {
		return c, m.updateFn(c)
	}
	return c, nil
}

func (m *memContacts) get(id string) store.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Clone()
}

var testLabels = []store.Label{
	{ID: "L1", Name: "Lead", Color: "#ff0000"},
	{ID: "L2", Name: "Paid", Color: "#00ff00"},
	{ID: "L3", Name: "Lost", Color: "#0000ff"},
}

func TestColumnsCoverageInvariant(t *testing.T) {
	contacts := []store.Contact{
		{ID: "a", Tags: []string{"L1", "L2"}},
		{ID: "b", Tags: []string{}},
		{ID: "c", Tags: []string{"L3"}},
		{ID: "d", Tags: []string{"L1", "L2", "L3"}},
	}
	columns := Columns(testLabels, contacts)

	if columns[0].ID != AllColumnID || columns[0].LabelID != "" {
		t.Fatalf("first column must be the all column, got %#v", columns[0])
	}
	var order []string
	for _, col := range columns[1:] {
		order = append(order, col.LabelID)
	}
	if diff := cmp.Diff([]string{"L1", "L2", "L3"}, order); diff != "" {
		t.Fatalf("label columns out of order (-want +got):\n%s", diff)
	}

	for _, c := range contacts {
		inAll, inLabels := 0, 0
		for i, col := range columns {
			for _, member := range col.Contacts {
				if member.ID != c.ID {
					continue
				}
				if i == 0 {
					inAll++
				} else {
					inLabels++
				}
			}
		}
		if inAll != 1 || inLabels != len(c.Tags) {
			t.Fatalf("contact %s: in all %d times, in %d label columns, has %d tags", c.ID, inAll, inLabels, len(c.Tags))
		}
	}
}

func TestColumnsWithoutLabels(t *testing.T) {
	columns := Columns(nil, []store.Contact{{ID: "a"}})
	if len(columns) != 1 || len(columns[0].Contacts) != 1 {
		t.Fatalf("expected only the all column, got %#v", columns)
	}
}

func TestMoveToLabelIsIdempotent(t *testing.T) {
	contacts := newMemContacts(store.Contact{ID: "c", Tags: []string{"L2"}})
	board := NewBoard(contacts, nil)
	var tagged []string
	board.OnTagged(func(_ context.Context, labelID string) { tagged = append(tagged, labelID) })

	for i := 0; i < 2; i++ {
		if _, err := board.MoveToLabel(context.Background(), "c", "L1"); err != nil {
			t.Fatalf("MoveToLabel failed: %v", err)
		}
	}
	if diff := cmp.Diff([]string{"L2", "L1"}, contacts.get("c").Tags); diff != "" {
		t.Fatalf("unexpected tags (-want +got):\n%s", diff)
	}
	if contacts.updates != 1 || len(tagged) != 1 {
		t.Fatalf("second move should be a no-op, updates=%d tagged=%v", contacts.updates, tagged)
	}
}

func TestMoveToUnlabeledScenario(t *testing.T) {
	contacts := newMemContacts(store.Contact{ID: "c", Tags: []string{"L1", "L2"}})
	board := NewBoard(contacts, nil)

	got, err := board.MoveToUnlabeled(context.Background(), "c")
	if err != nil {
		t.Fatalf("MoveToUnlabeled failed: %v", err)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Fatalf("expected empty tags, got %#v", got.Tags)
	}
	columns := Columns(testLabels, []store.Contact{contacts.get("c")})
	if len(columns[0].Contacts) != 1 {
		t.Fatal("contact must stay in the all column")
	}
	for _, col := range columns[1:] {
		if len(col.Contacts) != 0 {
			t.Fatalf("contact still in column %s", col.LabelID)
		}
	}
}

func TestMoveUnknownContact(t *testing.T) {
	board := NewBoard(newMemContacts(), nil)
	if _, err := board.MoveToLabel(context.Background(), "nope", "L1"); !errors.Is(err, errMissing) {
		t.Fatalf("expected missing contact error, got %v", err)
	}
	if _, err := board.RemoveAllTags(context.Background(), "nope"); !errors.Is(err, errMissing) {
		t.Fatalf("expected missing contact error, got %v", err)
	}
}

func TestMoveKeepsTagWhenPersistFails(t *testing.T) {
	contacts := newMemContacts(store.Contact{ID: "c"})
	contacts.updateFn = func(store.Contact) error { return errors.New("disk full") }
	board := NewBoard(contacts, nil)

	got, err := board.MoveToLabel(context.Background(), "c", "L1")
	if err != nil {
		t.Fatalf("persist failure should degrade, got %v", err)
	}
	if !got.HasTag("L1") {
		t.Fatalf("expected tag on returned contact, got %#v", got)
	}
}

func TestDragDrop(t *testing.T) {
	contacts := newMemContacts(store.Contact{ID: "c", Tags: []string{"L1"}})
	drag := NewDragState(NewBoard(contacts, nil))

	drag.PickUp("c")
	drag.Hover("L1")
	drag.Hover("L2")
	if drag.Highlighted() != "L2" {
		t.Fatalf("expected only L2 highlighted, got %q", drag.Highlighted())
	}
	if _, err := drag.Drop(context.Background(), "L2", testLabels); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if diff := cmp.Diff([]string{"L1", "L2"}, contacts.get("c").Tags); diff != "" {
		t.Fatalf("unexpected tags (-want +got):\n%s", diff)
	}

	drag.PickUp("c")
	drag.Hover(AllColumnID)
	if _, err := drag.Drop(context.Background(), AllColumnID, testLabels); err != nil {
		t.Fatalf("Drop on all failed: %v", err)
	}
	if len(contacts.get("c").Tags) != 0 {
		t.Fatalf("drop on all should clear tags, got %v", contacts.get("c").Tags)
	}
}

func TestDragDropAlwaysClearsState(t *testing.T) {
	drag := NewDragState(NewBoard(newMemContacts(store.Contact{ID: "c"}), nil))

	drag.PickUp("c")
	drag.Hover("ghost")
	if _, err := drag.Drop(context.Background(), "ghost", testLabels); !errors.Is(err, ErrInvalidDrop) {
		t.Fatalf("expected ErrInvalidDrop, got %v", err)
	}
	if drag.Highlighted() != "" || drag.Picked() != "" {
		t.Fatal("drag state must be cleared after an invalid drop")
	}

	if _, err := drag.Drop(context.Background(), "L1", testLabels); !errors.Is(err, ErrNothingPicked) {
		t.Fatalf("expected ErrNothingPicked, got %v", err)
	}
}
