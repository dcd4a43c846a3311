package search

import (
	"context"
	"strings"

	"crmoverlay/api/internal/store"
)

// ContactLookup is the remote store's substring search.
type ContactLookup interface {
	SearchContacts(ctx context.Context, operator, text string, limit int) ([]store.Contact, error)
}

// Postgres implements Searcher with ILIKE matching in the remote store.
type Postgres struct {
	lookup ContactLookup
}

func NewPostgres(lookup ContactLookup) *Postgres {
	return &Postgres{lookup: lookup}
}

func (p *Postgres) Name() string { return "postgres" }

// Healthy always returns true; a query error triggers the next fallback.
func (p *Postgres) Healthy() bool {
	return true
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	contacts, err := p.lookup.SearchContacts(ctx, q.Operator, q.Text, limit+q.Offset)
	if err != nil {
		return nil, 0, err
	}
	return page(filterLabel(contacts, q.LabelID), q)
}

// Memory implements Searcher over the in-process contact set, for when no
// remote store is configured.
type Memory struct {
	list func() []store.Contact
}

func NewMemory(list func() []store.Contact) *Memory {
	return &Memory{list: list}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Healthy() bool { return true }

func (m *Memory) Search(_ context.Context, q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}
	var matches []store.Contact
	for _, c := range m.list() {
		if strings.Contains(strings.ToLower(c.Name), needle) ||
			strings.Contains(c.PhoneValue(), needle) ||
			strings.Contains(strings.ToLower(c.Notes), needle) {
			matches = append(matches, c)
		}
	}
	return page(filterLabel(matches, q.LabelID), q)
}

func filterLabel(contacts []store.Contact, labelID string) []store.Contact {
	if labelID == "" {
		return contacts
	}
	out := contacts[:0:0]
	for _, c := range contacts {
		if c.HasTag(labelID) {
			out = append(out, c)
		}
	}
	return out
}

func page(contacts []store.Contact, q Query) ([]Result, int, error) {
	total := len(contacts)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	results := make([]Result, 0, end-start)
	for _, c := range contacts[start:end] {
		results = append(results, resultFor(c))
	}
	return results, total, nil
}
