package search

import (
	"context"

	"crmoverlay/api/internal/store"
)

// Result is a single contact hit returned to the caller.
type Result struct {
	ID       string   `json:"id"`
	RemoteID string   `json:"remoteId,omitempty"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone,omitempty"`
	Snippet  string   `json:"snippet"`
	Tags     []string `json:"tags"`
}

// Query describes a search request.
type Query struct {
	Text     string
	Operator string
	LabelID  string // empty = any label
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a contact search.
type Searcher interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ContactRecord is the data we index for a contact.
type ContactRecord struct {
	ID       string   `json:"id"`
	Operator string   `json:"operator"`
	RemoteID string   `json:"remoteId"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Notes    string   `json:"notes"`
	Tags     []string `json:"tags"`
}

// RecordFor builds the index record for c. The index key combines operator
// and contact id so operators never overwrite each other.
func RecordFor(operator string, c store.Contact) ContactRecord {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return ContactRecord{
		ID:       documentID(operator, c.ID),
		Operator: operator,
		RemoteID: c.RemoteID,
		Name:     c.Name,
		Phone:    c.PhoneValue(),
		Notes:    c.Notes,
		Tags:     tags,
	}
}

func resultFor(c store.Contact) Result {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return Result{
		ID:       c.ID,
		RemoteID: c.RemoteID,
		Name:     c.Name,
		Phone:    c.PhoneValue(),
		Snippet:  snippet(c.Notes),
		Tags:     tags,
	}
}

func snippet(notes string) string {
	runes := []rune(notes)
	if len(runes) <= 120 {
		return notes
	}
	return string(runes[:120]) + "…"
}
