package store

import (
	"strings"
	"time"
)

// Source records where a label came from.
type Source string

const (
	SourceAPI           Source = "api"
	SourceObjectGraph   Source = "object-graph"
	SourceModuleRuntime Source = "module-runtime"
	SourceMarkup        Source = "markup"
	SourceManual        Source = "manual"
)

// Label is a named, colored category. Color is always #rrggbb.
type Label struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	Source     Source    `json:"source"`
	OriginalID string    `json:"originalId,omitempty"`
	UsageCount int       `json:"usageCount"`
	CreatedAt  time.Time `json:"createdAt"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// NameKey is the case-insensitive deduplication key for label names.
func (l Label) NameKey() string {
	return strings.ToLower(strings.TrimSpace(l.Name))
}

// Contact is a CRM contact. Tags holds label ids in assignment order with no
// duplicates. Phone is nil unless it normalized to a canonical form.
type Contact struct {
	ID                string    `json:"id"`
	RemoteID          string    `json:"remoteId,omitempty"`
	Name              string    `json:"name"`
	Phone             *string   `json:"phone"`
	Tags              []string  `json:"tags"`
	Notes             string    `json:"notes"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	LastInteractionAt time.Time `json:"lastInteractionAt"`
}

func (c Contact) HasTag(labelID string) bool {
	for _, tag := range c.Tags {
		if tag == labelID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate tags and phone freely.
func (c Contact) Clone() Contact {
	out := c
	if c.Phone != nil {
		phone := *c.Phone
		out.Phone = &phone
	}
	out.Tags = append([]string(nil), c.Tags...)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out
}

// PhoneValue returns the phone or "" when unset.
func (c Contact) PhoneValue() string {
	if c.Phone == nil {
		return ""
	}
	return *c.Phone
}

// Notification is a change event published by the remote store.
type Notification struct {
	Table    string `json:"table"`
	Operator string `json:"operator"`
	Op       string `json:"op"`
}
