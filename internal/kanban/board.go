// Package kanban projects contacts into label columns and applies the moves
// a drag-and-drop board makes.
package kanban

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"crmoverlay/api/internal/store"
)

// AllColumnID is the synthetic column holding every contact.
const AllColumnID = "all"

var (
	ErrInvalidDrop   = errors.New("invalid drop target")
	ErrNothingPicked = errors.New("no contact picked up")
)

// Column is a derived board column. LabelID is "" for the all column.
type Column struct {
	ID       string          `json:"id"`
	LabelID  string          `json:"labelId"`
	Name     string          `json:"name"`
	Color    string          `json:"color,omitempty"`
	Contacts []store.Contact `json:"contacts"`
}

// Columns returns the all column followed by one column per label in label
// order. A contact appears once in all and once per tag it carries.
func Columns(labels []store.Label, contacts []store.Contact) []Column {
	columns := make([]Column, 0, len(labels)+1)
	all := Column{ID: AllColumnID, Name: "All contacts", Contacts: make([]store.Contact, 0, len(contacts))}
	for _, c := range contacts {
		all.Contacts = append(all.Contacts, c.Clone())
	}
	columns = append(columns, all)

	for _, label := range labels {
		col := Column{ID: label.ID, LabelID: label.ID, Name: label.Name, Color: label.Color, Contacts: []store.Contact{}}
		for _, c := range contacts {
			if c.HasTag(label.ID) {
				col.Contacts = append(col.Contacts, c.Clone())
			}
		}
		columns = append(columns, col)
	}
	return columns
}

// ContactStore is the contact set the board mutates.
type ContactStore interface {
	Update(ctx context.Context, id string, fn func(c *store.Contact) bool) (store.Contact, error)
}

// Board applies tag moves to contacts.
type Board struct {
	contacts ContactStore
	logger   *zap.Logger
	onTagged func(ctx context.Context, labelID string)
}

func NewBoard(contacts ContactStore, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{contacts: contacts, logger: logger}
}

// OnTagged registers fn to run after a label is newly assigned.
func (b *Board) OnTagged(fn func(ctx context.Context, labelID string)) {
	b.onTagged = fn
}

// MoveToLabel appends labelID to the contact's tags. A contact that already
// carries it is left untouched.
func (b *Board) MoveToLabel(ctx context.Context, contactID, labelID string) (store.Contact, error) {
	if labelID == "" || labelID == AllColumnID {
		return store.Contact{}, fmt.Errorf("move to label %q: %w", labelID, ErrInvalidDrop)
	}
	added := false
	c, err := b.contacts.Update(ctx, contactID, func(c *store.Contact) bool {
		if c.HasTag(labelID) {
			return false
		}
		c.Tags = append(c.Tags, labelID)
		added = true
		return true
	})
	if err != nil && !added {
		return store.Contact{}, fmt.Errorf("move contact %s to label %s: %w", contactID, labelID, err)
	}
	if !added {
		b.logger.Info("contact already has tag", zap.String("contact_id", contactID), zap.String("label_id", labelID))
		return c, nil
	}
	if err != nil {
		b.logger.Warn("tag assigned but not persisted", zap.String("contact_id", contactID), zap.Error(err))
	}
	if b.onTagged != nil {
		b.onTagged(ctx, labelID)
	}
	return c, nil
}

// MoveToUnlabeled clears every tag, which is what dropping on the all
// column means.
func (b *Board) MoveToUnlabeled(ctx context.Context, contactID string) (store.Contact, error) {
	c, err := b.contacts.Update(ctx, contactID, func(c *store.Contact) bool {
		if len(c.Tags) == 0 {
			return false
		}
		c.Tags = []string{}
		return true
	})
	if err != nil {
		if c.ID == "" {
			return store.Contact{}, fmt.Errorf("clear tags of contact %s: %w", contactID, err)
		}
		b.logger.Warn("tags cleared but not persisted", zap.String("contact_id", contactID), zap.Error(err))
	}
	return c, nil
}

// RemoveAllTags is MoveToUnlabeled.
func (b *Board) RemoveAllTags(ctx context.Context, contactID string) (store.Contact, error) {
	return b.MoveToUnlabeled(ctx, contactID)
}

// Drop resolves columnID against labels and applies the matching move.
func (b *Board) Drop(ctx context.Context, contactID, columnID string, labels []store.Label) (store.Contact, error) {
	if columnID == AllColumnID {
		return b.MoveToUnlabeled(ctx, contactID)
	}
	for _, label := range labels {
		if label.ID == columnID {
			return b.MoveToLabel(ctx, contactID, columnID)
		}
	}
	return store.Contact{}, fmt.Errorf("drop on column %q: %w", columnID, ErrInvalidDrop)
}
