// Package contacts holds the in-process contact set that the board reads and
// the reconciliation engine rewrites, backed by the local store.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"crmoverlay/api/internal/localstore"
	"crmoverlay/api/internal/store"
	"crmoverlay/api/internal/util"
)

var ErrNotFound = errors.New("contact not found")

// Store serializes every write to the contact set. Persistence failures are
// logged and returned, but the in-memory state still reflects the write.
type Store struct {
	local    localstore.Store
	operator string
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	contacts []store.Contact
}

// Open loads the operator's contacts. A load failure starts from an empty set.
func Open(ctx context.Context, local localstore.Store, operator string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{local: local, operator: operator, logger: logger, now: time.Now}
	loaded, err := local.LoadContacts(ctx, operator)
	if err != nil {
		logger.Warn("load local contacts failed, starting empty", zap.Error(err))
		loaded = nil
	}
	s.contacts = normalizeAll(loaded)
	return s
}

func (s *Store) Operator() string {
	return s.operator
}

// List returns copies of every contact in stored order.
func (s *Store) List() []store.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.contacts)
}

// ListTagged returns contacts carrying labelID, or all when labelID is "".
func (s *Store) ListTagged(labelID string) []store.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		if labelID == "" || c.HasTag(labelID) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (s *Store) Get(id string) (store.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.contacts[i].Clone(), nil
	}
	return store.Contact{}, ErrNotFound
}

// Put inserts or replaces c by id, assigning an id and timestamps to new
// contacts.
func (s *Store) Put(ctx context.Context, c store.Contact) (store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	c = c.Clone()
	c.Tags = dedupe(c.Tags)
	if c.ID == "" {
		c.ID = util.NewID("ct")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.LastInteractionAt.IsZero() {
		c.LastInteractionAt = now
	}
	if i := s.index(c.ID); i >= 0 {
		c.CreatedAt = s.contacts[i].CreatedAt
		if c.RemoteID == "" {
			c.RemoteID = s.contacts[i].RemoteID
		}
		s.contacts[i] = c
	} else {
		s.contacts = append(s.contacts, c)
	}
	return c.Clone(), s.persist(ctx)
}

// Update applies fn to the contact with id under the write lock. fn returning
// false means nothing changed, so nothing is persisted.
func (s *Store) Update(ctx context.Context, id string, fn func(c *store.Contact) bool) (store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return store.Contact{}, ErrNotFound
	}
	c := s.contacts[i].Clone()
	if !fn(&c) {
		return c, nil
	}
	c.Tags = dedupe(c.Tags)
	c.UpdatedAt = s.stamp()
	s.contacts[i] = c
	return c.Clone(), s.persist(ctx)
}

// Apply replaces the whole set with fn(current) as one write. The in-memory
// set is authoritative, so edits whose save failed still reach fn. It is how
// reconciliation swaps in a merged set without interleaving with board edits.
func (s *Store) Apply(ctx context.Context, fn func(local []store.Contact) []store.Contact) ([]store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts = normalizeAll(fn(cloneAll(s.contacts)))
	return cloneAll(s.contacts), s.persist(ctx)
}

// PruneTag removes labelID from every contact and reports how many changed.
func (s *Store) PruneTag(ctx context.Context, labelID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	now := s.stamp()
	for i := range s.contacts {
		if !s.contacts[i].HasTag(labelID) {
			continue
		}
		kept := make([]string, 0, len(s.contacts[i].Tags)-1)
		for _, tag := range s.contacts[i].Tags {
			if tag != labelID {
				kept = append(kept, tag)
			}
		}
		s.contacts[i].Tags = kept
		s.contacts[i].UpdatedAt = now
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, s.persist(ctx)
}

// SortByRecency orders contacts by LastInteractionAt, then UpdatedAt, newest
// first, with id as the final tiebreak.
func SortByRecency(contacts []store.Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i], contacts[j]
		if !a.LastInteractionAt.Equal(b.LastInteractionAt) {
			return a.LastInteractionAt.After(b.LastInteractionAt)
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// stamp is the current time at the remote store's precision.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) index(id string) int {
	for i := range s.contacts {
		if s.contacts[i].ID == id {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (s *Store) persist(ctx context.Context) error {
	if err := s.local.SaveContacts(ctx, s.operator, s.contacts); err != nil {
		s.logger.Warn("save local contacts failed", zap.Error(err))
		return fmt.Errorf("persist contacts: %w", err)
	}
	return nil
}

func normalizeAll(contacts []store.Contact) []store.Contact {
	out := make([]store.Contact, 0, len(contacts))
	for _, c := range contacts {
		c = c.Clone()
		c.Tags = dedupe(c.Tags)
		out = append(out, c)
	}
	return out
}

func cloneAll(contacts []store.Contact) []store.Contact {
	out := make([]store.Contact, len(contacts))
	for i, c := range contacts {
		out[i] = c.Clone()
	}
	return out
}

func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
