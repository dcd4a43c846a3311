package search

import (
	"context"

	"go.uber.org/zap"

	"crmoverlay/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back through
// the remaining searchers in order.
type Service struct {
	meili     *Meili
	fallbacks []Searcher
	logger    *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, logger *zap.Logger, fallbacks ...Searcher) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, fallbacks: fallbacks, logger: logger}
}

func (s *Service) searchers() []Searcher {
	out := make([]Searcher, 0, len(s.fallbacks)+1)
	if s.meili != nil {
		out = append(out, s.meili)
	}
	return append(out, s.fallbacks...)
}

// Search returns the first healthy searcher's answer. When every searcher
// fails the response is empty.
func (s *Service) Search(ctx context.Context, q Query) Response {
	for _, searcher := range s.searchers() {
		if !searcher.Healthy() {
			continue
		}
		results, total, err := searcher.Search(ctx, q)
		if err != nil {
			s.logger.Warn("search backend failed, falling back", zap.String("backend", searcher.Name()), zap.Error(err))
			continue
		}
		return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: searcher.Name()}
	}
	return Response{Results: []Result{}, Total: 0, Query: q.Text}
}

// IndexContact indexes a contact (fire-and-forget to Meilisearch).
func (s *Service) IndexContact(operator string, c store.Contact) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFor(operator, c)
	go func() {
		if err := s.meili.IndexContacts([]ContactRecord{record}); err != nil {
			s.logger.Warn("index contact failed", zap.String("contact_id", c.ID), zap.Error(err))
		}
	}()
}

// ReindexAll pushes the whole contact set, as after a reconciliation cycle.
func (s *Service) ReindexAll(_ context.Context, operator string, contacts []store.Contact) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records := make([]ContactRecord, 0, len(contacts))
	for _, c := range contacts {
		records = append(records, RecordFor(operator, c))
	}
	if err := s.meili.IndexContacts(records); err != nil {
		s.logger.Warn("reindex contacts failed", zap.Int("count", len(records)), zap.Error(err))
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
