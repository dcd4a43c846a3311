// Package discovery extracts named, colored labels from the host page through
// a fixed-priority chain of strategies, from the most reliable (a versioned
// accessor) down to markup heuristics.
package discovery

import (
	"context"

	"crmoverlay/api/internal/host"
	"crmoverlay/api/internal/store"
)

// RawCandidate is an un-normalized label as a strategy found it. Color may be
// in any CSS encoding; ColorIndex is a host palette index.
type RawCandidate struct {
	Name       string
	Color      string
	ColorIndex *int
	OriginalID string
}

// Strategy extracts label candidates. "Nothing found" is an empty slice and a
// nil error; errors are reserved for the host being unreachable.
type Strategy interface {
	Source() store.Source
	Discover(ctx context.Context) ([]RawCandidate, error)
}

// DefaultOrder is the strategy priority, most reliable first.
var DefaultOrder = []store.Source{
	store.SourceAPI,
	store.SourceObjectGraph,
	store.SourceModuleRuntime,
	store.SourceMarkup,
}

// DefaultStrategies builds the four host strategies in DefaultOrder.
func DefaultStrategies(page host.Page, samplePerSide int) []Strategy {
	return []Strategy{
		&APIStrategy{page: page},
		&ObjectGraphStrategy{page: page},
		&ModuleRuntimeStrategy{page: page, PerSide: samplePerSide},
		&MarkupStrategy{page: page},
	}
}

func priority(source store.Source) int {
	for i, s := range DefaultOrder {
		if s == source {
			return i
		}
	}
	return len(DefaultOrder)
}

// APIStrategy calls the host's structured label accessor.
type APIStrategy struct {
	page host.Page
}

func NewAPIStrategy(page host.Page) *APIStrategy {
	return &APIStrategy{page: page}
}

func (s *APIStrategy) Source() store.Source { return store.SourceAPI }

func (s *APIStrategy) Discover(ctx context.Context) ([]RawCandidate, error) {
	labels, err := s.page.StructuredLabels(ctx)
	if err != nil {
		return nil, err
	}
	return fromHostLabels(labels), nil
}

// ObjectGraphStrategy walks the host's in-memory label collection.
type ObjectGraphStrategy struct {
	page host.Page
}

func NewObjectGraphStrategy(page host.Page) *ObjectGraphStrategy {
	return &ObjectGraphStrategy{page: page}
}

func (s *ObjectGraphStrategy) Source() store.Source { return store.SourceObjectGraph }

func (s *ObjectGraphStrategy) Discover(ctx context.Context) ([]RawCandidate, error) {
	labels, err := s.page.ObjectGraphLabels(ctx)
	if err != nil {
		return nil, err
	}
	return fromHostLabels(labels), nil
}

func fromHostLabels(labels []host.Label) []RawCandidate {
	out := make([]RawCandidate, 0, len(labels))
	for _, l := range labels {
		originalID := l.OriginalID
		if originalID == "" {
			originalID = l.ID
		}
		out = append(out, RawCandidate{
			Name:       l.Name,
			Color:      l.Color,
			ColorIndex: l.ColorIndex,
			OriginalID: originalID,
		})
	}
	return out
}
