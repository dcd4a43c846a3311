// Package host reads label metadata from the third-party messaging page. The
// page exposes no stable API, so every accessor is best-effort: a missing
// global or a changed shape yields an empty result rather than an error.
package host

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the browser or tab is gone.
	ErrUnavailable = errors.New("host page unavailable")
	// ErrLabelNotFound means a chip click could not find its target.
	ErrLabelNotFound = errors.New("host label chip not found")
	// ErrUnresolvedColor means the page did not accept a color token.
	ErrUnresolvedColor = errors.New("host could not resolve color")
)

// Label is a label record as the host runtime reports it. Color may be any
// CSS encoding; ColorIndex is set when the host stores a palette index instead.
type Label struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	ColorIndex *int   `json:"colorIndex"`
	OriginalID string `json:"originalId"`
}

// Page is the read-mostly surface of the host page.
type Page interface {
	// StructuredLabels calls the host's versioned label accessor, if exposed.
	StructuredLabels(ctx context.Context) ([]Label, error)
	// ObjectGraphLabels walks the in-memory label collection singleton.
	ObjectGraphLabels(ctx context.Context) ([]Label, error)
	// ModuleSample returns plain-data snapshots of up to perSide module exports
	// from each end of the host's module registry.
	ModuleSample(ctx context.Context, perSide int) ([]any, error)
	// Markup returns the rendered document.
	Markup(ctx context.Context) (string, error)
	// ComputedColor renders token invisibly and reports the computed color.
	ComputedColor(ctx context.Context, token string) (string, error)
	// ClickLabel replays a click on the host's label chip named name.
	ClickLabel(ctx context.Context, name string) error
	// MutationCount reports how many DOM mutations the page has seen since an
	// observer was installed. It installs the observer on first use.
	MutationCount(ctx context.Context) (int64, error)
}
