package discovery

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"crmoverlay/api/internal/color"
	"crmoverlay/api/internal/host"
	"crmoverlay/api/internal/store"
)

// DefaultSamplePerSide bounds how many module exports are inspected from each
// end of the registry.
const DefaultSamplePerSide = 250

// exportWalkDepth limits how far into an export's fields the heuristic looks.
const exportWalkDepth = 2

var (
	nameFields  = []string{"name", "title", "label", "displayName"}
	colorFields = []string{"hexColor", "color", "colorIndex", "labelColor", "colour"}
)

// ModuleRuntimeStrategy samples the host's module registry and picks out
// objects shaped like labels: a name-like field plus a color-like field, or a
// collection whose entries all look like that.
type ModuleRuntimeStrategy struct {
	page    host.Page
	PerSide int
}

func NewModuleRuntimeStrategy(page host.Page, perSide int) *ModuleRuntimeStrategy {
	return &ModuleRuntimeStrategy{page: page, PerSide: perSide}
}

func (s *ModuleRuntimeStrategy) Source() store.Source { return store.SourceModuleRuntime }

func (s *ModuleRuntimeStrategy) Discover(ctx context.Context) ([]RawCandidate, error) {
	perSide := s.PerSide
	if perSide <= 0 {
		perSide = DefaultSamplePerSide
	}
	exports, err := s.page.ModuleSample(ctx, perSide)
	if err != nil {
		return nil, err
	}
	return ScanExports(boundSample(exports, perSide)), nil
}

// boundSample keeps at most perSide entries from each end.
func boundSample(exports []any, perSide int) []any {
	if len(exports) <= 2*perSide {
		return exports
	}
	out := make([]any, 0, 2*perSide)
	out = append(out, exports[:perSide]...)
	return append(out, exports[len(exports)-perSide:]...)
}

// ScanExports applies the label-shape heuristic to plain-data module exports.
func ScanExports(exports []any) []RawCandidate {
	var out []RawCandidate
	for _, export := range exports {
		out = append(out, scanValue(export, exportWalkDepth)...)
	}
	return out
}

func scanValue(value any, depth int) []RawCandidate {
	if candidate, ok := labelShape(value); ok {
		return []RawCandidate{candidate}
	}
	switch v := value.(type) {
	case []any:
		if collection, ok := labelCollection(v); ok {
			return collection
		}
		if depth == 0 {
			return nil
		}
		var out []RawCandidate
		for _, item := range v {
			if _, isMap := item.(map[string]any); isMap {
				continue
			}
			out = append(out, scanValue(item, depth-1)...)
		}
		return out
	case map[string]any:
		if depth == 0 {
			return nil
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []RawCandidate
		for _, k := range keys {
			out = append(out, scanValue(v[k], depth-1)...)
		}
		return out
	}
	return nil
}

func labelCollection(items []any) ([]RawCandidate, bool) {
	if len(items) == 0 {
		return nil, false
	}
	out := make([]RawCandidate, 0, len(items))
	for _, item := range items {
		candidate, ok := labelShape(item)
		if !ok {
			return nil, false
		}
		out = append(out, candidate)
	}
	return out, true
}

func labelShape(value any) (RawCandidate, bool) {
	fields, ok := value.(map[string]any)
	if !ok {
		return RawCandidate{}, false
	}
	var candidate RawCandidate
	for _, key := range nameFields {
		if name, ok := fields[key].(string); ok && strings.TrimSpace(name) != "" {
			candidate.Name = name
			break
		}
	}
	if candidate.Name == "" || len([]rune(candidate.Name)) > maxNameLength {
		return RawCandidate{}, false
	}
	if !colorLike(fields, &candidate) {
		return RawCandidate{}, false
	}
	switch id := fields["id"].(type) {
	case string:
		candidate.OriginalID = id
	case float64:
		candidate.OriginalID = strconv.FormatFloat(id, 'f', -1, 64)
	}
	return candidate, true
}

func colorLike(fields map[string]any, candidate *RawCandidate) bool {
	for _, key := range colorFields {
		switch v := fields[key].(type) {
		case string:
			if _, ok := color.Parse(v); ok {
				candidate.Color = v
				return true
			}
		case float64:
			if v == math.Trunc(v) && v >= 0 && int(v) < len(Palette) {
				index := int(v)
				candidate.ColorIndex = &index
				return true
			}
		}
	}
	return false
}
